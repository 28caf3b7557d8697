package playback

import (
	"context"
	"errors"
	"os/exec"
)

// Player renders a handle. Play blocks until the recording ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, h *Handle) error
}

// ExecPlayer hands the file to an external program, e.g. "ffplay -nodisp -autoexit".
type ExecPlayer struct {
	Command string
	Args    []string
}

func (p ExecPlayer) Play(ctx context.Context, h *Handle) error {
	if p.Command == "" {
		return errors.New("playback: player command is empty")
	}
	args := append(append([]string(nil), p.Args...), h.Path())
	err := exec.CommandContext(ctx, p.Command, args...).Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// HoldPlayer keeps a handle until playback is stopped. Used when no audio output exists.
type HoldPlayer struct{}

func (HoldPlayer) Play(ctx context.Context, h *Handle) error {
	<-ctx.Done()
	return nil
}
