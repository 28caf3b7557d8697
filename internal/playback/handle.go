package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"campaign-console/internal/gateway"
)

// Handle is an acquired recording backed by a temporary file.
type Handle struct {
	ConversationID string
	ContentType    string

	path      string
	once      sync.Once
	onRelease func(*Handle)
	err       error
}

func (h *Handle) Path() string { return h.path }

// Release removes the temporary file. Only the first call has any effect.
func (h *Handle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.err = err
		}
		handlesGauge.Dec()
		if h.onRelease != nil {
			h.onRelease(h)
		}
	})
	return h.err
}

func acquire(dir, conversationID string, audio gateway.Audio, onRelease func(*Handle)) (*Handle, error) {
	defer audio.Body.Close()
	f, err := os.CreateTemp(dir, "conversation-*.audio")
	if err != nil {
		return nil, fmt.Errorf("playback: create handle: %w", err)
	}
	if _, err := io.Copy(f, audio.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("playback: read audio %s: %w", conversationID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("playback: write handle: %w", err)
	}
	handlesGauge.Inc()
	return &Handle{
		ConversationID: conversationID,
		ContentType:    audio.ContentType,
		path:           f.Name(),
		onRelease:      onRelease,
	}, nil
}
