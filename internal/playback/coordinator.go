package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campaign-console/internal/gateway"
)

var (
	ErrNoConversation = errors.New("playback: conversation id is required")
	ErrSuperseded     = errors.New("playback: superseded by a newer play request")
)

var handlesGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "console",
	Subsystem: "playback",
	Name:      "handles",
	Help:      "Acquired audio handles not yet released.",
})

// AudioSource fetches recordings.
type AudioSource interface {
	ConversationAudio(ctx context.Context, conversationID string) (gateway.Audio, error)
}

type Options struct {
	Player Player
	// Dir holds handle files. Empty means os.TempDir.
	Dir    string
	Logger *slog.Logger

	// OnRelease runs once per released handle.
	OnRelease func(conversationID string)
}

type playing struct {
	id     string
	handle *Handle
	cancel context.CancelFunc
	done   chan struct{}
}

// stop cancels playback and waits until its handle is released.
func (p *playing) stop() {
	p.cancel()
	<-p.done
}

// Coordinator keeps at most one recording playing.
type Coordinator struct {
	src    AudioSource
	player Player
	dir    string
	log    *slog.Logger
	onRel  func(string)

	mu      sync.Mutex
	current *playing
	gen     uint64
}

func NewCoordinator(src AudioSource, opts Options) *Coordinator {
	if opts.Player == nil {
		opts.Player = HoldPlayer{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		src:    src,
		player: opts.Player,
		dir:    opts.Dir,
		log:    log.With("component", "playback"),
		onRel:  opts.OnRelease,
	}
}

// Current returns the conversation playing now, or "".
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// Play toggles conversationID. It reports whether that conversation is playing
// afterwards. Any other playback is stopped and its handle released first.
// On every error the coordinator is left not playing.
func (c *Coordinator) Play(ctx context.Context, conversationID string) (bool, error) {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if prev != nil {
		prev.stop()
		if prev.id == conversationID {
			return false, nil
		}
	}
	if strings.TrimSpace(conversationID) == "" {
		return false, ErrNoConversation
	}

	audio, err := c.src.ConversationAudio(ctx, conversationID)
	if err != nil {
		if !gateway.IsAudioNotReady(err) {
			c.log.Debug("audio fetch failed", "conversation_id", conversationID, "err", err)
		}
		return false, err
	}
	h, err := acquire(c.dir, conversationID, audio, c.released)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		_ = h.Release()
		return false, ErrSuperseded
	}
	c.current = c.start(h)
	return true, nil
}

// Stop ends any playback and releases its handle.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.gen++
	c.mu.Unlock()
	if prev != nil {
		prev.stop()
	}
}

// start must be called with c.mu held.
func (c *Coordinator) start(h *Handle) *playing {
	ctx, cancel := context.WithCancel(context.Background())
	p := &playing{id: h.ConversationID, handle: h, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		if err := c.player.Play(ctx, h); err != nil {
			c.log.Warn("playback failed", "conversation_id", h.ConversationID, "err", err)
		}
		cancel()
		c.mu.Lock()
		if c.current == p {
			c.current = nil
		}
		c.mu.Unlock()
		if err := h.Release(); err != nil {
			c.log.Warn("release audio handle", "conversation_id", h.ConversationID, "err", err)
		}
	}()
	return p
}

func (c *Coordinator) released(h *Handle) {
	if c.onRel != nil {
		c.onRel(h.ConversationID)
	}
}
