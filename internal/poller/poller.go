package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"campaign-console/internal/cache"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/config"
)

var ErrNotFollowing = errors.New("poller: no campaign is being followed")

var ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "console",
	Subsystem: "poller",
	Name:      "ticks_total",
	Help:      "Poll ticks by resource.",
}, []string{"resource"})

type State string

const (
	Idle State = "idle"
	Fast State = "polling-fast"
	Slow State = "polling-slow"
)

// Cadence is the poller's current state and intervals. A zero interval is not polled.
type Cadence struct {
	State      State
	CampaignID string

	ActiveCalls time.Duration
	History     time.Duration
}

// ManualOnly reports whether history is only refreshed on demand.
func (c Cadence) ManualOnly() bool { return c.State == Slow && c.History == 0 }

// Source loads the resources the poller keeps fresh.
type Source interface {
	ActiveCalls(ctx context.Context, campaignID string) ([]calls.ActiveCall, error)
	CallHistory(ctx context.Context, campaignID string) ([]calls.CallLog, error)
	CampaignDetails(ctx context.Context, id string) (campaigns.Details, error)
}

// Revalidator is the cache entry point every tick goes through.
type Revalidator interface {
	Revalidate(ctx context.Context, key cache.Key, fetcher cache.Fetcher) (any, error)
}

type Options struct {
	Clock  Clock
	Logger *slog.Logger

	// OnTransition runs after every state change with the new cadence.
	OnTransition func(Cadence)
}

// Poller drives periodic revalidation for the followed campaign.
//
// Each non-idle state owns a context and a WaitGroup. A transition cancels the
// context and waits for every ticker goroutine before the next state starts.
type Poller struct {
	src   Source
	cache Revalidator
	cfg   config.PollingConfig
	clock Clock
	log   *slog.Logger
	hook  func(Cadence)

	mu      sync.Mutex
	cadence Cadence
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(src Source, rc Revalidator, cfg config.PollingConfig, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		src:     src,
		cache:   rc,
		cfg:     cfg,
		clock:   opts.Clock,
		log:     log.With("component", "poller"),
		hook:    opts.OnTransition,
		cadence: Cadence{State: Idle},
	}
}

func (p *Poller) Cadence() Cadence {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cadence
}

// Follow moves the poller to the state implied by the campaign's status.
// Active campaigns poll fast; paused and completed ones poll slow; drafts stay idle.
func (p *Poller) Follow(c campaigns.Campaign) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.cadenceFor(c)
	if next == p.cadence {
		return
	}
	p.transitionLocked(next)
}

// Stop returns the poller to idle and waits for every timer to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cadence.State == Idle {
		return
	}
	p.transitionLocked(Cadence{State: Idle})
}

// Refresh revalidates the followed campaign's resources now. It shares in-flight
// requests with ticks through the cache.
func (p *Poller) Refresh(ctx context.Context) error {
	cur := p.Cadence()
	if cur.State == Idle {
		return ErrNotFollowing
	}
	var errs []error
	if cur.State == Fast {
		errs = append(errs, p.revalidateActive(ctx, cur.CampaignID))
	}
	errs = append(errs, p.revalidateHistory(ctx, cur.CampaignID)...)
	return errors.Join(errs...)
}

func (p *Poller) cadenceFor(c campaigns.Campaign) Cadence {
	if c.ID == "" {
		return Cadence{State: Idle}
	}
	switch c.Status {
	case campaigns.StatusActive:
		return Cadence{
			State:       Fast,
			CampaignID:  c.ID,
			ActiveCalls: p.cfg.ActiveInterval,
			History:     p.cfg.HistoryFastInterval,
		}
	case campaigns.StatusPaused, campaigns.StatusCompleted:
		out := Cadence{State: Slow, CampaignID: c.ID}
		if p.cfg.HistorySlowInterval > 0 {
			out.History = p.cfg.HistorySlowInterval
		}
		return out
	default:
		return Cadence{State: Idle}
	}
}

func (p *Poller) transitionLocked(next Cadence) {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
	}
	prev := p.cadence
	p.cadence = next
	p.log.Debug("poller transition", "from", prev.State, "to", next.State, "campaign_id", next.CampaignID)

	if next.State != Idle {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.startLocked(ctx, next)
	}
	if p.hook != nil {
		p.hook(next)
	}
}

func (p *Poller) startLocked(ctx context.Context, cad Cadence) {
	id := cad.CampaignID

	if cad.ActiveCalls > 0 {
		t := p.clock.NewTicker(cad.ActiveCalls)
		p.wg.Add(1)
		go p.loop(ctx, t, func(ctx context.Context) {
			if err := p.revalidateActive(ctx, id); err != nil && ctx.Err() == nil {
				p.log.Debug("active calls poll failed", "campaign_id", id, "err", err)
			}
		})
	}

	historyTick := func(ctx context.Context) {
		for _, err := range p.revalidateHistory(ctx, id) {
			if err != nil && ctx.Err() == nil {
				p.log.Debug("history poll failed", "campaign_id", id, "err", err)
			}
		}
	}
	if cad.History > 0 {
		t := p.clock.NewTicker(cad.History)
		p.wg.Add(1)
		go p.loop(ctx, t, historyTick)
	}
}

func (p *Poller) loop(ctx context.Context, t Ticker, tick func(context.Context)) {
	defer p.wg.Done()
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			tick(ctx)
		}
	}
}

func (p *Poller) revalidateActive(ctx context.Context, id string) error {
	ticksTotal.WithLabelValues("active_calls").Inc()
	_, err := p.cache.Revalidate(ctx, cache.ActiveCalls(id), func(ctx context.Context) (any, error) {
		return p.src.ActiveCalls(ctx, id)
	})
	return err
}

// revalidateHistory refreshes the call history and the campaign itself, so status
// changes made elsewhere reach subscribers.
func (p *Poller) revalidateHistory(ctx context.Context, id string) []error {
	ticksTotal.WithLabelValues("history").Inc()
	_, herr := p.cache.Revalidate(ctx, cache.CallHistory(id), func(ctx context.Context) (any, error) {
		return p.src.CallHistory(ctx, id)
	})
	_, derr := p.cache.Revalidate(ctx, cache.CampaignDetails(id), func(ctx context.Context) (any, error) {
		return p.src.CampaignDetails(ctx, id)
	})
	return []error{herr, derr}
}
