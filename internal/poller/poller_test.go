package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-console/internal/cache"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/config"
)

type manualTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped.Store(true) }

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{d: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) all() []*manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*manualTicker(nil), c.tickers...)
}

func (c *manualClock) live() []time.Duration {
	var out []time.Duration
	for _, t := range c.all() {
		if !t.stopped.Load() {
			out = append(out, t.d)
		}
	}
	return out
}

func (c *manualClock) fire(d time.Duration) {
	for _, t := range c.all() {
		if t.d == d && !t.stopped.Load() {
			t.ch <- time.Now()
			return
		}
	}
}

type countingSource struct {
	active  atomic.Int32
	history atomic.Int32
	details atomic.Int32
	gate    chan struct{}
}

func (s *countingSource) ActiveCalls(ctx context.Context, id string) ([]calls.ActiveCall, error) {
	s.active.Add(1)
	return []calls.ActiveCall{{CallID: "c1", CampaignID: id}}, nil
}

func (s *countingSource) CallHistory(ctx context.Context, id string) ([]calls.CallLog, error) {
	s.history.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return nil, nil
}

func (s *countingSource) CampaignDetails(ctx context.Context, id string) (campaigns.Details, error) {
	s.details.Add(1)
	return campaigns.Details{Campaign: campaigns.Campaign{ID: id}}, nil
}

func defaultPolling() config.PollingConfig {
	return config.PollingConfig{
		ActiveInterval:      2 * time.Second,
		HistoryFastInterval: 10 * time.Second,
		HistorySlowInterval: 30 * time.Second,
	}
}

func campaign(status campaigns.Status) campaigns.Campaign {
	return campaigns.Campaign{ID: "42", Status: status}
}

func TestPoller_CadenceAcrossLifecycle(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()

	var seen []Cadence
	p := New(&countingSource{}, rc, defaultPolling(), Options{
		Clock:        clock,
		OnTransition: func(c Cadence) { seen = append(seen, c) },
	})

	p.Follow(campaign(campaigns.StatusDraft))
	assert.Equal(t, Idle, p.Cadence().State)
	assert.Empty(t, clock.live())

	p.Follow(campaign(campaigns.StatusActive))
	assert.Equal(t, Fast, p.Cadence().State)
	assert.ElementsMatch(t, []time.Duration{2 * time.Second, 10 * time.Second}, clock.live())

	p.Follow(campaign(campaigns.StatusCompleted))
	assert.Equal(t, Slow, p.Cadence().State)
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.live(), "fast timers are cleared")

	p.Stop()
	assert.Equal(t, Idle, p.Cadence().State)
	assert.Empty(t, clock.live())

	require.Len(t, seen, 3)
	assert.Equal(t, Cadence{State: Fast, CampaignID: "42", ActiveCalls: 2 * time.Second, History: 10 * time.Second}, seen[0])
	assert.Equal(t, Cadence{State: Slow, CampaignID: "42", History: 30 * time.Second}, seen[1])
	assert.Equal(t, Cadence{State: Idle}, seen[2])
}

func TestPoller_ManualOnlySlowState(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()
	src := &countingSource{}

	cfg := defaultPolling()
	cfg.HistorySlowInterval = config.ManualOnly
	p := New(src, rc, cfg, Options{Clock: clock})

	p.Follow(campaign(campaigns.StatusPaused))
	cad := p.Cadence()
	assert.Equal(t, Slow, cad.State)
	assert.True(t, cad.ManualOnly())
	assert.Empty(t, clock.live())

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, int32(1), src.history.Load())
	assert.Equal(t, int32(0), src.active.Load())
}

func TestPoller_TicksGoThroughCache(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()
	src := &countingSource{}
	p := New(src, rc, defaultPolling(), Options{Clock: clock})
	defer p.Stop()

	p.Follow(campaign(campaigns.StatusActive))
	clock.fire(2 * time.Second)

	require.Eventually(t, func() bool {
		return rc.Snapshot(cache.ActiveCalls("42")).HasData()
	}, time.Second, 5*time.Millisecond)
	active, ok := cache.Peek[[]calls.ActiveCall](rc, cache.ActiveCalls("42"))
	require.True(t, ok)
	assert.Len(t, active, 1)

	clock.fire(10 * time.Second)
	require.Eventually(t, func() bool { return src.details.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), src.history.Load())
}

func TestPoller_TickAndRefreshCoalesce(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()
	src := &countingSource{gate: make(chan struct{})}
	p := New(src, rc, defaultPolling(), Options{Clock: clock})

	p.Follow(campaign(campaigns.StatusCompleted))
	clock.fire(30 * time.Second)
	require.Eventually(t, func() bool { return src.history.Load() == 1 }, time.Second, time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Refresh(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(src.gate)

	require.NoError(t, <-done)
	assert.Equal(t, int32(1), src.history.Load(), "manual refresh joined the in-flight tick")
	p.Stop()
}

func TestPoller_StopWaitsForInFlightTick(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()
	src := &countingSource{gate: make(chan struct{})}
	defer close(src.gate)
	p := New(src, rc, defaultPolling(), Options{Clock: clock})

	p.Follow(campaign(campaigns.StatusActive))
	clock.fire(10 * time.Second)
	require.Eventually(t, func() bool { return src.history.Load() == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop did not return while a fetch was blocked")
	}
	for _, tk := range clock.all() {
		assert.True(t, tk.stopped.Load())
	}
}

func TestPoller_RefreshWhenIdle(t *testing.T) {
	p := New(&countingSource{}, cache.New(cache.Options{}), defaultPolling(), Options{Clock: &manualClock{}})
	assert.ErrorIs(t, p.Refresh(context.Background()), ErrNotFollowing)
}

func TestPoller_SwitchingCampaignRestartsTimers(t *testing.T) {
	clock := &manualClock{}
	rc := cache.New(cache.Options{})
	defer rc.Close()
	p := New(&countingSource{}, rc, defaultPolling(), Options{Clock: clock})
	defer p.Stop()

	p.Follow(campaigns.Campaign{ID: "1", Status: campaigns.StatusActive})
	p.Follow(campaigns.Campaign{ID: "1", Status: campaigns.StatusActive})
	assert.Len(t, clock.all(), 2, "same cadence keeps timers")

	p.Follow(campaigns.Campaign{ID: "2", Status: campaigns.StatusActive})
	assert.Len(t, clock.all(), 4)
	assert.Len(t, clock.live(), 2)
	assert.Equal(t, "2", p.Cadence().CampaignID)
}
