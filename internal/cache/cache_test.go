package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_HasPrefixBySegment(t *testing.T) {
	assert.True(t, K("campaigns", "42").HasPrefix(K("campaigns")))
	assert.True(t, K("campaigns", "42", "details").HasPrefix(K("campaigns", "42")))
	assert.False(t, K("campaigns", "4").HasPrefix(K("campaigns", "42")))
	assert.False(t, K("campaigns").HasPrefix(K("campaign")))
	assert.False(t, K("campaigns").HasPrefix(K("campaigns", "42")))
}

func TestFetch_DeduplicatesConcurrentRequests(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "list", nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([]any, n)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = c.Fetch(context.Background(), CampaignList, fetch)
	}()
	<-started
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Fetch(context.Background(), CampaignList, fetch)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i, r := range results {
		assert.Equal(t, "list", r, "caller %d", i)
	}
}

func TestFetch_ServesFreshDataWithoutNetwork(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "v1", nil
	}
	_, err := c.Fetch(context.Background(), Voices, fetch)
	require.NoError(t, err)
	v, err := c.Fetch(context.Background(), Voices, fetch)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestInvalidate_DiscardsResponseIssuedBefore(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := Campaign("42")

	release := make(chan struct{})
	started := make(chan struct{})
	slow := func(ctx context.Context) (any, error) {
		close(started)
		<-release
		return "old", nil
	}
	fast := func(ctx context.Context) (any, error) { return "new", nil }

	done := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), key, slow)
		done <- v
	}()
	<-started

	c.Invalidate(K("campaigns"))
	v, err := c.Revalidate(context.Background(), key, fast)
	require.NoError(t, err)
	require.Equal(t, "new", v)

	close(release)
	assert.Equal(t, "new", <-done, "the superseded caller gets the applied value")
	assert.Equal(t, "new", c.Snapshot(key).Data)
}

func TestSet_WinsOverInFlightRequest(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := Campaign("7")

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = c.Revalidate(context.Background(), key, func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return "server-before-write", nil
		})
	}()
	<-started
	c.Set(key, "authoritative")
	close(release)

	require.Eventually(t, func() bool { return !c.Snapshot(key).Revalidating }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "authoritative", c.Snapshot(key).Data)
}

func TestFetch_StaleWhileRevalidate(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	var version atomic.Int32
	fetch := func(ctx context.Context) (any, error) {
		return version.Add(1), nil
	}
	v, err := c.Fetch(context.Background(), Voices, fetch)
	require.NoError(t, err)
	require.Equal(t, int32(1), v)

	c.Invalidate(Voices)
	assert.True(t, c.Snapshot(Voices).Stale)

	v, err = c.Fetch(context.Background(), Voices, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(1), v, "stale data is served immediately")

	require.Eventually(t, func() bool {
		s := c.Snapshot(Voices)
		return s.Data == int32(2) && !s.Stale
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshot_LoadingOnlyBeforeFirstData(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := CallHistory("1")

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	fetch := func(ctx context.Context) (any, error) {
		started <- struct{}{}
		<-release
		return "rows", nil
	}

	go func() { _, _ = c.Revalidate(context.Background(), key, fetch) }()
	<-started
	s := c.Snapshot(key)
	assert.True(t, s.Loading)
	assert.False(t, s.Revalidating)
	release <- struct{}{}
	require.Eventually(t, func() bool { return c.Snapshot(key).HasData() }, time.Second, 5*time.Millisecond)

	go func() { _, _ = c.Revalidate(context.Background(), key, fetch) }()
	<-started
	s = c.Snapshot(key)
	assert.False(t, s.Loading)
	assert.True(t, s.Revalidating)
	assert.Equal(t, "rows", s.Data)
	close(release)
}

func TestFetch_ErrorKeepsPreviousData(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	boom := errors.New("boom")

	c.Set(Dashboard, "cached")
	_, err := c.Revalidate(context.Background(), Dashboard, func(ctx context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	s := c.Snapshot(Dashboard)
	assert.Equal(t, "cached", s.Data)
	assert.ErrorIs(t, s.Err, boom)
}

func TestRevalidate_WithoutFetcher(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	_, err := c.Revalidate(context.Background(), K("unknown"), nil)
	assert.ErrorIs(t, err, ErrNoFetcher)
}

func TestSubscribe_NoDeliveryAfterCancel(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := Campaign("1")

	ch, cancel := c.Subscribe(key)
	c.Set(key, "a")
	s := <-ch
	assert.Equal(t, "a", s.Data)

	cancel()
	cancel()
	c.Set(key, "b")
	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribe_SlowReaderSeesLatest(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	key := Campaign("1")

	ch, cancel := c.Subscribe(key)
	defer cancel()
	c.Set(key, "a")
	c.Set(key, "b")
	c.Set(key, "c")
	assert.Equal(t, "c", (<-ch).Data)
}

func TestInvalidate_RefetchesSubscribedKeys(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	var calls atomic.Int32
	fetch := func(ctx context.Context) (any, error) { return calls.Add(1), nil }

	_, err := c.Fetch(context.Background(), Campaign("1"), fetch)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), Campaign("2"), fetch)
	require.NoError(t, err)

	ch, cancel := c.Subscribe(Campaign("1"))
	defer cancel()
	<-ch

	n := c.Invalidate(K("campaigns"))
	assert.Equal(t, 2, n)

	require.Eventually(t, func() bool { return !c.Snapshot(Campaign("1")).Stale }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load(), "only the subscribed key is refetched")
	assert.True(t, c.Snapshot(Campaign("2")).Stale)
}

func TestInvalidate_ItemDoesNotTouchList(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	c.Set(CampaignList, "list")
	c.Set(Campaign("42"), "item")

	c.Invalidate(Campaign("42"))
	assert.False(t, c.Snapshot(CampaignList).Stale)
	assert.True(t, c.Snapshot(Campaign("42")).Stale)
}

func TestWatch_RevalidatesUntilCancelled(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, ActiveCalls("1"), func(ctx context.Context) (any, error) {
			return calls.Add(1), nil
		}, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 2*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestGet_Typed(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	n, err := Get(context.Background(), c, K("n"), func(ctx context.Context) (int, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = Get(context.Background(), c, K("n"), func(ctx context.Context) (string, error) { return "x", nil })
	assert.Error(t, err)

	v, ok := Peek[int](c, K("n"))
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestPurge_DropsDataAndDiscardsInFlight(t *testing.T) {
	c := New(Options{})
	defer c.Close()
	ctx := context.Background()

	c.Set(K("campaigns", "1"), "old")
	c.Set(K("voices"), "v")

	snaps, cancel := c.Subscribe(K("campaigns", "1"))
	defer cancel()
	<-snaps

	release := make(chan struct{})
	done := make(chan any, 1)
	go func() {
		v, _ := c.Revalidate(ctx, K("campaigns", "1"), func(ctx context.Context) (any, error) {
			<-release
			return "previous operator", nil
		})
		done <- v
	}()
	require.Eventually(t, func() bool { return c.Snapshot(K("campaigns", "1")).Revalidating }, time.Second, time.Millisecond)

	assert.Equal(t, 2, c.Purge(K()))
	close(release)
	<-done

	snap := c.Snapshot(K("campaigns", "1"))
	assert.False(t, snap.HasData())
	assert.Nil(t, snap.Data)
	assert.False(t, c.Snapshot(K("voices")).HasData())

	_, ok := Peek[string](c, K("campaigns", "1"))
	assert.False(t, ok)
}
