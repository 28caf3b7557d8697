package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrNoFetcher = errors.New("cache: no fetcher registered for key")
	ErrClosed    = errors.New("cache: closed")
)

// Fetcher loads the current value of one key from the backend.
type Fetcher func(ctx context.Context) (any, error)

type Options struct {
	// StaleAfter marks data stale by age. Zero means data stays fresh until invalidated.
	StaleAfter time.Duration

	// FetchTimeout bounds a single network fetch. Zero means no bound beyond Close.
	FetchTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Snapshot is what a view renders for one key.
type Snapshot struct {
	Key  Key
	Data any
	Err  error

	// Loading is true only while the first fetch of a key is in flight.
	Loading bool
	// Revalidating is true while a refetch runs behind data already shown.
	Revalidating bool
	Stale        bool

	UpdatedAt time.Time
}

func (s Snapshot) HasData() bool { return !s.UpdatedAt.IsZero() }

type entry struct {
	key Key

	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	stale     bool

	// issued is the sequence of the last request started for this key.
	// applied is the sequence whose response is currently held.
	// Responses with seq <= floor were issued before an invalidation or Set.
	issued   uint64
	applied  uint64
	floor    uint64
	inflight int

	fetcher Fetcher
	subs    map[int]chan Snapshot
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		Key:          e.key,
		Data:         e.data,
		Err:          e.err,
		Loading:      !e.hasData && e.inflight > 0,
		Revalidating: e.hasData && e.inflight > 0,
		Stale:        e.stale,
	}
	if e.hasData {
		s.UpdatedAt = e.updatedAt
	}
	return s
}

// Cache is a keyed remote-resource cache with request deduplication,
// stale-while-revalidate reads and issuance-order last-write-wins.
type Cache struct {
	opts Options
	log  *slog.Logger

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	nextSub int
	closed  bool

	bg   context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	bg, stop := context.WithCancel(context.Background())
	return &Cache{
		opts:    opts,
		log:     log.With("component", "cache"),
		entries: make(map[string]*entry),
		bg:      bg,
		stop:    stop,
	}
}

// Close cancels in-flight fetches and waits for background revalidations.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

func (c *Cache) entry(key Key) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...), subs: make(map[int]chan Snapshot)}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) expired(e *entry) bool {
	if e.stale {
		return true
	}
	return c.opts.StaleAfter > 0 && c.opts.Now().Sub(e.updatedAt) > c.opts.StaleAfter
}

// Fetch returns fresh cached data, or stale data while a background refetch runs,
// or waits for the network when nothing is cached.
func (c *Cache) Fetch(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	c.mu.Lock()
	e := c.entry(key)
	e.fetcher = fetcher
	if e.hasData {
		data := e.data
		expired := c.expired(e)
		c.mu.Unlock()
		if expired {
			c.background(key)
		} else {
			hitsTotal.Inc()
		}
		return data, nil
	}
	c.mu.Unlock()
	return c.load(ctx, key, fetcher)
}

// Revalidate forces a network fetch. Concurrent calls for one key share a request.
// A nil fetcher reuses the last one registered for the key.
func (c *Cache) Revalidate(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	if fetcher == nil {
		fetcher = e.fetcher
	} else {
		e.fetcher = fetcher
	}
	c.mu.Unlock()
	if fetcher == nil {
		return nil, ErrNoFetcher
	}
	return c.load(ctx, key, fetcher)
}

func (c *Cache) load(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.entry(key).inflight > 0 {
		dedupTotal.Inc()
	}
	c.mu.Unlock()

	ch := c.group.DoChan(key.id(), func() (any, error) {
		return c.run(key, fetcher)
	})
	select {
	case r := <-ch:
		return r.Val, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run performs one network fetch. The fetch is not bound to any single caller's
// context because its result is shared by every caller that joined it.
func (c *Cache) run(key Key, fetcher Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entry(key)
	e.issued++
	seq := e.issued
	e.inflight++
	c.publish(e)
	c.mu.Unlock()

	ctx := c.bg
	if c.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FetchTimeout)
		defer cancel()
	}
	fetchesTotal.Inc()
	data, err := fetcher(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	e.inflight--

	if seq <= e.floor || seq < e.applied {
		discardedTotal.Inc()
		c.log.Debug("discarded superseded response", "key", key.String(), "seq", seq)
		c.publish(e)
		if e.hasData {
			return e.data, nil
		}
		return data, err
	}
	if err != nil {
		e.err = err
		c.publish(e)
		return nil, fmt.Errorf("cache: fetch %s: %w", key, err)
	}

	e.data = data
	e.hasData = true
	e.err = nil
	e.stale = false
	e.applied = seq
	e.updatedAt = c.opts.Now()
	c.publish(e)
	return data, nil
}

func (c *Cache) background(key Key) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if _, err := c.Revalidate(c.bg, key, nil); err != nil && c.bg.Err() == nil {
			c.log.Debug("background revalidate failed", "key", key.String(), "err", err)
		}
	}()
}

// Invalidate marks every entry under prefix stale, drops their in-flight requests and
// refetches the ones a view is subscribed to. It returns the number of matching entries.
func (c *Cache) Invalidate(prefix Key) int {
	c.mu.Lock()
	var refetch []Key
	n := 0
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.stale = true
		e.floor = e.issued
		c.group.Forget(id)
		if len(e.subs) > 0 && e.fetcher != nil {
			refetch = append(refetch, e.key)
		}
		c.publish(e)
	}
	c.mu.Unlock()

	for _, k := range refetch {
		c.background(k)
	}
	return n
}

// Purge drops the data held under prefix, e.g. on sign-out. Requests already in
// flight are discarded when they return. Subscribers receive an empty snapshot.
func (c *Cache) Purge(prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		n++
		e.floor = e.issued
		c.group.Forget(id)
		e.data, e.hasData, e.err, e.stale = nil, false, nil, false
		e.updatedAt = time.Time{}
		if len(e.subs) == 0 && e.inflight == 0 {
			delete(c.entries, id)
			continue
		}
		c.publish(e)
	}
	return n
}

// Set writes an authoritative value, typically a mutation response. Requests issued
// before the write are discarded when they return.
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(key)
	e.data = data
	e.hasData = true
	e.err = nil
	e.stale = false
	e.floor = e.issued
	e.applied = e.issued
	e.updatedAt = c.opts.Now()
	c.group.Forget(key.id())
	c.publish(e)
}

func (c *Cache) Snapshot(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Snapshot{Key: key}
	}
	return e.snapshot()
}

// Subscribe delivers the latest snapshot of key whenever it changes. Slow readers only
// see the newest snapshot. After cancel nothing more is delivered and the channel is closed.
func (c *Cache) Subscribe(key Key) (<-chan Snapshot, func()) {
	c.mu.Lock()
	e := c.entry(key)
	c.nextSub++
	id := c.nextSub
	ch := make(chan Snapshot, 1)
	e.subs[id] = ch
	if e.hasData || e.inflight > 0 || e.err != nil {
		ch <- e.snapshot()
	}
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.subs, id)
			close(ch)
			c.mu.Unlock()
		})
	}
}

// publish must be called with c.mu held.
func (c *Cache) publish(e *entry) {
	if len(e.subs) == 0 {
		return
	}
	s := e.snapshot()
	for _, ch := range e.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}

// Watch revalidates key every interval until ctx is done.
func (c *Cache) Watch(ctx context.Context, key Key, fetcher Fetcher, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("cache: watch interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := c.Revalidate(ctx, key, fetcher); err != nil && ctx.Err() == nil {
				c.log.Debug("watch revalidate failed", "key", key.String(), "err", err)
			}
		}
	}
}

// Get is a typed Fetch.
func Get[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) { return fetch(ctx) })
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("cache: %s holds %T", key, v)
	}
	return t, nil
}

// Peek returns the cached value of key if it holds a T.
func Peek[T any](c *Cache, key Key) (T, bool) {
	s := c.Snapshot(key)
	t, ok := s.Data.(T)
	return t, ok && s.HasData()
}
