package devbackend

import (
	"context"
	"sync"
)

// Limiter caps concurrently live calls per campaign. *utils.CallSlots is the
// Redis-backed implementation; MemoryLimiter serves single-process runs and tests.
type Limiter interface {
	Acquire(ctx context.Context, campaignID string, limit int) (bool, error)
	Release(ctx context.Context, campaignID string) error
}

type MemoryLimiter struct {
	mu    sync.Mutex
	inUse map[string]int
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{inUse: map[string]int{}}
}

func (l *MemoryLimiter) Acquire(ctx context.Context, campaignID string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse[campaignID] >= limit {
		return false, nil
	}
	l.inUse[campaignID]++
	return true, nil
}

func (l *MemoryLimiter) Release(ctx context.Context, campaignID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse[campaignID] <= 1 {
		delete(l.inUse, campaignID)
		return nil
	}
	l.inUse[campaignID]--
	return nil
}

func (l *MemoryLimiter) InUse(campaignID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse[campaignID]
}
