package utils

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCallSlotsRequireClient(t *testing.T) {
	s := NewCallSlots(nil, "", 0)
	if _, err := s.Acquire(context.Background(), "42", 1); !errors.Is(err, ErrNilRedis) {
		t.Fatalf("expected ErrNilRedis, got %v", err)
	}
	if err := s.Release(context.Background(), "42"); !errors.Is(err, ErrNilRedis) {
		t.Fatalf("expected ErrNilRedis, got %v", err)
	}
	if s.key("42") != "console:calls:live:42" {
		t.Fatalf("unexpected key %q", s.key("42"))
	}
}

func TestOpenRedisRequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty addr")
	}
}

// Runs against a real server when REDIS_TEST_ADDR is set.
func TestCallSlotsAgainstRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rdb.Close()

	s := NewCallSlots(rdb, "test:"+uuid.NewString(), time.Minute)
	for i := 0; i < 2; i++ {
		ok, err := s.Acquire(ctx, "42", 2)
		if err != nil || !ok {
			t.Fatalf("acquire %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := s.Acquire(ctx, "42", 2); ok {
		t.Fatalf("expected cap to reject third call")
	}
	if err := s.Release(ctx, "42"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n, _ := s.InUse(ctx, "42"); n != 1 {
		t.Fatalf("expected 1 slot in use, got %d", n)
	}
	_ = s.Release(ctx, "42")
	_ = s.Release(ctx, "42")
	if n, _ := s.InUse(ctx, "42"); n != 0 {
		t.Fatalf("expected no slots in use, got %d", n)
	}
}
