package audit

import (
	"context"
	"testing"
	"time"
)

func TestService_AppendRequiresCampaignAndType(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)

	if err := svc.Append(context.Background(), Event{Type: EventCampaignCreated}); err == nil {
		t.Fatalf("expected error")
	}
	if err := svc.Append(context.Background(), Event{CampaignID: "42"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_StampsEvents(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	svc := NewService(repo, func() time.Time { return now })

	if err := svc.StatusChanged(context.Background(), Actor{UserID: "u", IP: "1.2.3.4"}, "42", "draft", "active"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	e := evs[0]
	if e.ID == "" || e.IPAddress != "1.2.3.4" || e.ActorUserID != "u" {
		t.Fatalf("expected id and actor captured, got %+v", e)
	}
	if e.Message != "draft -> active" || e.Type != EventStatusChanged {
		t.Fatalf("unexpected event %+v", e)
	}
	if !e.CreatedAt.Equal(now) || e.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", e.CreatedAt)
	}
}

func TestService_RecentIsNewestFirstPerCampaign(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "a", "a"} {
		if err := svc.Record(ctx, Actor{}, EventCampaignUpdated, id, "edit "+id); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if err := svc.CallEnded(ctx, "a", "call_1", "completed", 42); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs, err := svc.Recent(ctx, "a", 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	if evs[0].Type != EventCallEnded || evs[0].Message != "completed after 42s" || evs[0].CallID != "call_1" {
		t.Fatalf("expected newest call event first, got %+v", evs[0])
	}
	if _, err := svc.Recent(ctx, "", 0); err == nil {
		t.Fatalf("expected error for empty campaign")
	}
}
