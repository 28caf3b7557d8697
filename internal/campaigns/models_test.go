package campaigns

import (
	"errors"
	"math/rand"
	"testing"
)

func TestCanEdit_HoldsForGeneratedStates(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	statuses := []Status{StatusDraft, StatusActive, StatusPaused, StatusCompleted}

	for i := 0; i < 2000; i++ {
		total := rng.Intn(50)
		completed := 0
		if total > 0 {
			completed = rng.Intn(total + 1)
		}
		if rng.Intn(3) == 0 {
			completed = 0
		}
		c := Campaign{
			Status:         statuses[rng.Intn(len(statuses))],
			TotalLeads:     total,
			CompletedCalls: completed,
		}
		want := c.Status == StatusDraft && c.CompletedCalls == 0
		if got := CanEdit(c); got != want {
			t.Fatalf("CanEdit(%+v) = %v, want %v", c, got, want)
		}
	}
}

func TestCheckCounters(t *testing.T) {
	ok := Campaign{TotalLeads: 10, CompletedCalls: 6, SuccessfulCalls: 4, FailedCalls: 2}
	if err := ok.CheckCounters(); err != nil {
		t.Fatalf("expected valid counters, got %v", err)
	}

	over := Campaign{TotalLeads: 2, CompletedCalls: 3}
	if err := over.CheckCounters(); !errors.Is(err, ErrCounterInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}

	split := Campaign{TotalLeads: 10, CompletedCalls: 3, SuccessfulCalls: 2, FailedCalls: 2}
	if err := split.CheckCounters(); !errors.Is(err, ErrCounterInvariant) {
		t.Fatalf("expected invariant error, got %v", err)
	}
}

func TestAgentConfigOf_CopiesKnowledgeBase(t *testing.T) {
	c := Campaign{FirstPrompt: "hi", SystemPersona: "p", SelectedVoiceID: "v1", KnowledgeBaseIDs: []string{"kb1"}}
	cfg := AgentConfigOf(c)
	cfg.KnowledgeBaseIDs[0] = "changed"
	if c.KnowledgeBaseIDs[0] != "kb1" {
		t.Fatalf("expected a copy of the knowledge base ids")
	}
	if cfg.VoiceID != "v1" {
		t.Fatalf("unexpected voice %q", cfg.VoiceID)
	}
}

func TestSuccessRate(t *testing.T) {
	if (Campaign{}).SuccessRate() != 0 {
		t.Fatalf("expected zero")
	}
	if r := (Campaign{CompletedCalls: 4, SuccessfulCalls: 1}).SuccessRate(); r != 0.25 {
		t.Fatalf("expected 0.25, got %v", r)
	}
}
