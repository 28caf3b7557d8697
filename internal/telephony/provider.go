package telephony

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"campaign-console/internal/calls"
)

var ErrInvalidDial = errors.New("telephony: campaign id, lead id and destination are required")

// Dialer places outbound calls on behalf of a campaign.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Results carry the provider call id; state changes arrive later through status callbacks.
type Dialer interface {
	Name() string
	Dial(ctx context.Context, req DialRequest) (DialResult, error)
}

type DialRequest struct {
	CampaignID string
	LeadID     string

	// To is E.164.
	To string

	// StatusCallbackURL receives provider status updates for this call.
	StatusCallbackURL string
}

func (r DialRequest) validate() error {
	if strings.TrimSpace(r.CampaignID) == "" || strings.TrimSpace(r.LeadID) == "" || strings.TrimSpace(r.To) == "" {
		return ErrInvalidDial
	}
	return nil
}

type DialResult struct {
	ProviderCallID string
	Status         calls.Status
}

// SimulatedDialer accepts every dial and reports it queued. The dev backend uses it
// in place of a carrier; callbacks are posted to the status webhook by hand or by tests.
type SimulatedDialer struct {
	mu     sync.Mutex
	placed []DialRequest
}

func (d *SimulatedDialer) Name() string { return "simulated" }

func (d *SimulatedDialer) Dial(ctx context.Context, req DialRequest) (DialResult, error) {
	if err := req.validate(); err != nil {
		return DialResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return DialResult{}, err
	}
	d.mu.Lock()
	d.placed = append(d.placed, req)
	d.mu.Unlock()
	return DialResult{
		ProviderCallID: "CA" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status:         calls.StatusInitiated,
	}, nil
}

// Placed returns a copy of every accepted dial request.
func (d *SimulatedDialer) Placed() []DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DialRequest, len(d.placed))
	copy(out, d.placed)
	return out
}
