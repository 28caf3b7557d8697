package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for activity events.
// It is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, campaignID string, limit int) ([]Event, error)
}

// Actor identifies who triggered an event.
type Actor struct {
	UserID string
	IP     string
}

// Service records the activity feed shown next to a campaign.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, clock: clock}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.CampaignID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event of type t made by actor.
func (s *Service) Record(ctx context.Context, a Actor, t EventType, campaignID, message string) error {
	return s.Append(ctx, Event{
		CampaignID:  campaignID,
		Type:        t,
		ActorUserID: a.UserID,
		IPAddress:   a.IP,
		Message:     message,
	})
}

// StatusChanged records a campaign lifecycle transition.
func (s *Service) StatusChanged(ctx context.Context, a Actor, campaignID, from, to string) error {
	return s.Record(ctx, a, EventStatusChanged, campaignID, fmt.Sprintf("%s -> %s", from, to))
}

// CallEnded records a call reaching a terminal status. Provider callbacks carry no actor.
func (s *Service) CallEnded(ctx context.Context, campaignID, callID, status string, seconds int) error {
	return s.Append(ctx, Event{
		CampaignID: campaignID,
		Type:       EventCallEnded,
		CallID:     callID,
		Message:    fmt.Sprintf("%s after %ds", status, seconds),
	})
}

// Recent returns a campaign's events, newest first. limit <= 0 means 50.
func (s *Service) Recent(ctx context.Context, campaignID string, limit int) ([]Event, error) {
	if campaignID == "" {
		return nil, ErrInvalidEvent
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, campaignID, limit)
}
