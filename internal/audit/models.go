package audit

import "time"

// Event is an immutable, append-only record of something that happened to a campaign.
//
// Invariants:
// - Events are never updated or deleted.
// - CampaignID is required; every event belongs to one campaign.
// - Actor and IP capture are best-effort; a failed append never blocks the request.
type Event struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaignId"`
	Type       EventType `json:"type"`

	// ActorUserID is the operator causing the event. Provider callbacks have none.
	ActorUserID string `json:"actorUserId,omitempty"`
	IPAddress   string `json:"ipAddress,omitempty"`

	CallID string `json:"callId,omitempty"`

	// Message is a short human-readable description.
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type EventType string

const (
	EventCampaignCreated EventType = "campaign_created"
	EventCampaignUpdated EventType = "campaign_updated"
	EventAgentUpdated    EventType = "agent_updated"
	EventStatusChanged   EventType = "status_changed"
	EventLeadsImported   EventType = "leads_imported"
	EventCallPlaced      EventType = "call_placed"
	EventCallEnded       EventType = "call_ended"
)
