package calls

import "time"

// CallLog is one attempted call as reported by the backend.
//
// Rows are created and mutated server-side only; the console never originates one,
// it only asks the backend to initiate calls.
//
// ConversationID is the external conversation identifier used to fetch audio and
// transcripts. It may be empty long after the call completed.
type CallLog struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaignId"`
	LeadID     string `json:"leadId"`

	ContactNo string `json:"contactNo,omitempty"`
	LeadName  string `json:"leadName,omitempty"`

	Status Status `json:"status"`

	// DurationSeconds is the billed talk time.
	DurationSeconds int `json:"duration"`

	ProviderCallID string `json:"providerCallId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// ActiveCall is a call that is currently ringing or talking.
type ActiveCall struct {
	CallID     string    `json:"callId"`
	CampaignID string    `json:"campaignId"`
	LeadID     string    `json:"leadId"`
	ContactNo  string    `json:"contactNo"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
}

// Elapsed returns the talk time so far.
func (a ActiveCall) Elapsed(now time.Time) time.Duration {
	if a.StartedAt.IsZero() || now.Before(a.StartedAt) {
		return 0
	}
	return now.Sub(a.StartedAt)
}

// AudioState describes whether a recording can be requested for a call.
type AudioState int

const (
	AudioUnavailable AudioState = iota
	AudioPending
	AudioReady
)

// AudioState is derived from status and conversation id only.
// A completed call without a conversation id is pending, not broken.
func (c CallLog) AudioState() AudioState {
	if c.Status != StatusCompleted {
		return AudioUnavailable
	}
	if c.ConversationID == "" {
		return AudioPending
	}
	return AudioReady
}

// CanPlay reports whether the play affordance should be enabled.
func (c CallLog) CanPlay() bool { return c.AudioState() == AudioReady }
