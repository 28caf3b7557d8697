package campaigns

import (
	"errors"
	"fmt"
	"time"

	"campaign-console/internal/calls"
)

// Campaign mirrors the backend campaign resource.
//
// Counter invariants:
// - CompletedCalls <= TotalLeads
// - SuccessfulCalls + FailedCalls <= CompletedCalls
type Campaign struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`

	FirstPrompt      string   `json:"firstPrompt"`
	SystemPersona    string   `json:"systemPersona"`
	SelectedVoiceID  string   `json:"selectedVoiceId,omitempty"`
	KnowledgeBaseIDs []string `json:"knowledgeBaseIds,omitempty"`

	TotalLeads      int     `json:"totalLeads"`
	CompletedCalls  int     `json:"completedCalls"`
	SuccessfulCalls int     `json:"successfulCalls"`
	FailedCalls     int     `json:"failedCalls"`
	AverageDuration float64 `json:"averageDuration"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusPaused, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanEdit is the client-side edit guard. The backend re-checks and is authoritative.
func CanEdit(c Campaign) bool {
	return c.Status == StatusDraft && c.CompletedCalls == 0
}

var ErrCounterInvariant = errors.New("campaigns: counter invariant violated")

// CheckCounters validates the aggregate counters reported by the backend.
func (c Campaign) CheckCounters() error {
	if c.CompletedCalls > c.TotalLeads {
		return fmt.Errorf("%w: completed %d > total leads %d", ErrCounterInvariant, c.CompletedCalls, c.TotalLeads)
	}
	if c.SuccessfulCalls+c.FailedCalls > c.CompletedCalls {
		return fmt.Errorf("%w: successful %d + failed %d > completed %d", ErrCounterInvariant, c.SuccessfulCalls, c.FailedCalls, c.CompletedCalls)
	}
	return nil
}

// SuccessRate is successful/completed, zero when nothing completed.
func (c Campaign) SuccessRate() float64 {
	if c.CompletedCalls == 0 {
		return 0
	}
	return float64(c.SuccessfulCalls) / float64(c.CompletedCalls)
}

// Lead belongs to exactly one campaign.
type Lead struct {
	ID         string       `json:"id,omitempty"`
	CampaignID string       `json:"campaignId,omitempty"`
	FirstName  string       `json:"firstName" validate:"required,max=100"`
	LastName   string       `json:"lastName" validate:"max=100"`
	ContactNo  string       `json:"contactNo" validate:"required,e164"`
	Status     calls.Status `json:"status,omitempty"`
}

func (l Lead) FullName() string {
	if l.LastName == "" {
		return l.FirstName
	}
	return l.FirstName + " " + l.LastName
}

// Details is the campaign-scoped bundle returned by the details and select endpoints.
type Details struct {
	Campaign Campaign `json:"campaign"`
	Leads    []Lead   `json:"leads"`
}

// CampaignPatch is a partial campaign configuration update. Nil fields are left unchanged.
type CampaignPatch struct {
	Name          *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	FirstPrompt   *string `json:"firstPrompt,omitempty" validate:"omitempty,min=1,max=2000"`
	SystemPersona *string `json:"systemPersona,omitempty" validate:"omitempty,min=1,max=8000"`
}

func (p CampaignPatch) Empty() bool {
	return p.Name == nil && p.FirstPrompt == nil && p.SystemPersona == nil
}

// AgentConfig is the body of the update-agent endpoint.
type AgentConfig struct {
	FirstPrompt      string   `json:"firstPrompt" validate:"max=2000"`
	SystemPersona    string   `json:"systemPersona" validate:"max=8000"`
	VoiceID          string   `json:"voiceId" validate:"max=128"`
	KnowledgeBaseIDs []string `json:"knowledgeBaseIds" validate:"dive,required"`
}

// AgentConfigOf extracts the agent configuration currently stored on c.
func AgentConfigOf(c Campaign) AgentConfig {
	kb := make([]string, len(c.KnowledgeBaseIDs))
	copy(kb, c.KnowledgeBaseIDs)
	return AgentConfig{
		FirstPrompt:      c.FirstPrompt,
		SystemPersona:    c.SystemPersona,
		VoiceID:          c.SelectedVoiceID,
		KnowledgeBaseIDs: kb,
	}
}

// Voice is a reusable synthesis profile. Campaigns reference it by id.
type Voice struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Category VoiceCategory `json:"category"`
	Settings VoiceSettings `json:"settings"`
}

type VoiceCategory string

const (
	VoiceCloned  VoiceCategory = "cloned"
	VoicePremade VoiceCategory = "premade"
)

type VoiceSettings struct {
	Stability       float64 `json:"stability" validate:"gte=0,lte=1"`
	SimilarityBoost float64 `json:"similarityBoost" validate:"gte=0,lte=1"`
	Style           float64 `json:"style" validate:"gte=0,lte=1"`
	SpeakerBoost    bool    `json:"useSpeakerBoost"`
}

// KnowledgeBaseEntry is an uploaded PDF associated with zero or one campaign.
type KnowledgeBaseEntry struct {
	ID         string    `json:"id"`
	FileName   string    `json:"fileName"`
	CampaignID string    `json:"campaignId,omitempty"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedAt time.Time `json:"uploadedAt"`
}
