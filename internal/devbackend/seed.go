package devbackend

import (
	"time"

	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/gateway"
)

// Seed loads a small fixed data set: one draft, one running and one finished campaign,
// two premade voices and a handful of calls with and without recordings.
func (s *Store) Seed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()

	for _, name := range []string{"Rachel", "Adam"} {
		v := campaigns.Voice{
			ID:       "voice_" + name,
			Name:     name,
			Category: campaigns.VoicePremade,
			Settings: campaigns.VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		}
		s.voices[v.ID] = v
	}

	s.seedCampaign(campaigns.Campaign{
		ID:            "42",
		Name:          "Spring renewals",
		Status:        campaigns.StatusDraft,
		FirstPrompt:   "Hi {{firstName}}, this is Ava from Acme Insurance.",
		SystemPersona: "You are Ava, a friendly renewals assistant. Keep answers short.",
		CreatedAt:     now.Add(-48 * time.Hour),
	}, []campaigns.Lead{
		{FirstName: "Ann", LastName: "Lee", ContactNo: "+15550102030"},
		{FirstName: "Bo", LastName: "Ng", ContactNo: "+15550102031"},
		{FirstName: "Cy", LastName: "Diaz", ContactNo: "+15550102032"},
	})

	s.seedCampaign(campaigns.Campaign{
		ID:              "7",
		Name:            "Winter follow-ups",
		Status:          campaigns.StatusActive,
		FirstPrompt:     "Hello {{firstName}}, quick follow-up on your winter order.",
		SystemPersona:   "You are a polite order follow-up agent.",
		SelectedVoiceID: "voice_Rachel",
		CreatedAt:       now.Add(-72 * time.Hour),
	}, []campaigns.Lead{
		{FirstName: "Dee", LastName: "Eve", ContactNo: "+15550103040"},
		{FirstName: "Fay", LastName: "Gu", ContactNo: "+15550103041"},
	})
	s.seedCall("7", 0, calls.StatusInProgress, 0, now.Add(-2*time.Minute), false)
	s.seedCall("7", 1, calls.StatusCompleted, 95, now.Add(-3*time.Hour), true)

	s.seedCampaign(campaigns.Campaign{
		ID:          "9",
		Name:        "Holiday outreach",
		Status:      campaigns.StatusCompleted,
		FirstPrompt: "Season's greetings, {{firstName}}!",
		CreatedAt:   now.Add(-240 * time.Hour),
	}, []campaigns.Lead{
		{FirstName: "Hal", LastName: "Ito", ContactNo: "+15550104050"},
		{FirstName: "Ida", LastName: "Jo", ContactNo: "+15550104051"},
	})
	s.seedCall("9", 0, calls.StatusCompleted, 61, now.Add(-200*time.Hour), false)
	s.seedCall("9", 1, calls.StatusNoAnswer, 0, now.Add(-199*time.Hour), false)

	for id := range s.campaigns {
		s.recountLocked(id)
	}
}

func (s *Store) seedCampaign(c campaigns.Campaign, leads []campaigns.Lead) {
	c.UpdatedAt = c.CreatedAt
	for i := range leads {
		leads[i].ID = c.ID + "-lead-" + string(rune('a'+i))
		leads[i].CampaignID = c.ID
	}
	c.TotalLeads = len(leads)
	s.campaigns[c.ID] = &c
	s.leads[c.ID] = leads
}

func (s *Store) seedCall(campaignID string, leadIdx int, st calls.Status, seconds int, started time.Time, recorded bool) {
	lead := &s.leads[campaignID][leadIdx]
	lead.Status = st
	row := &calls.CallLog{
		ID:              s.id("call"),
		CampaignID:      campaignID,
		LeadID:          lead.ID,
		ContactNo:       lead.ContactNo,
		LeadName:        lead.FullName(),
		Status:          st,
		DurationSeconds: seconds,
		ProviderCallID:  "CAseed" + lead.ID,
		StartedAt:       started,
	}
	if st.Terminal() {
		ended := started.Add(time.Duration(seconds) * time.Second)
		row.EndedAt = &ended
	}
	if st == calls.StatusCompleted {
		row.ConversationID = "conv_" + row.ID
		conv := &conversation{details: gateway.ConversationDetails{
			ConversationID:  row.ConversationID,
			Status:          st,
			DurationSeconds: seconds,
			Summary:         "Lead confirmed interest.",
			Transcript: []gateway.TranscriptTurn{
				{Role: "agent", Message: "Hello " + lead.FirstName + "!", TimeSec: 0},
				{Role: "user", Message: "Hi, yes, go ahead.", TimeSec: 2.5},
			},
		}}
		if recorded {
			conv.audio = syntheticAudio(row.ID, seconds)
			conv.contentType = "audio/mpeg"
			conv.details.HasAudio = true
		}
		s.conversations[row.ConversationID] = conv
	}
	s.calls[row.ID] = row
	s.byProvider[row.ProviderCallID] = row.ID
}
