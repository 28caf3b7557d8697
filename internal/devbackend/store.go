package devbackend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/gateway"
	"campaign-console/internal/telephony"
)

var (
	ErrNotFound           = errors.New("devbackend: not found")
	ErrEmailTaken         = errors.New("devbackend: email already registered")
	ErrInvalidCredentials = errors.New("devbackend: invalid email or password")
	ErrNoLeads            = errors.New("devbackend: campaign has no leads")
	ErrInvalidTransition  = errors.New("devbackend: invalid status transition")
	ErrCampaignRunning    = errors.New("devbackend: campaign is running")
	ErrUnknownReference   = errors.New("devbackend: unknown voice or knowledge base file")
	ErrAudioMissing       = errors.New("devbackend: recording not available")
)

type account struct {
	user gateway.User
	hash []byte
}

type conversation struct {
	details     gateway.ConversationDetails
	audio       []byte
	contentType string
}

// Store is the dev backend's in-memory state. All methods are safe for concurrent use
// and return copies.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID int

	accounts      map[string]*account // by lower-cased email
	campaigns     map[string]*campaigns.Campaign
	leads         map[string][]campaigns.Lead // by campaign id
	files         map[string]campaigns.KnowledgeBaseEntry
	voices        map[string]campaigns.Voice
	calls         map[string]*calls.CallLog
	byProvider    map[string]string // provider call id -> call id
	conversations map[string]*conversation
	selected      map[string]string // user id -> campaign id
	settings      map[string]gateway.DashboardSettings
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:           now,
		nextID:        100,
		accounts:      map[string]*account{},
		campaigns:     map[string]*campaigns.Campaign{},
		leads:         map[string][]campaigns.Lead{},
		files:         map[string]campaigns.KnowledgeBaseEntry{},
		voices:        map[string]campaigns.Voice{},
		calls:         map[string]*calls.CallLog{},
		byProvider:    map[string]string{},
		conversations: map[string]*conversation{},
		selected:      map[string]string{},
		settings:      map[string]gateway.DashboardSettings{},
	}
}

func (s *Store) id(prefix string) string {
	s.nextID++
	if prefix == "" {
		return strconv.Itoa(s.nextID)
	}
	return prefix + "_" + strconv.Itoa(s.nextID)
}

/* ===================== ACCOUNTS ===================== */

func (s *Store) CreateUser(name, email, password string) (gateway.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return gateway.User{}, fmt.Errorf("devbackend: hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[key]; ok {
		return gateway.User{}, ErrEmailTaken
	}
	u := gateway.User{ID: s.id("usr"), Email: key, Name: strings.TrimSpace(name)}
	s.accounts[key] = &account{user: u, hash: hash}
	return u, nil
}

func (s *Store) Authenticate(email, password string) (gateway.User, error) {
	s.mu.RLock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()
	if !ok {
		return gateway.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return gateway.User{}, ErrInvalidCredentials
	}
	return acc.user, nil
}

func (s *Store) User(id string) (gateway.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, acc := range s.accounts {
		if acc.user.ID == id {
			return acc.user, nil
		}
	}
	return gateway.User{}, ErrNotFound
}

/* ===================== CAMPAIGNS ===================== */

func (s *Store) ListCampaigns() []campaigns.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]campaigns.Campaign, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		out = append(out, s.campaignLocked(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// campaignLocked returns a copy of c with an unaliased knowledge base slice.
func (s *Store) campaignLocked(c *campaigns.Campaign) campaigns.Campaign {
	out := *c
	out.KnowledgeBaseIDs = append([]string(nil), c.KnowledgeBaseIDs...)
	return out
}

func (s *Store) CreateCampaign(req gateway.CreateCampaignRequest) campaigns.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	c := &campaigns.Campaign{
		ID:            s.id(""),
		Name:          strings.TrimSpace(req.Name),
		Status:        campaigns.StatusDraft,
		FirstPrompt:   req.FirstPrompt,
		SystemPersona: req.SystemPersona,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.campaigns[c.ID] = c
	return s.campaignLocked(c)
}

func (s *Store) Details(id string) (campaigns.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detailsLocked(id)
}

func (s *Store) detailsLocked(id string) (campaigns.Details, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return campaigns.Details{}, ErrNotFound
	}
	leads := append([]campaigns.Lead{}, s.leads[id]...)
	return campaigns.Details{Campaign: s.campaignLocked(c), Leads: leads}, nil
}

// Select records id as the user's open campaign.
func (s *Store) Select(userID, id string) (campaigns.Details, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.detailsLocked(id)
	if err != nil {
		return campaigns.Details{}, err
	}
	s.selected[userID] = id
	return d, nil
}

func (s *Store) Selected(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[userID]
}

func (s *Store) editableLocked(id string) (*campaigns.Campaign, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !campaigns.CanEdit(*c) {
		return nil, campaigns.ErrNotEditable
	}
	return c, nil
}

func (s *Store) PatchCampaign(id string, p campaigns.CampaignPatch) (campaigns.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.editableLocked(id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if p.Name != nil {
		c.Name = strings.TrimSpace(*p.Name)
	}
	if p.FirstPrompt != nil {
		c.FirstPrompt = *p.FirstPrompt
	}
	if p.SystemPersona != nil {
		c.SystemPersona = *p.SystemPersona
	}
	c.UpdatedAt = s.now().UTC()
	return s.campaignLocked(c), nil
}

func (s *Store) UpdateAgent(id string, cfg campaigns.AgentConfig) (campaigns.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.editableLocked(id)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	if cfg.VoiceID != "" {
		if _, ok := s.voices[cfg.VoiceID]; !ok {
			return campaigns.Campaign{}, fmt.Errorf("%w: voice %q", ErrUnknownReference, cfg.VoiceID)
		}
	}
	for _, kb := range cfg.KnowledgeBaseIDs {
		if _, ok := s.files[kb]; !ok {
			return campaigns.Campaign{}, fmt.Errorf("%w: file %q", ErrUnknownReference, kb)
		}
	}
	c.FirstPrompt = cfg.FirstPrompt
	c.SystemPersona = cfg.SystemPersona
	c.SelectedVoiceID = cfg.VoiceID
	c.KnowledgeBaseIDs = append([]string(nil), cfg.KnowledgeBaseIDs...)
	c.UpdatedAt = s.now().UTC()
	return s.campaignLocked(c), nil
}

func (s *Store) DeleteCampaign(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status == campaigns.StatusActive {
		return ErrCampaignRunning
	}
	delete(s.campaigns, id)
	delete(s.leads, id)
	for user, sel := range s.selected {
		if sel == id {
			delete(s.selected, user)
		}
	}
	return nil
}

// SetStatus moves a campaign between lifecycle states.
// Allowed: draft|paused -> active (with leads), active -> paused.
func (s *Store) SetStatus(id string, to campaigns.Status) (campaigns.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return campaigns.Campaign{}, ErrNotFound
	}
	switch {
	case to == campaigns.StatusActive && (c.Status == campaigns.StatusDraft || c.Status == campaigns.StatusPaused):
		if len(s.leads[id]) == 0 {
			return campaigns.Campaign{}, ErrNoLeads
		}
	case to == campaigns.StatusPaused && c.Status == campaigns.StatusActive:
	case to == c.Status:
		return s.campaignLocked(c), nil
	default:
		return campaigns.Campaign{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
	}
	c.Status = to
	c.UpdatedAt = s.now().UTC()
	return s.campaignLocked(c), nil
}

/* ===================== LEADS ===================== */

// ImportLeads appends leads to an editable campaign, skipping contact numbers it already has.
func (s *Store) ImportLeads(campaignID string, in []campaigns.Lead) (gateway.LeadUploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.editableLocked(campaignID)
	if err != nil {
		return gateway.LeadUploadResult{}, err
	}
	have := map[string]bool{}
	for _, l := range s.leads[campaignID] {
		have[l.ContactNo] = true
	}
	var res gateway.LeadUploadResult
	for _, l := range in {
		if have[l.ContactNo] {
			res.Skipped++
			continue
		}
		have[l.ContactNo] = true
		l.ID = s.id("lead")
		l.CampaignID = campaignID
		l.Status = ""
		s.leads[campaignID] = append(s.leads[campaignID], l)
		res.Imported++
	}
	c.TotalLeads = len(s.leads[campaignID])
	c.UpdatedAt = s.now().UTC()
	res.Leads = append([]campaigns.Lead{}, s.leads[campaignID]...)
	return res, nil
}

// PendingLeads returns leads that have never been dialed.
func (s *Store) PendingLeads(campaignID string) []campaigns.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []campaigns.Lead
	for _, l := range s.leads[campaignID] {
		if l.Status == "" {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) Lead(campaignID, leadID string) (campaigns.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.leads[campaignID] {
		if l.ID == leadID {
			return l, nil
		}
	}
	return campaigns.Lead{}, ErrNotFound
}

/* ===================== FILES & VOICES ===================== */

func (s *Store) AddKnowledgeBase(campaignID, fileName string, size int64) (campaigns.KnowledgeBaseEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if campaignID != "" {
		if _, ok := s.campaigns[campaignID]; !ok {
			return campaigns.KnowledgeBaseEntry{}, ErrNotFound
		}
	}
	e := campaigns.KnowledgeBaseEntry{
		ID:         s.id("kb"),
		FileName:   fileName,
		CampaignID: campaignID,
		SizeBytes:  size,
		UploadedAt: s.now().UTC(),
	}
	s.files[e.ID] = e
	return e, nil
}

// DeleteKnowledgeBase removes the file and detaches it from every campaign.
func (s *Store) DeleteKnowledgeBase(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; !ok {
		return ErrNotFound
	}
	delete(s.files, id)
	for _, c := range s.campaigns {
		kept := c.KnowledgeBaseIDs[:0]
		for _, kb := range c.KnowledgeBaseIDs {
			if kb != id {
				kept = append(kept, kb)
			}
		}
		c.KnowledgeBaseIDs = kept
	}
	return nil
}

func (s *Store) Voices() []campaigns.Voice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]campaigns.Voice, 0, len(s.voices))
	for _, v := range s.voices {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) AddVoice(name string, category campaigns.VoiceCategory) campaigns.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := campaigns.Voice{
		ID:       s.id("voice"),
		Name:     strings.TrimSpace(name),
		Category: category,
		Settings: campaigns.VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75, SpeakerBoost: true},
	}
	s.voices[v.ID] = v
	return v
}

/* ===================== CALLS ===================== */

// RecordDial creates the call log for a placed call and marks the lead as dialed.
func (s *Store) RecordDial(campaignID, leadID string, res telephony.DialResult) (calls.CallLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lead *campaigns.Lead
	for i := range s.leads[campaignID] {
		if s.leads[campaignID][i].ID == leadID {
			lead = &s.leads[campaignID][i]
		}
	}
	if lead == nil {
		return calls.CallLog{}, ErrNotFound
	}
	row := &calls.CallLog{
		ID:             s.id("call"),
		CampaignID:     campaignID,
		LeadID:         leadID,
		ContactNo:      lead.ContactNo,
		LeadName:       lead.FullName(),
		Status:         res.Status,
		ProviderCallID: res.ProviderCallID,
		StartedAt:      s.now().UTC(),
	}
	s.calls[row.ID] = row
	if row.ProviderCallID != "" {
		s.byProvider[row.ProviderCallID] = row.ID
	}
	lead.Status = row.Status
	return *row, nil
}

// ApplyStatus folds a provider callback into the matching call. It reports whether
// the call became terminal with this callback.
func (s *Store) ApplyStatus(cb telephony.StatusCallback, now time.Time) (calls.CallLog, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byProvider[cb.CallSid]
	if !ok {
		return calls.CallLog{}, false, telephony.ErrUnknownCall
	}
	row := s.calls[id]
	wasTerminal := row.Status.Terminal()
	*row = cb.Apply(*row, now)
	ended := !wasTerminal && row.Status.Terminal()

	if ended && row.Status == calls.StatusCompleted {
		row.ConversationID = "conv_" + row.ID
		conv := &conversation{details: gateway.ConversationDetails{
			ConversationID:  row.ConversationID,
			Status:          row.Status,
			DurationSeconds: row.DurationSeconds,
		}}
		if cb.RecordingSid != "" {
			conv.audio = syntheticAudio(row.ID, row.DurationSeconds)
			conv.contentType = "audio/mpeg"
			conv.details.HasAudio = true
		}
		s.conversations[row.ConversationID] = conv
	}
	for i := range s.leads[row.CampaignID] {
		if s.leads[row.CampaignID][i].ID == row.LeadID {
			s.leads[row.CampaignID][i].Status = row.Status
		}
	}
	if ended {
		s.recountLocked(row.CampaignID)
	}
	return *row, ended, nil
}

// recountLocked derives the campaign counters from the latest call per lead and
// completes an active campaign once every lead reached a terminal state.
func (s *Store) recountLocked(campaignID string) {
	c, ok := s.campaigns[campaignID]
	if !ok {
		return
	}
	latest := map[string]*calls.CallLog{}
	for _, row := range s.calls {
		if row.CampaignID != campaignID {
			continue
		}
		if prev, ok := latest[row.LeadID]; !ok || row.StartedAt.After(prev.StartedAt) {
			latest[row.LeadID] = row
		}
	}

	c.CompletedCalls, c.SuccessfulCalls, c.FailedCalls = 0, 0, 0
	talk := 0
	for _, row := range latest {
		if !row.Status.Terminal() {
			continue
		}
		c.CompletedCalls++
		if row.Status.Successful() {
			c.SuccessfulCalls++
			talk += row.DurationSeconds
		} else {
			c.FailedCalls++
		}
	}
	c.AverageDuration = 0
	if c.SuccessfulCalls > 0 {
		c.AverageDuration = float64(talk) / float64(c.SuccessfulCalls)
	}
	if c.Status == campaigns.StatusActive && c.TotalLeads > 0 && c.CompletedCalls == c.TotalLeads {
		c.Status = campaigns.StatusCompleted
	}
	c.UpdatedAt = s.now().UTC()
}

func (s *Store) Call(id string) (calls.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.calls[id]
	if !ok {
		return calls.CallLog{}, ErrNotFound
	}
	return *row, nil
}

func (s *Store) ActiveCalls(campaignID string) []calls.ActiveCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []calls.ActiveCall
	for _, row := range s.calls {
		if !row.Status.Live() || (campaignID != "" && row.CampaignID != campaignID) {
			continue
		}
		out = append(out, calls.ActiveCall{
			CallID:     row.ID,
			CampaignID: row.CampaignID,
			LeadID:     row.LeadID,
			ContactNo:  row.ContactNo,
			Status:     row.Status,
			StartedAt:  row.StartedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// History returns the campaign's calls, newest first.
func (s *Store) History(campaignID string) []calls.CallLog {
	rows, _ := s.ListCalls(context.Background(), campaignID, time.Time{}, time.Time{})
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartedAt.After(rows[j].StartedAt) })
	return rows
}

// ListCalls returns calls started in [from, to). Zero bounds are open.
func (s *Store) ListCalls(ctx context.Context, campaignID string, from, to time.Time) ([]calls.CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]calls.CallLog, 0, len(s.calls))
	for _, row := range s.calls {
		if campaignID != "" && row.CampaignID != campaignID {
			continue
		}
		if !from.IsZero() && row.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !row.StartedAt.Before(to) {
			continue
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GreetingFor resolves the greeting for a placed call from its campaign's first prompt.
func (s *Store) GreetingFor(ctx context.Context, providerCallID string) (telephony.Greeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byProvider[providerCallID]
	if !ok {
		return telephony.Greeting{}, telephony.ErrUnknownCall
	}
	row := s.calls[id]
	c, ok := s.campaigns[row.CampaignID]
	if !ok {
		return telephony.Greeting{}, telephony.ErrUnknownCall
	}
	text := strings.TrimSpace(c.FirstPrompt)
	if text == "" {
		text = "Hello, this is a call from " + c.Name + "."
	}
	first, _, _ := strings.Cut(row.LeadName, " ")
	text = strings.ReplaceAll(text, "{{firstName}}", first)
	return telephony.Greeting{Text: text, PauseSeconds: 1}, nil
}

func (s *Store) Conversation(id string) (gateway.ConversationDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return gateway.ConversationDetails{}, ErrNotFound
	}
	d := conv.details
	d.Transcript = append([]gateway.TranscriptTurn{}, conv.details.Transcript...)
	return d, nil
}

// Audio returns the recording bytes. A known conversation without a recording is ErrAudioMissing.
func (s *Store) Audio(id string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	if len(conv.audio) == 0 {
		return nil, "", ErrAudioMissing
	}
	return conv.audio, conv.contentType, nil
}

/* ===================== SETTINGS ===================== */

func (s *Store) Settings(userID string) gateway.DashboardSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settingsLocked(userID)
}

func (s *Store) settingsLocked(userID string) gateway.DashboardSettings {
	st, ok := s.settings[userID]
	if !ok {
		show := true
		return gateway.DashboardSettings{RangeDays: 30, ShowFailedCalls: &show}
	}
	return st
}

// MergeSettings applies the non-zero fields of in over the user's current settings.
func (s *Store) MergeSettings(userID string, in gateway.DashboardSettings) gateway.DashboardSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.settingsLocked(userID)
	if in.DefaultCampaignID != "" {
		cur.DefaultCampaignID = in.DefaultCampaignID
	}
	if in.RangeDays > 0 {
		cur.RangeDays = in.RangeDays
	}
	if in.ShowFailedCalls != nil {
		v := *in.ShowFailedCalls
		cur.ShowFailedCalls = &v
	}
	s.settings[userID] = cur
	return cur
}

// syntheticAudio is a deterministic placeholder recording: an ID3 tag header and filler.
func syntheticAudio(callID string, seconds int) []byte {
	out := []byte("ID3\x03\x00\x00\x00\x00\x00\x00")
	filler := []byte("dev-recording:" + callID + ";")
	for n := 0; n < seconds+1; n++ {
		out = append(out, filler...)
	}
	return out
}
