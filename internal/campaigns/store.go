package campaigns

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"campaign-console/internal/cache"
)

var (
	ErrNotEditable = errors.New("campaigns: campaign is not editable")
	ErrNoSelection = errors.New("campaigns: no campaign selected")
	ErrSuperseded  = errors.New("campaigns: superseded by a newer operation")
	ErrInvalidID   = errors.New("campaigns: campaign id is required")
	ErrInvalidFile = errors.New("campaigns: file id is required")
)

// Backend is the subset of the gateway the store talks to.
type Backend interface {
	SelectCampaign(ctx context.Context, id string) (Details, error)
	UpdateCampaign(ctx context.Context, id string, patch CampaignPatch) (Campaign, error)
	UpdateAgent(ctx context.Context, id string, cfg AgentConfig) (Campaign, error)
	ImportLeads(ctx context.Context, campaignID string, leads []Lead) ([]Lead, error)
	StartCampaign(ctx context.Context, id string) (Campaign, error)
	PauseCampaign(ctx context.Context, id string) (Campaign, error)
}

// ResourceCache receives the authoritative results of store operations.
type ResourceCache interface {
	Set(key cache.Key, data any)
	Invalidate(prefix cache.Key) int
}

// State is the currently open campaign and its campaign-scoped data.
type State struct {
	Campaign *Campaign
	Leads    []Lead
	VoiceID  string

	// Selecting is the id of a selection in flight. Leads and voice are empty meanwhile.
	Selecting string
}

func (s State) Selected() bool { return s.Campaign != nil }

func (s State) clone() State {
	out := s
	if s.Campaign != nil {
		c := *s.Campaign
		c.KnowledgeBaseIDs = slices.Clone(s.Campaign.KnowledgeBaseIDs)
		out.Campaign = &c
	}
	out.Leads = slices.Clone(s.Leads)
	return out
}

// Store tracks the single open campaign. Every successful operation replaces local
// state with the server response; failures leave the prior state in place.
type Store struct {
	backend Backend
	cache   ResourceCache
	log     *slog.Logger

	mu    sync.Mutex
	state State

	// gen changes on every selection change; responses from an older gen are dropped.
	gen uint64
	// mseq orders mutations by issuance within one selection.
	mseq    uint64
	applied uint64

	subs    map[int]chan State
	nextSub int
}

func NewStore(backend Backend, rc ResourceCache, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		backend: backend,
		cache:   rc,
		log:     log.With("component", "campaign_store"),
		subs:    make(map[int]chan State),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Select opens campaign id. Leads and voice of the previous campaign are cleared
// before the request is sent.
func (s *Store) Select(ctx context.Context, id string) (Details, error) {
	if strings.TrimSpace(id) == "" {
		return Details{}, ErrInvalidID
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	prior := s.state
	s.state = State{Selecting: id}
	s.publishLocked()
	s.mu.Unlock()

	d, err := s.backend.SelectCampaign(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.log.Debug("dropping superseded selection", "campaign_id", id)
		return Details{}, ErrSuperseded
	}
	if err != nil {
		s.state = prior
		s.publishLocked()
		return Details{}, err
	}

	s.mseq, s.applied = 0, 0
	s.state = State{
		Campaign: &d.Campaign,
		Leads:    d.Leads,
		VoiceID:  d.Campaign.SelectedVoiceID,
	}
	if s.cache != nil {
		s.cache.Set(cache.Campaign(d.Campaign.ID), d.Campaign)
		s.cache.Set(cache.CampaignDetails(d.Campaign.ID), d)
	}
	s.publishLocked()
	return d, nil
}

// Deselect closes the open campaign. Pending selections and mutations are dropped on arrival.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = State{}
	s.publishLocked()
}

// Update applies a partial configuration change.
func (s *Store) Update(ctx context.Context, patch CampaignPatch) (Campaign, error) {
	return s.mutateCampaign(ctx, true, func(ctx context.Context, c Campaign) (Campaign, error) {
		return s.backend.UpdateCampaign(ctx, c.ID, patch)
	})
}

func (s *Store) AttachVoice(ctx context.Context, voiceID string) (Campaign, error) {
	return s.mutateCampaign(ctx, true, func(ctx context.Context, c Campaign) (Campaign, error) {
		cfg := AgentConfigOf(c)
		cfg.VoiceID = voiceID
		return s.backend.UpdateAgent(ctx, c.ID, cfg)
	})
}

func (s *Store) AttachKnowledgeBase(ctx context.Context, fileID string) (Campaign, error) {
	if strings.TrimSpace(fileID) == "" {
		return Campaign{}, ErrInvalidFile
	}
	return s.mutateCampaign(ctx, true, func(ctx context.Context, c Campaign) (Campaign, error) {
		cfg := AgentConfigOf(c)
		if !slices.Contains(cfg.KnowledgeBaseIDs, fileID) {
			cfg.KnowledgeBaseIDs = append(cfg.KnowledgeBaseIDs, fileID)
		}
		return s.backend.UpdateAgent(ctx, c.ID, cfg)
	})
}

// DetachKnowledgeBase removes fileID from the agent configuration. A file that is not
// attached is a no-op.
func (s *Store) DetachKnowledgeBase(ctx context.Context, fileID string) (Campaign, error) {
	if strings.TrimSpace(fileID) == "" {
		return Campaign{}, ErrInvalidFile
	}
	return s.mutateCampaign(ctx, true, func(ctx context.Context, c Campaign) (Campaign, error) {
		cfg := AgentConfigOf(c)
		if !slices.Contains(cfg.KnowledgeBaseIDs, fileID) {
			return c, nil
		}
		cfg.KnowledgeBaseIDs = slices.DeleteFunc(cfg.KnowledgeBaseIDs, func(id string) bool { return id == fileID })
		return s.backend.UpdateAgent(ctx, c.ID, cfg)
	})
}

// Start and Pause change the lifecycle status and are not subject to the edit guard.
func (s *Store) Start(ctx context.Context) (Campaign, error) {
	return s.mutateCampaign(ctx, false, func(ctx context.Context, c Campaign) (Campaign, error) {
		return s.backend.StartCampaign(ctx, c.ID)
	})
}

func (s *Store) Pause(ctx context.Context) (Campaign, error) {
	return s.mutateCampaign(ctx, false, func(ctx context.Context, c Campaign) (Campaign, error) {
		return s.backend.PauseCampaign(ctx, c.ID)
	})
}

// AttachLeads imports leads into the open campaign. The campaign's counters change
// server-side, so its cache entries are invalidated rather than written.
func (s *Store) AttachLeads(ctx context.Context, leads []Lead) ([]Lead, error) {
	c, gen, seq, err := s.begin(true)
	if err != nil {
		return nil, err
	}
	out, importErr := s.backend.ImportLeads(ctx, c.ID, leads)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen, seq); err != nil {
		return nil, err
	}
	if importErr != nil {
		return nil, importErr
	}
	s.applied = seq
	s.state.Leads = out
	if s.cache != nil {
		s.cache.Invalidate(cache.Campaign(c.ID))
	}
	s.publishLocked()
	return slices.Clone(out), nil
}

// Sync folds a campaign fetched elsewhere (e.g. by the poller) into the store when it
// is the open campaign. It reports whether the state changed.
func (s *Store) Sync(c Campaign) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Campaign == nil || s.state.Campaign.ID != c.ID {
		return false
	}
	s.state.Campaign = &c
	s.state.VoiceID = c.SelectedVoiceID
	s.publishLocked()
	return true
}

func (s *Store) begin(guard bool) (Campaign, uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Campaign == nil {
		return Campaign{}, 0, 0, ErrNoSelection
	}
	c := *s.state.Campaign
	c.KnowledgeBaseIDs = slices.Clone(c.KnowledgeBaseIDs)
	if guard && !CanEdit(c) {
		return Campaign{}, 0, 0, ErrNotEditable
	}
	s.mseq++
	return c, s.gen, s.mseq, nil
}

func (s *Store) checkLocked(gen, seq uint64) error {
	if gen != s.gen || seq < s.applied {
		return ErrSuperseded
	}
	return nil
}

func (s *Store) mutateCampaign(ctx context.Context, guard bool, call func(context.Context, Campaign) (Campaign, error)) (Campaign, error) {
	c, gen, seq, err := s.begin(guard)
	if err != nil {
		return Campaign{}, err
	}
	updated, callErr := call(ctx, c)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(gen, seq); err != nil {
		s.log.Debug("dropping superseded mutation", "campaign_id", c.ID)
		return Campaign{}, err
	}
	if callErr != nil {
		return Campaign{}, callErr
	}
	if updated.ID == "" {
		updated.ID = c.ID
	}

	s.applied = seq
	s.state.Campaign = &updated
	s.state.VoiceID = updated.SelectedVoiceID
	if s.cache != nil {
		s.cache.Set(cache.Campaign(updated.ID), updated)
		s.cache.Set(cache.CampaignDetails(updated.ID), Details{Campaign: updated, Leads: slices.Clone(s.state.Leads)})
	}
	s.publishLocked()
	return updated, nil
}

// Subscribe delivers the latest state after every change until cancel is called.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	ch := make(chan State, 1)
	s.subs[id] = ch
	ch <- s.state.clone()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

func (s *Store) publishLocked() {
	for _, ch := range s.subs {
		st := s.state.clone()
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- st
		}
	}
}
