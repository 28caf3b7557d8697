package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/getsentry/sentry-go"

	"campaign-console/internal/audit"
	"campaign-console/internal/auth"
	"campaign-console/internal/cache"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/config"
	"campaign-console/internal/gateway"
	"campaign-console/internal/leads"
	"campaign-console/internal/notify"
	"campaign-console/internal/playback"
	"campaign-console/internal/poller"
)

var ErrClosed = errors.New("console: closed")

type Options struct {
	Config config.Config
	Logger *slog.Logger

	// HTTPClient overrides the gateway's default cookie-jar client.
	HTTPClient *http.Client
	// Clock drives the poller. Nil uses real tickers.
	Clock poller.Clock
	// Player plays recordings. Nil holds the handle until stopped.
	Player   playback.Player
	AudioDir string

	// Sink receives operator-facing notifications.
	Sink func(notify.Notification)
	Hub  *sentry.Hub

	// OnCadence runs after every poller transition.
	OnCadence func(poller.Cadence)
}

// Console is the composed client runtime: one session, one cache, one open campaign,
// one poller and at most one playing recording.
type Console struct {
	log *slog.Logger

	Gateway   *gateway.Client
	Auth      *auth.Authenticator
	Cache     *cache.Cache
	Campaigns *campaigns.Store
	Poller    *poller.Poller
	Playback  *playback.Coordinator
	Notifier  *notify.Notifier
	parser    *leads.Parser

	mu       sync.Mutex
	closed   bool
	unfollow func()

	bg     context.Context
	stopBg context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Console, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := opts.Config

	gw, err := gateway.New(gateway.Options{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: opts.HTTPClient,
		Timeout:    cfg.API.RequestTimeout,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}

	rc := cache.New(cache.Options{FetchTimeout: cfg.API.RequestTimeout, Logger: log})
	bg, stop := context.WithCancel(context.Background())
	c := &Console{
		log:       log.With("component", "console"),
		Gateway:   gw,
		Cache:     rc,
		Campaigns: campaigns.NewStore(gw, rc, log),
		Poller: poller.New(gw, rc, cfg.Polling, poller.Options{
			Clock:        opts.Clock,
			Logger:       log,
			OnTransition: opts.OnCadence,
		}),
		Playback: playback.NewCoordinator(gw, playback.Options{Player: opts.Player, Dir: opts.AudioDir, Logger: log}),
		Notifier: notify.New(notify.Options{Sink: opts.Sink, Logger: log, Hub: opts.Hub}),
		parser:   leads.NewParser(leads.Options{}),
		bg:       bg,
		stopBg:   stop,
	}

	demo := auth.NewDemoStrategy(cfg)
	c.Auth = auth.NewAuthenticator(auth.NewRemoteStrategy(gw), demo, cfg.API.AuthCheckTimeout, log)
	gw.SetOnUnauthorized(c.Auth.Expire)
	c.Auth.OnChange(c.sessionChanged)

	states, cancel := c.Campaigns.Subscribe()
	c.wg.Add(1)
	go c.drivePoller(states, cancel)
	return c, nil
}

// drivePoller keeps the poller in step with the open campaign's status.
func (c *Console) drivePoller(states <-chan campaigns.State, cancel func()) {
	defer c.wg.Done()
	defer cancel()
	for {
		select {
		case <-c.bg.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if st.Campaign != nil {
				c.Poller.Follow(*st.Campaign)
			} else {
				c.Poller.Stop()
			}
		}
	}
}

// sessionChanged tears campaign state down when the session ends. It may run on a
// poller goroutine via the gateway's 401 hook, so the teardown is asynchronous.
func (c *Console) sessionChanged(s auth.Session) {
	if s.Authenticated {
		return
	}
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.wg.Add(1)
	}
	c.mu.Unlock()
	if closed {
		return
	}
	go func() {
		defer c.wg.Done()
		c.reset()
	}()
}

// reset drops everything scoped to the signed-in operator.
func (c *Console) reset() {
	c.unfollowCampaign()
	c.Campaigns.Deselect()
	c.Poller.Stop()
	c.Playback.Stop()
	c.Cache.Purge(cache.K())
}

func (c *Console) report(ctx context.Context, op string, err error) error {
	if err != nil {
		c.Notifier.Report(auth.WithSession(ctx, c.Auth.Session()), op, err)
	}
	return err
}

func (c *Console) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

/* ===================== SESSION ===================== */

// Start resolves the session at startup. It never fails; see auth.Authenticator.Check.
func (c *Console) Start(ctx context.Context) auth.Session {
	return c.Auth.Check(ctx)
}

func (c *Console) Login(ctx context.Context, email, password string) (auth.Session, error) {
	s, err := c.Auth.Login(ctx, email, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return auth.Session{}, err
	}
	return s, c.report(ctx, "login", err)
}

func (c *Console) Logout(ctx context.Context) error {
	c.reset()
	return c.report(ctx, "logout", c.Auth.Logout(ctx))
}

/* ===================== CAMPAIGNS ===================== */

func (c *Console) ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error) {
	out, err := cache.Get(ctx, c.Cache, cache.CampaignList, c.Gateway.ListCampaigns)
	return out, c.report(ctx, "list_campaigns", err)
}

func (c *Console) CreateCampaign(ctx context.Context, req gateway.CreateCampaignRequest) (campaigns.Campaign, error) {
	camp, err := c.Gateway.CreateCampaign(ctx, req)
	if err != nil {
		return campaigns.Campaign{}, c.report(ctx, "create_campaign", err)
	}
	c.Cache.Invalidate(cache.CampaignList)
	return camp, nil
}

func (c *Console) DeleteCampaign(ctx context.Context, id string) error {
	if err := c.Gateway.DeleteCampaign(ctx, id); err != nil {
		return c.report(ctx, "delete_campaign", err)
	}
	if st := c.Campaigns.State(); st.Campaign != nil && st.Campaign.ID == id {
		c.unfollowCampaign()
		c.Campaigns.Deselect()
	}
	c.Cache.Invalidate(cache.CampaignList)
	return nil
}

// Open selects campaign id and starts following it: details fetched by the poller are
// folded into the store, and the store's status drives the poller. The previous
// campaign stays followed until the new selection succeeds, so a failed Open leaves
// it fully live.
func (c *Console) Open(ctx context.Context, id string) (campaigns.Details, error) {
	if c.isClosed() {
		return campaigns.Details{}, ErrClosed
	}
	d, err := c.Campaigns.Select(ctx, id)
	if err != nil {
		return campaigns.Details{}, c.report(ctx, "select_campaign", err)
	}
	c.followCampaign(d.Campaign.ID)
	return d, nil
}

func (c *Console) CloseCampaign() {
	c.unfollowCampaign()
	c.Campaigns.Deselect()
	c.Playback.Stop()
}

func (c *Console) followCampaign(id string) {
	c.unfollowCampaign()
	snaps, cancel := c.Cache.Subscribe(cache.CampaignDetails(id))
	done := make(chan struct{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return
	}
	c.unfollow = func() {
		cancel()
		<-done
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer close(done)
		for snap := range snaps {
			if d, ok := snap.Data.(campaigns.Details); ok && snap.HasData() {
				c.Campaigns.Sync(d.Campaign)
			}
		}
	}()
}

func (c *Console) unfollowCampaign() {
	c.mu.Lock()
	fn := c.unfollow
	c.unfollow = nil
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Console) UpdateCampaign(ctx context.Context, patch campaigns.CampaignPatch) (campaigns.Campaign, error) {
	out, err := c.Campaigns.Update(ctx, patch)
	return out, c.report(ctx, "update_campaign", err)
}

func (c *Console) AttachVoice(ctx context.Context, voiceID string) (campaigns.Campaign, error) {
	out, err := c.Campaigns.AttachVoice(ctx, voiceID)
	return out, c.report(ctx, "attach_voice", err)
}

// UploadKnowledgeBase uploads a PDF and attaches it to the open campaign.
func (c *Console) UploadKnowledgeBase(ctx context.Context, f gateway.FileUpload) (campaigns.Campaign, error) {
	st := c.Campaigns.State()
	if st.Campaign == nil {
		return campaigns.Campaign{}, c.report(ctx, "upload_knowledge_base", campaigns.ErrNoSelection)
	}
	if !campaigns.CanEdit(*st.Campaign) {
		return campaigns.Campaign{}, c.report(ctx, "upload_knowledge_base", campaigns.ErrNotEditable)
	}
	entry, err := c.Gateway.UploadPDF(ctx, st.Campaign.ID, f)
	if err != nil {
		return campaigns.Campaign{}, c.report(ctx, "upload_knowledge_base", err)
	}
	out, err := c.Campaigns.AttachKnowledgeBase(ctx, entry.ID)
	return out, c.report(ctx, "attach_knowledge_base", err)
}

// RemoveKnowledgeBase detaches a file from the open campaign's agent and deletes it.
func (c *Console) RemoveKnowledgeBase(ctx context.Context, fileID string) (campaigns.Campaign, error) {
	out, err := c.Campaigns.DetachKnowledgeBase(ctx, fileID)
	if err != nil {
		return campaigns.Campaign{}, c.report(ctx, "detach_knowledge_base", err)
	}
	return out, c.report(ctx, "delete_knowledge_base", c.Gateway.DeleteKnowledgeBase(ctx, fileID))
}

// ImportLeadSheet parses a CSV or XLSX sheet and attaches its rows to the open campaign.
// Rows that fail validation are returned, not uploaded.
func (c *Console) ImportLeadSheet(ctx context.Context, filename string, r io.Reader) ([]campaigns.Lead, []leads.RowError, error) {
	res, err := c.parser.Parse(filename, r)
	if err != nil {
		return nil, nil, c.report(ctx, "import_leads", &gateway.ValidationError{Fields: map[string]string{"file": err.Error()}})
	}
	out, err := c.Campaigns.AttachLeads(ctx, res.Leads)
	if err != nil {
		return nil, res.Skipped, c.report(ctx, "import_leads", err)
	}
	return out, res.Skipped, nil
}

func (c *Console) StartCampaign(ctx context.Context) (campaigns.Campaign, error) {
	out, err := c.Campaigns.Start(ctx)
	if err == nil {
		c.Cache.Invalidate(cache.CampaignList)
	}
	return out, c.report(ctx, "start_campaign", err)
}

func (c *Console) PauseCampaign(ctx context.Context) (campaigns.Campaign, error) {
	out, err := c.Campaigns.Pause(ctx)
	if err == nil {
		c.Cache.Invalidate(cache.CampaignList)
	}
	return out, c.report(ctx, "pause_campaign", err)
}

// Activity returns the open campaign's recent activity feed. It is not cached.
func (c *Console) Activity(ctx context.Context, limit int) ([]audit.Event, error) {
	st := c.Campaigns.State()
	if st.Campaign == nil {
		return nil, c.report(ctx, "activity", campaigns.ErrNoSelection)
	}
	out, err := c.Gateway.CampaignActivity(ctx, st.Campaign.ID, limit)
	return out, c.report(ctx, "activity", err)
}

/* ===================== CALLS ===================== */

// Refresh revalidates the open campaign's calls now.
func (c *Console) Refresh(ctx context.Context) error {
	err := c.Poller.Refresh(ctx)
	if errors.Is(err, poller.ErrNotFollowing) {
		st := c.Campaigns.State()
		if st.Campaign == nil {
			return nil
		}
		_, err = c.Cache.Revalidate(ctx, cache.CallHistory(st.Campaign.ID), func(ctx context.Context) (any, error) {
			return c.Gateway.CallHistory(ctx, st.Campaign.ID)
		})
	}
	return c.report(ctx, "refresh", err)
}

// ActiveCalls returns the last polled live calls of the open campaign.
func (c *Console) ActiveCalls() []calls.ActiveCall {
	st := c.Campaigns.State()
	if st.Campaign == nil {
		return nil
	}
	out, _ := cache.Peek[[]calls.ActiveCall](c.Cache, cache.ActiveCalls(st.Campaign.ID))
	return out
}

func (c *Console) CallHistory(ctx context.Context) ([]calls.CallLog, error) {
	st := c.Campaigns.State()
	if st.Campaign == nil {
		return nil, c.report(ctx, "call_history", campaigns.ErrNoSelection)
	}
	id := st.Campaign.ID
	out, err := cache.Get(ctx, c.Cache, cache.CallHistory(id), func(ctx context.Context) ([]calls.CallLog, error) {
		return c.Gateway.CallHistory(ctx, id)
	})
	return out, c.report(ctx, "call_history", err)
}

func (c *Console) InitiateCall(ctx context.Context, leadID string) (calls.CallLog, error) {
	st := c.Campaigns.State()
	if st.Campaign == nil {
		return calls.CallLog{}, c.report(ctx, "initiate_call", campaigns.ErrNoSelection)
	}
	row, err := c.Gateway.InitiateCall(ctx, st.Campaign.ID, leadID)
	if err != nil {
		return calls.CallLog{}, c.report(ctx, "initiate_call", err)
	}
	c.Cache.Invalidate(cache.ActiveCalls(st.Campaign.ID))
	c.Cache.Invalidate(cache.CallHistory(st.Campaign.ID))
	return row, nil
}

// CallStatus fetches one call's current row and writes it into the campaign's history.
func (c *Console) CallStatus(ctx context.Context, callID string) (calls.CallLog, error) {
	row, err := c.Gateway.CallStatus(ctx, callID)
	if err != nil {
		return calls.CallLog{}, c.report(ctx, "call_status", err)
	}
	if hist, ok := cache.Peek[[]calls.CallLog](c.Cache, cache.CallHistory(row.CampaignID)); ok {
		next := make([]calls.CallLog, len(hist))
		copy(next, hist)
		for i := range next {
			if next[i].ID == row.ID {
				next[i] = row
				c.Cache.Set(cache.CallHistory(row.CampaignID), next)
				break
			}
		}
	}
	return row, nil
}

// Transcript returns the conversation behind a call row. Calls that never connected have
// none and yield an empty result. Finished conversations are cached.
func (c *Console) Transcript(ctx context.Context, row calls.CallLog) (gateway.ConversationDetails, error) {
	if row.ConversationID == "" {
		return gateway.ConversationDetails{}, nil
	}
	if !row.Status.Terminal() {
		out, err := c.Gateway.ConversationDetails(ctx, row.ConversationID)
		return out, c.report(ctx, "transcript", err)
	}
	out, err := cache.Get(ctx, c.Cache, cache.Conversation(row.ConversationID), func(ctx context.Context) (gateway.ConversationDetails, error) {
		return c.Gateway.ConversationDetails(ctx, row.ConversationID)
	})
	return out, c.report(ctx, "transcript", err)
}

// TogglePlayback plays or stops the recording of a call row.
func (c *Console) TogglePlayback(ctx context.Context, row calls.CallLog) (bool, error) {
	if !row.CanPlay() {
		if c.Playback.Current() == row.ConversationID && row.ConversationID != "" {
			c.Playback.Stop()
		}
		return false, nil
	}
	playing, err := c.Playback.Play(ctx, row.ConversationID)
	return playing, c.report(ctx, "play_recording", err)
}

/* ===================== VOICES & ANALYTICS ===================== */

func (c *Console) Voices(ctx context.Context) ([]campaigns.Voice, error) {
	out, err := cache.Get(ctx, c.Cache, cache.Voices, c.Gateway.ListVoices)
	return out, c.report(ctx, "list_voices", err)
}

// UploadVoiceSample stores a single audio sample as a new voice.
func (c *Console) UploadVoiceSample(ctx context.Context, name string, f gateway.FileUpload) (campaigns.Voice, error) {
	v, err := c.Gateway.UploadVoiceSample(ctx, name, f)
	if err != nil {
		return campaigns.Voice{}, c.report(ctx, "upload_voice_sample", err)
	}
	c.Cache.Invalidate(cache.Voices)
	return v, nil
}

func (c *Console) CloneVoice(ctx context.Context, req gateway.CloneVoiceRequest) (campaigns.Voice, error) {
	v, err := c.Gateway.CloneVoice(ctx, req)
	if err != nil {
		return campaigns.Voice{}, c.report(ctx, "clone_voice", err)
	}
	c.Cache.Invalidate(cache.Voices)
	return v, nil
}

func (c *Console) Dashboard(ctx context.Context) (gateway.Dashboard, error) {
	out, err := cache.Get(ctx, c.Cache, cache.Dashboard, c.Gateway.Dashboard)
	return out, c.report(ctx, "dashboard", err)
}

func (c *Console) UpdateDashboardSettings(ctx context.Context, s gateway.DashboardSettings) (gateway.DashboardSettings, error) {
	out, err := c.Gateway.UpdateDashboardSettings(ctx, s)
	if err != nil {
		return gateway.DashboardSettings{}, c.report(ctx, "dashboard_settings", err)
	}
	c.Cache.Invalidate(cache.Dashboard)
	return out, nil
}

/* ===================== LIFECYCLE ===================== */

// Close stops polling and playback, cancels in-flight fetches and waits for every
// goroutine the console started. It is safe to call more than once.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.unfollowCampaign()
	c.stopBg()
	c.wg.Wait()
	c.Poller.Stop()
	c.Playback.Stop()
	c.Cache.Close()
}
