package devbackend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaign-console/internal/analytics"
	"campaign-console/internal/audit"
	"campaign-console/internal/auth"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/leads"
	"campaign-console/internal/telephony"
	"campaign-console/pkg/logger"
)

var (
	callsDialed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devbackend",
		Name:      "calls_dialed_total",
		Help:      "Outbound calls placed, by outcome of the dial attempt.",
	}, []string{"outcome"})

	callsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devbackend",
		Name:      "calls_ended_total",
		Help:      "Calls that reached a terminal status, by status.",
	}, []string{"status"})
)

type Options struct {
	// MaxLiveCalls caps concurrently live calls per campaign. Default 2.
	MaxLiveCalls int
	// PublicURL is this server's externally reachable origin, used for provider callbacks.
	PublicURL string
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool

	Limiter Limiter
	Dialer  telephony.Dialer
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server implements the console's HTTP contract in memory.
type Server struct {
	store     *Store
	auth      *auth.Manager
	analytics *analytics.Service
	activity  *audit.Service
	parser    *leads.Parser
	limiter   Limiter
	dialer    telephony.Dialer
	log       *slog.Logger
	opts      Options
}

func NewServer(store *Store, m *auth.Manager, opts Options) *Server {
	if opts.MaxLiveCalls <= 0 {
		opts.MaxLiveCalls = 2
	}
	if opts.Limiter == nil {
		opts.Limiter = NewMemoryLimiter()
	}
	if opts.Dialer == nil {
		opts.Dialer = &telephony.SimulatedDialer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		auth:      m,
		analytics: analytics.NewService(store),
		activity:  audit.NewService(audit.NewMemoryRepo(), opts.Now),
		parser:    leads.NewParser(leads.Options{}),
		limiter:   opts.Limiter,
		dialer:    opts.Dialer,
		log:       log.With("component", "devbackend"),
		opts:      opts,
	}
}

// Router wires HTTP routes to handlers.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(s.log))
	r.MaxMultipartMemory = 16 << 20

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	hooks := telephony.WebhookHandler{Calls: s, Greetings: s.store, Now: s.opts.Now}
	r.POST("/webhooks/twilio/status", hooks.HandleStatus)
	r.POST("/webhooks/twilio/voice", hooks.HandleVoice)

	api := r.Group("/api")

	public := api.Group("/auth")
	public.POST("/register", s.register)
	public.POST("/login", s.login)
	public.POST("/logout", s.logout)
	public.GET("/status", s.status)

	authed := api.Group("")
	authed.Use(auth.RequireSession(s.auth))
	authed.GET("/auth/profile", s.profile)

	camps := authed.Group("/campaigns")
	camps.GET("", s.listCampaigns)
	camps.POST("", s.createCampaign)
	camps.POST("/select", s.selectCampaign)
	camps.GET("/:id/details", s.campaignDetails)
	camps.PUT("/:id", s.updateCampaign)
	camps.DELETE("/:id", s.deleteCampaign)
	camps.PUT("/:id/update-agent", s.updateAgent)
	camps.POST("/:id/start", s.startCampaign)
	camps.POST("/:id/pause", s.pauseCampaign)
	camps.GET("/:id/activity", s.campaignActivity)

	up := authed.Group("/upload")
	up.POST("/pdf", s.uploadPDF)
	up.POST("/csv", s.uploadCSV)
	up.POST("/voice", s.uploadVoice)
	up.DELETE("/knowledge-base/:id", s.deleteKnowledgeBase)

	authed.GET("/voices", s.listVoices)
	authed.POST("/clone-voice", s.cloneVoice)

	cl := authed.Group("/calls")
	cl.POST("/initiate", s.initiateCall)
	cl.GET("/active", s.activeCalls)
	cl.GET("/history", s.callHistory)
	cl.GET("/:id/status", s.callStatus)

	conv := authed.Group("/conversations")
	conv.GET("/:id/details", s.conversationDetails)
	conv.GET("/:id/audio", s.conversationAudio)

	an := authed.Group("/analytics")
	an.GET("/dashboard", s.dashboard)
	an.PATCH("/dashboard/settings", s.updateSettings)

	return r
}

// ApplyStatus implements telephony.CallUpdater. A call that ends frees its live-call slot.
func (s *Server) ApplyStatus(ctx context.Context, cb telephony.StatusCallback, now time.Time) (calls.CallLog, error) {
	row, ended, err := s.store.ApplyStatus(cb, now)
	if err != nil {
		return calls.CallLog{}, err
	}
	if ended {
		callsEnded.WithLabelValues(string(row.Status)).Inc()
		if err := s.activity.CallEnded(ctx, row.CampaignID, row.ID, string(row.Status), row.DurationSeconds); err != nil {
			s.log.Warn("activity append failed", "campaign_id", row.CampaignID, "err", err)
		}
		if err := s.limiter.Release(ctx, row.CampaignID); err != nil {
			s.log.Warn("release call slot failed", "campaign_id", row.CampaignID, "err", err)
		}
	}
	return row, nil
}

var errCapReached = errors.New("devbackend: live call limit reached")

// dial places one call for lead under the campaign's live-call cap.
func (s *Server) dial(ctx context.Context, campaignID string, lead campaigns.Lead) (calls.CallLog, error) {
	ok, err := s.limiter.Acquire(ctx, campaignID, s.opts.MaxLiveCalls)
	if err != nil {
		callsDialed.WithLabelValues("error").Inc()
		return calls.CallLog{}, err
	}
	if !ok {
		callsDialed.WithLabelValues("capped").Inc()
		return calls.CallLog{}, errCapReached
	}

	res, err := s.dialer.Dial(ctx, telephony.DialRequest{
		CampaignID:        campaignID,
		LeadID:            lead.ID,
		To:                lead.ContactNo,
		StatusCallbackURL: s.opts.PublicURL + "/webhooks/twilio/status",
	})
	if err != nil {
		_ = s.limiter.Release(ctx, campaignID)
		callsDialed.WithLabelValues("error").Inc()
		return calls.CallLog{}, err
	}
	row, err := s.store.RecordDial(campaignID, lead.ID, res)
	if err != nil {
		_ = s.limiter.Release(ctx, campaignID)
		return calls.CallLog{}, err
	}
	callsDialed.WithLabelValues("placed").Inc()
	if err := s.activity.Append(ctx, audit.Event{
		CampaignID: campaignID,
		Type:       audit.EventCallPlaced,
		CallID:     row.ID,
		Message:    row.ContactNo,
	}); err != nil {
		s.log.Warn("activity append failed", "campaign_id", campaignID, "err", err)
	}
	s.log.Info("call placed", "campaign_id", campaignID, "call_id", row.ID, "provider", s.dialer.Name())
	return row, nil
}

// dialPending places calls for undialed leads until the cap is reached.
func (s *Server) dialPending(ctx context.Context, campaignID string) int {
	placed := 0
	for _, lead := range s.store.PendingLeads(campaignID) {
		if _, err := s.dial(ctx, campaignID, lead); err != nil {
			if !errors.Is(err, errCapReached) {
				s.log.Warn("dial failed", "campaign_id", campaignID, "lead_id", lead.ID, "err", err)
			}
			break
		}
		placed++
	}
	return placed
}

// record appends an operator action to the campaign's activity feed. Failures are logged only.
func (s *Server) record(c *gin.Context, t audit.EventType, campaignID, message string) {
	if err := s.activity.Record(c.Request.Context(), actor(c), t, campaignID, message); err != nil {
		logger.FromGin(c).Warn("activity append failed", "campaign_id", campaignID, "err", err)
	}
}

func actor(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	return audit.Actor{UserID: uid, IP: c.ClientIP()}
}

// abort writes a JSON error body in the shape the console reads.
func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}

// abortErr maps store errors to HTTP statuses.
func (s *Server) abortErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		abort(c, http.StatusNotFound, "not found")
	case errors.Is(err, campaigns.ErrNotEditable):
		abort(c, http.StatusConflict, "campaign can no longer be edited")
	case errors.Is(err, ErrCampaignRunning):
		abort(c, http.StatusConflict, "campaign is running")
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoLeads), errors.Is(err, ErrUnknownReference):
		abort(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, errCapReached):
		abort(c, http.StatusTooManyRequests, "too many live calls for this campaign")
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		abort(c, http.StatusInternalServerError, "internal error")
	}
}
