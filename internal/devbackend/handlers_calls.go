package devbackend

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-console/internal/analytics"
	"campaign-console/internal/auth"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/gateway"
)

type initiateRequest struct {
	CampaignID string `json:"campaignId" binding:"required"`
	LeadID     string `json:"leadId" binding:"required"`
}

func (s *Server) initiateCall(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "campaignId and leadId are required")
		return
	}
	d, err := s.store.Details(req.CampaignID)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	if d.Campaign.Status == campaigns.StatusCompleted {
		abort(c, http.StatusConflict, "campaign is completed")
		return
	}
	lead, err := s.store.Lead(req.CampaignID, req.LeadID)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	row, err := s.dial(c.Request.Context(), req.CampaignID, lead)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"call": row})
}

func (s *Server) activeCalls(c *gin.Context) {
	out := s.store.ActiveCalls(c.Query("campaignId"))
	if out == nil {
		out = []calls.ActiveCall{}
	}
	c.JSON(http.StatusOK, gin.H{"calls": out})
}

func (s *Server) callHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"calls": s.store.History(c.Query("campaignId"))})
}

func (s *Server) callStatus(c *gin.Context) {
	row, err := s.store.Call(c.Param("id"))
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call": row})
}

func (s *Server) conversationDetails(c *gin.Context) {
	d, err := s.store.Conversation(c.Param("id"))
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// conversationAudio answers 404 until the recording exists; the console treats that as not ready.
func (s *Server) conversationAudio(c *gin.Context) {
	raw, contentType, err := s.store.Audio(c.Param("id"))
	if errors.Is(err, ErrAudioMissing) {
		abort(c, http.StatusNotFound, "recording not ready")
		return
	}
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, raw)
}

func (s *Server) dashboard(c *gin.Context) {
	uid, _ := auth.UserID(c.Request.Context())
	settings := s.store.Settings(uid)

	to := s.opts.Now().UTC()
	rng := analytics.TimeRange{From: to.AddDate(0, 0, -settings.RangeDays), To: to.Add(time.Second)}

	ctx := c.Request.Context()
	summary, err := s.analytics.Summary(ctx, analytics.SummaryRequest{Range: rng, CampaignID: settings.DefaultCampaignID})
	if err != nil {
		s.abortErr(c, err)
		return
	}
	perCampaign, err := s.analytics.PerCampaign(ctx, rng)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	rows, err := s.store.ListCalls(ctx, settings.DefaultCampaignID, rng.From, rng.To)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gateway.Dashboard{
		Summary:   summary,
		Campaigns: perCampaign,
		Settings:  settings,
		Daily:     analytics.Daily(rows, rng),
	})
}

type settingsRequest struct {
	DefaultCampaignID string `json:"defaultCampaignId"`
	RangeDays         int    `json:"rangeDays" binding:"omitempty,min=1,max=365"`
	ShowFailedCalls   *bool  `json:"showFailedCalls"`
}

func (s *Server) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "rangeDays must be between 1 and 365")
		return
	}
	if req.DefaultCampaignID != "" {
		if _, err := s.store.Details(req.DefaultCampaignID); err != nil {
			s.abortErr(c, err)
			return
		}
	}
	uid, _ := auth.UserID(c.Request.Context())
	out := s.store.MergeSettings(uid, gateway.DashboardSettings(req))
	c.JSON(http.StatusOK, gin.H{"settings": out})
}
