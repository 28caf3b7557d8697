package devbackend

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campaign-console/internal/audit"
	"campaign-console/internal/auth"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/gateway"
	"campaign-console/pkg/logger"
)

type createCampaignRequest struct {
	Name          string `json:"name" binding:"required,max=120"`
	FirstPrompt   string `json:"firstPrompt" binding:"max=2000"`
	SystemPersona string `json:"systemPersona" binding:"max=8000"`
}

type selectRequest struct {
	CampaignID string `json:"campaignId" binding:"required"`
}

func (s *Server) listCampaigns(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"campaigns": s.store.ListCampaigns()})
}

func (s *Server) createCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "name is required")
		return
	}
	camp := s.store.CreateCampaign(gateway.CreateCampaignRequest(req))
	s.record(c, audit.EventCampaignCreated, camp.ID, camp.Name)
	c.JSON(http.StatusCreated, gin.H{"campaign": camp})
}

func (s *Server) campaignDetails(c *gin.Context) {
	d, err := s.store.Details(c.Param("id"))
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) selectCampaign(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "campaignId is required")
		return
	}
	uid, _ := auth.UserID(c.Request.Context())
	d, err := s.store.Select(uid, req.CampaignID)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) updateCampaign(c *gin.Context) {
	var p campaigns.CampaignPatch
	if err := c.ShouldBindJSON(&p); err != nil || p.Empty() {
		abort(c, http.StatusBadRequest, "nothing to update")
		return
	}
	camp, err := s.store.PatchCampaign(c.Param("id"), p)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	s.record(c, audit.EventCampaignUpdated, camp.ID, "configuration updated")
	c.JSON(http.StatusOK, gin.H{"campaign": camp})
}

func (s *Server) deleteCampaign(c *gin.Context) {
	if err := s.store.DeleteCampaign(c.Param("id")); err != nil {
		s.abortErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// updateAgent re-checks the edit guard server-side; the console's check is advisory.
func (s *Server) updateAgent(c *gin.Context) {
	var cfg campaigns.AgentConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		abort(c, http.StatusBadRequest, "invalid agent configuration")
		return
	}
	camp, err := s.store.UpdateAgent(c.Param("id"), cfg)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	s.record(c, audit.EventAgentUpdated, camp.ID, "agent updated")
	c.JSON(http.StatusOK, gin.H{"campaign": camp})
}

// startCampaign activates the campaign and dials pending leads up to the live-call cap.
func (s *Server) startCampaign(c *gin.Context) {
	id := c.Param("id")
	if err := s.transition(c, id, campaigns.StatusActive); err != nil {
		s.abortErr(c, err)
		return
	}
	placed := s.dialPending(c.Request.Context(), id)
	d, err := s.store.Details(id)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.Header("X-Calls-Placed", strconv.Itoa(placed))
	c.JSON(http.StatusOK, gin.H{"campaign": d.Campaign})
}

func (s *Server) pauseCampaign(c *gin.Context) {
	id := c.Param("id")
	if err := s.transition(c, id, campaigns.StatusPaused); err != nil {
		s.abortErr(c, err)
		return
	}
	d, err := s.store.Details(id)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaign": d.Campaign})
}

func (s *Server) transition(c *gin.Context, id string, to campaigns.Status) error {
	prev, err := s.store.Details(id)
	if err != nil {
		return err
	}
	if _, err := s.store.SetStatus(id, to); err != nil {
		return err
	}
	if err := s.activity.StatusChanged(c.Request.Context(), actor(c), id, string(prev.Campaign.Status), string(to)); err != nil {
		logger.FromGin(c).Warn("activity append failed", "campaign_id", id, "err", err)
	}
	return nil
}

func (s *Server) campaignActivity(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Details(id); err != nil {
		s.abortErr(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	events, err := s.activity.Recent(c.Request.Context(), id, limit)
	if err != nil {
		s.abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
