package telephony

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-console/internal/calls"
	"campaign-console/pkg/logger"
)

// ErrUnknownCall is returned by CallUpdater and GreetingSource when the provider call id
// does not match any call we placed.
var ErrUnknownCall = errors.New("telephony: unknown provider call")

// CallUpdater persists a status callback against the matching call log.
type CallUpdater interface {
	ApplyStatus(ctx context.Context, cb StatusCallback, now time.Time) (calls.CallLog, error)
}

// GreetingSource resolves what to say on a connected call.
type GreetingSource interface {
	GreetingFor(ctx context.Context, providerCallID string) (Greeting, error)
}

// WebhookHandler converts Twilio webhooks to internal types and delegates.
// No business logic here.
type WebhookHandler struct {
	Calls     CallUpdater
	Greetings GreetingSource
	Now       func() time.Time
}

func (h WebhookHandler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// HandleStatus answers POST /webhooks/twilio/status.
func (h WebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "call store not configured"})
		return
	}

	cb, err := ParseStatusCallback(c.Request)
	if err != nil {
		log.Warn("twilio status callback parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid form"})
		return
	}

	row, err := h.Calls.ApplyStatus(c.Request.Context(), cb, h.now())
	switch {
	case errors.Is(err, ErrUnknownCall):
		log.Warn("status callback for unknown call", "call_sid", cb.CallSid)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "unknown call"})
		return
	case err != nil:
		log.Error("status callback apply failed", "call_sid", cb.CallSid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "update failed"})
		return
	}
	log.Debug("call status updated", "call_id", row.ID, "status", string(row.Status), "raw", cb.RawStatus)
	c.Status(http.StatusNoContent)
}

// HandleVoice answers POST /webhooks/twilio/voice with the campaign greeting.
func (h WebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)
	if h.Greetings == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "greeting source not configured"})
		return
	}

	sid := strings.TrimSpace(c.PostForm("CallSid"))
	if sid == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "CallSid is required"})
		return
	}

	g, err := h.Greetings.GreetingFor(c.Request.Context(), sid)
	if errors.Is(err, ErrUnknownCall) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "unknown call"})
		return
	}
	if err != nil {
		log.Error("greeting lookup failed", "call_sid", sid, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "greeting failed"})
		return
	}

	twiml, err := RenderGreeting(g)
	if err != nil {
		log.Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "twiml failed"})
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(twiml))
}
