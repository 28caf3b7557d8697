package devbackend

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-console/internal/audit"
	"campaign-console/internal/auth"
	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
	"campaign-console/internal/config"
	"campaign-console/internal/gateway"
	"campaign-console/pkg/logger"
)

type testEnv struct {
	srv     *httptest.Server
	store   *Store
	limiter *MemoryLimiter
	client  *gateway.Client
	expired atomic.Int32
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret"})
	require.NoError(t, err)

	env := &testEnv{store: NewStore(nil), limiter: NewMemoryLimiter()}
	env.store.Seed()
	s := NewServer(env.store, m, Options{Limiter: env.limiter, Logger: logger.Discard()})
	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(env.srv.Close)

	env.client, err = gateway.New(gateway.Options{
		BaseURL:        env.srv.URL,
		OnUnauthorized: func() { env.expired.Add(1) },
		Logger:         logger.Discard(),
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) login(t *testing.T) gateway.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.client.Register(ctx, gateway.RegisterRequest{Name: "Op", Email: "op@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	return u
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := http.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	st, err := env.client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	_, err = env.client.ListCampaigns(ctx)
	assert.ErrorIs(t, err, gateway.ErrSessionExpired)
	assert.Equal(t, int32(1), env.expired.Load())

	u := env.login(t)

	st, err = env.client.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Authenticated)
	assert.Equal(t, u.ID, st.User.ID)

	p, err := env.client.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "op@example.com", p.Email)

	require.NoError(t, env.client.Logout(ctx))
	st, err = env.client.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	_, err = env.client.Login(ctx, gateway.LoginRequest{Email: "op@example.com", Password: "wrong"})
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", apiErr.UserMessage())
	assert.Equal(t, int32(1), env.expired.Load(), "public endpoints must not trigger the expiry hook")

	_, err = env.client.Login(ctx, gateway.LoginRequest{Email: "OP@example.com", Password: "correct-horse"})
	require.NoError(t, err)
}

func TestUpdateAgentRejectedOnceCampaignStarted(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	_, err := env.client.UpdateAgent(context.Background(), "7", campaigns.AgentConfig{FirstPrompt: "changed"})
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	camp, err := env.client.UpdateAgent(context.Background(), "42", campaigns.AgentConfig{
		FirstPrompt: "Hi {{firstName}}", SystemPersona: "Be brief.", VoiceID: "voice_Adam",
	})
	require.NoError(t, err)
	assert.Equal(t, "voice_Adam", camp.SelectedVoiceID)

	_, err = env.client.UpdateAgent(context.Background(), "42", campaigns.AgentConfig{VoiceID: "voice_missing"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestStartDialsUpToCapAndWebhooksFreeSlots(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	ctx := context.Background()

	camp, err := env.client.StartCampaign(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, campaigns.StatusActive, camp.Status)
	assert.Equal(t, 2, env.limiter.InUse("42"))

	active, err := env.client.ActiveCalls(ctx, "42")
	require.NoError(t, err)
	require.Len(t, active, 2)

	first, err := env.store.Call(active[0].CallID)
	require.NoError(t, err)

	resp := env.postForm(t, "/webhooks/twilio/voice", url.Values{"CallSid": {first.ProviderCallID}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Hi "+strings.Fields(first.LeadName)[0]+", this is Ava")

	resp = env.postForm(t, "/webhooks/twilio/status", url.Values{
		"CallSid": {first.ProviderCallID}, "CallStatus": {"completed"}, "CallDuration": {"37"}, "RecordingSid": {"RE1"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, env.limiter.InUse("42"))

	row, err := env.client.CallStatus(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, calls.StatusCompleted, row.Status)
	assert.Equal(t, 37, row.DurationSeconds)
	require.True(t, row.CanPlay())

	audio, err := env.client.ConversationAudio(ctx, row.ConversationID)
	require.NoError(t, err)
	defer audio.Body.Close()
	assert.Equal(t, "audio/mpeg", audio.ContentType)

	d, err := env.client.CampaignDetails(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Campaign.CompletedCalls)
	assert.Equal(t, 1, d.Campaign.SuccessfulCalls)
	require.NoError(t, d.Campaign.CheckCounters())

	resp = env.postForm(t, "/webhooks/twilio/status", url.Values{"CallSid": {"CAnope"}, "CallStatus": {"ringing"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationAudioNotReady(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	ctx := context.Background()

	hist, err := env.client.CallHistory(ctx, "9")
	require.NoError(t, err)
	var completed calls.CallLog
	for _, row := range hist {
		if row.Status == calls.StatusCompleted {
			completed = row
		}
	}
	require.NotEmpty(t, completed.ConversationID)

	_, err = env.client.ConversationAudio(ctx, completed.ConversationID)
	assert.True(t, gateway.IsAudioNotReady(err))

	details, err := env.client.ConversationDetails(ctx, completed.ConversationID)
	require.NoError(t, err)
	assert.False(t, details.HasAudio)
	assert.NotEmpty(t, details.Transcript)
}

func TestImportLeadsThroughCSVUpload(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	out, err := env.client.ImportLeads(context.Background(), "42", []campaigns.Lead{
		{FirstName: "Zed", ContactNo: "+15550109999"},
		{FirstName: "Ann", LastName: "Lee", ContactNo: "+15550102030"},
	})
	require.NoError(t, err)
	assert.Len(t, out, 4)

	_, err = env.client.ImportLeads(context.Background(), "9", []campaigns.Lead{{FirstName: "Late", ContactNo: "+15550108888"}})
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestUploadsAndVoices(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	ctx := context.Background()

	kb, err := env.client.UploadPDF(ctx, "42", gateway.FileUpload{FileName: "faq.pdf", Content: strings.NewReader("%PDF-1.4")})
	require.NoError(t, err)
	camp, err := env.client.UpdateAgent(ctx, "42", campaigns.AgentConfig{KnowledgeBaseIDs: []string{kb.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{kb.ID}, camp.KnowledgeBaseIDs)

	require.NoError(t, env.client.DeleteKnowledgeBase(ctx, kb.ID))
	d, err := env.client.CampaignDetails(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, d.Campaign.KnowledgeBaseIDs)

	v, err := env.client.CloneVoice(ctx, gateway.CloneVoiceRequest{
		Name:    "Mine",
		Samples: []gateway.FileUpload{{FileName: "a.wav", Content: bytes.NewReader([]byte("RIFF"))}},
	})
	require.NoError(t, err)
	assert.Equal(t, campaigns.VoiceCloned, v.Category)

	voices, err := env.client.ListVoices(ctx)
	require.NoError(t, err)
	assert.Len(t, voices, 3)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	ctx := context.Background()

	dash, err := env.client.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, dash.Summary.TotalCalls)
	assert.Equal(t, 2, dash.Summary.CompletedCalls)
	assert.Len(t, dash.Daily, 31)
	assert.Len(t, dash.Campaigns, 2)

	st, err := env.client.UpdateDashboardSettings(ctx, gateway.DashboardSettings{DefaultCampaignID: "7", RangeDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, st.RangeDays)

	dash, err = env.client.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", dash.Summary.CampaignID)
	assert.Equal(t, 2, dash.Summary.TotalCalls)
}

func TestCampaignActivityFeed(t *testing.T) {
	env := newTestEnv(t)
	user := env.login(t)
	ctx := context.Background()

	persona := "Be brief."
	_, err := env.client.UpdateCampaign(ctx, "42", campaigns.CampaignPatch{SystemPersona: &persona})
	require.NoError(t, err)
	_, err = env.client.StartCampaign(ctx, "42")
	require.NoError(t, err)

	active, err := env.client.ActiveCalls(ctx, "42")
	require.NoError(t, err)
	require.NotEmpty(t, active)
	row, err := env.store.Call(active[0].CallID)
	require.NoError(t, err)
	resp := env.postForm(t, "/webhooks/twilio/status", url.Values{
		"CallSid": {row.ProviderCallID}, "CallStatus": {"no-answer"},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	events, err := env.client.CampaignActivity(ctx, "42", 0)
	require.NoError(t, err)
	var types []audit.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventCallEnded,
		audit.EventCallPlaced,
		audit.EventCallPlaced,
		audit.EventStatusChanged,
		audit.EventCampaignUpdated,
	}, types)
	assert.Equal(t, "draft -> active", events[3].Message)
	assert.Equal(t, user.ID, events[3].ActorUserID)
	assert.Equal(t, "no-answer after 0s", events[0].Message)

	limited, err := env.client.CampaignActivity(ctx, "42", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = env.client.CampaignActivity(ctx, "missing", 0)
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}
