package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-console/internal/calls"
	"campaign-console/internal/campaigns"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *atomic.Int32) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	var expired atomic.Int32
	c, err := New(Options{BaseURL: srv.URL + "/", OnUnauthorized: func() { expired.Add(1) }})
	require.NoError(t, err)
	return c, &expired
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestUnauthorizedRunsHookOnlyForAuthenticatedEndpoints(t *testing.T) {
	c, expired := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	ctx := context.Background()

	_, err := c.ListCampaigns(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, int32(1), expired.Load())

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)

	_, err = c.Login(ctx, LoginRequest{Email: "a@b.co", Password: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "nope", apiErr.Message)
	assert.Equal(t, int32(1), expired.Load())
}

func TestErrorMessageParsing(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{`{"message":"campaign is running"}`, "campaign is running"},
		{`{"error":"bad things"}`, "bad things"},
		{`{"error":{"message":"nested"}}`, "nested"},
		{`not json`, ""},
		{``, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, readErrorMessage(strings.NewReader(tc.body)), tc.body)
	}

	e := &APIError{Status: http.StatusConflict}
	assert.Equal(t, genericMessage(http.StatusConflict), e.UserMessage())
	assert.True(t, IsNotFound(&APIError{Status: http.StatusNotFound}))
}

func TestValidationFailsBeforeAnyRequest(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	ctx := context.Background()

	_, err := c.Register(ctx, RegisterRequest{Name: "x", Email: "not-an-email", Password: "short"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a valid email", verr.Fields["email"])
	assert.Equal(t, "must be at least 8 characters", verr.Fields["password"])

	_, err = c.UploadPDF(ctx, "", FileUpload{FileName: "notes.txt", Content: strings.NewReader("x")})
	require.ErrorAs(t, err, &verr)

	_, err = c.UpdateCampaign(ctx, "42", campaigns.CampaignPatch{})
	require.ErrorAs(t, err, &verr)

	_, err = c.CampaignDetails(ctx, " ")
	require.ErrorAs(t, err, &verr)

	_, err = c.ImportLeads(ctx, "42", []campaigns.Lead{{FirstName: "A", ContactNo: "555"}})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be a phone number in +E.164 format", verr.Fields["contactNo"])

	assert.Zero(t, hits.Load())
}

func TestMultipartUpload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/csv" {
			http.NotFound(w, r)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		raw, _ := io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(LeadUploadResult{
			Imported: strings.Count(string(raw), "\n") - 1,
			Leads:    []campaigns.Lead{{ID: r.FormValue("campaignId") + ":" + fh.Filename}},
		})
	}))

	out, err := c.ImportLeads(context.Background(), "42", []campaigns.Lead{
		{FirstName: "Ann", ContactNo: "+15550102030"},
		{FirstName: "Bo", ContactNo: "+15550102031"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "42:leads.csv", out[0].ID)
}

func TestUploadVoiceSample(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload/voice" {
			http.NotFound(w, r)
			return
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		raw, _ := io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]campaigns.Voice{"voice": {
			ID:       fh.Filename + ":" + string(raw),
			Name:     r.FormValue("name"),
			Category: campaigns.VoiceCloned,
		}})
	}))
	ctx := context.Background()

	v, err := c.UploadVoiceSample(ctx, "Narrator", FileUpload{FileName: "sample.wav", Content: strings.NewReader("RIFF")})
	require.NoError(t, err)
	assert.Equal(t, "sample.wav:RIFF", v.ID)
	assert.Equal(t, "Narrator", v.Name)
	assert.Equal(t, campaigns.VoiceCloned, v.Category)

	var verr *ValidationError
	_, err = c.UploadVoiceSample(ctx, "Narrator", FileUpload{FileName: "sample.pdf", Content: strings.NewReader("x")})
	require.ErrorAs(t, err, &verr)
	_, err = c.UploadVoiceSample(ctx, "Narrator", FileUpload{FileName: "sample.wav"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["file"])
	assert.EqualValues(t, 1, hits.Load())
}

func TestConversationAudio(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/conversations/ready/audio":
			w.Header().Set("Content-Type", "audio/mpeg")
			_, _ = w.Write([]byte("ID3"))
		case "/api/conversations/empty/audio":
			w.WriteHeader(http.StatusNoContent)
		case "/api/conversations/broken/audio":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	ctx := context.Background()

	a, err := c.ConversationAudio(ctx, "ready")
	require.NoError(t, err)
	raw, _ := io.ReadAll(a.Body)
	a.Body.Close()
	assert.Equal(t, "ID3", string(raw))
	assert.Equal(t, "audio/mpeg", a.ContentType)

	for _, id := range []string{"missing", "empty"} {
		_, err = c.ConversationAudio(ctx, id)
		assert.True(t, IsAudioNotReady(err), id)
	}
	_, err = c.ConversationAudio(ctx, "broken")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestHistoryParsesLooseStatuses(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("campaignId"))
		_, _ = w.Write([]byte(`{"calls":[{"id":"c1","status":"In_Progress"},{"id":"c2","status":"busy"},{"id":"c3","status":"weird"}]}`))
	}))
	rows, err := c.CallHistory(context.Background(), "42")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, calls.StatusInProgress, rows[0].Status)
	assert.Equal(t, calls.StatusDeclined, rows[1].Status)
	assert.Equal(t, calls.StatusUnknown, rows[2].Status)
}
