package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"campaign-console/internal/calls"
)

type activeCallsResponse struct {
	Calls []calls.ActiveCall `json:"calls"`
}

type historyResponse struct {
	Calls []calls.CallLog `json:"calls"`
}

type callResponse struct {
	Call calls.CallLog `json:"call"`
}

func campaignQuery(campaignID string) url.Values {
	if campaignID == "" {
		return nil
	}
	return url.Values{"campaignId": []string{campaignID}}
}

// ActiveCalls lists calls currently ringing or talking. Empty campaignID means all campaigns.
func (c *Client) ActiveCalls(ctx context.Context, campaignID string) ([]calls.ActiveCall, error) {
	var out activeCallsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/calls/active", nil, &out, requestOpts{query: campaignQuery(campaignID)}); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func (c *Client) CallHistory(ctx context.Context, campaignID string) ([]calls.CallLog, error) {
	var out historyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/calls/history", nil, &out, requestOpts{query: campaignQuery(campaignID)}); err != nil {
		return nil, err
	}
	return out.Calls, nil
}

func (c *Client) CallStatus(ctx context.Context, callID string) (calls.CallLog, error) {
	if err := requireID("callId", callID); err != nil {
		return calls.CallLog{}, err
	}
	var out callResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/calls/"+url.PathEscape(callID)+"/status", nil, &out, requestOpts{})
	return out.Call, err
}

type initiateCallRequest struct {
	CampaignID string `json:"campaignId" validate:"required"`
	LeadID     string `json:"leadId" validate:"required"`
}

// InitiateCall asks the backend to dial one lead. The returned row is server-created.
func (c *Client) InitiateCall(ctx context.Context, campaignID, leadID string) (calls.CallLog, error) {
	in := initiateCallRequest{CampaignID: campaignID, LeadID: leadID}
	if err := c.check(in); err != nil {
		return calls.CallLog{}, err
	}
	var out callResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/calls/initiate", in, &out, requestOpts{})
	return out.Call, err
}

// TranscriptTurn is one utterance of a conversation.
type TranscriptTurn struct {
	Role    string  `json:"role"`
	Message string  `json:"message"`
	TimeSec float64 `json:"timeInCallSecs"`
}

type ConversationDetails struct {
	ConversationID  string           `json:"conversationId"`
	Status          calls.Status     `json:"status"`
	DurationSeconds int              `json:"duration"`
	Summary         string           `json:"summary,omitempty"`
	Transcript      []TranscriptTurn `json:"transcript"`
	HasAudio        bool             `json:"hasAudio"`
}

func (c *Client) ConversationDetails(ctx context.Context, conversationID string) (ConversationDetails, error) {
	if err := requireID("conversationId", conversationID); err != nil {
		return ConversationDetails{}, err
	}
	var out ConversationDetails
	err := c.doJSON(ctx, http.MethodGet, "/api/conversations/"+url.PathEscape(conversationID)+"/details", nil, &out, requestOpts{})
	return out, err
}

// Audio is a streamed recording. The caller must Close it.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// ConversationAudio streams the recording. 404 and 204 are reported as ErrAudioNotReady.
func (c *Client) ConversationAudio(ctx context.Context, conversationID string) (Audio, error) {
	if err := requireID("conversationId", conversationID); err != nil {
		return Audio{}, err
	}
	path := "/api/conversations/" + url.PathEscape(conversationID) + "/audio"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, nil), nil)
	if err != nil {
		return Audio{}, err
	}
	req.Header.Set("Accept", "audio/*")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("gateway: GET %s: %w", path, err)
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		return Audio{}, ErrAudioNotReady
	}
	if err := c.checkStatus(resp, http.MethodGet, path, requestOpts{}); err != nil {
		resp.Body.Close()
		return Audio{}, err
	}
	return Audio{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
}

// IsAudioNotReady is the predicate views use to keep the play button disabled.
func IsAudioNotReady(err error) bool { return errors.Is(err, ErrAudioNotReady) }
