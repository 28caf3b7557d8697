package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"campaign-console/internal/audit"
	"campaign-console/internal/campaigns"
)

type campaignListResponse struct {
	Campaigns []campaigns.Campaign `json:"campaigns"`
}

type campaignResponse struct {
	Campaign campaigns.Campaign `json:"campaign"`
}

func (c *Client) ListCampaigns(ctx context.Context) ([]campaigns.Campaign, error) {
	var out campaignListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/campaigns", nil, &out, requestOpts{}); err != nil {
		return nil, err
	}
	return out.Campaigns, nil
}

// CampaignDetails returns the campaign with its leads.
func (c *Client) CampaignDetails(ctx context.Context, id string) (campaigns.Details, error) {
	if err := requireID("campaignId", id); err != nil {
		return campaigns.Details{}, err
	}
	var out campaigns.Details
	err := c.doJSON(ctx, http.MethodGet, "/api/campaigns/"+url.PathEscape(id)+"/details", nil, &out, requestOpts{})
	return out, err
}

// SelectCampaign marks id as the operator's open campaign and returns its details.
func (c *Client) SelectCampaign(ctx context.Context, id string) (campaigns.Details, error) {
	if err := requireID("campaignId", id); err != nil {
		return campaigns.Details{}, err
	}
	var out campaigns.Details
	in := map[string]string{"campaignId": id}
	err := c.doJSON(ctx, http.MethodPost, "/api/campaigns/select", in, &out, requestOpts{})
	return out, err
}

type CreateCampaignRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	FirstPrompt   string `json:"firstPrompt" validate:"max=2000"`
	SystemPersona string `json:"systemPersona" validate:"max=8000"`
}

func (c *Client) CreateCampaign(ctx context.Context, req CreateCampaignRequest) (campaigns.Campaign, error) {
	if err := c.check(req); err != nil {
		return campaigns.Campaign{}, err
	}
	var out campaignResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/campaigns", req, &out, requestOpts{})
	return out.Campaign, err
}

func (c *Client) UpdateCampaign(ctx context.Context, id string, patch campaigns.CampaignPatch) (campaigns.Campaign, error) {
	if err := requireID("campaignId", id); err != nil {
		return campaigns.Campaign{}, err
	}
	if patch.Empty() {
		return campaigns.Campaign{}, &ValidationError{Fields: map[string]string{"patch": "is required"}}
	}
	if err := c.check(patch); err != nil {
		return campaigns.Campaign{}, err
	}
	var out campaignResponse
	err := c.doJSON(ctx, http.MethodPut, "/api/campaigns/"+url.PathEscape(id), patch, &out, requestOpts{})
	return out.Campaign, err
}

func (c *Client) DeleteCampaign(ctx context.Context, id string) error {
	if err := requireID("campaignId", id); err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/campaigns/"+url.PathEscape(id), nil, nil, requestOpts{})
}

// UpdateAgent replaces the agent configuration (first prompt, persona, voice, knowledge base).
func (c *Client) UpdateAgent(ctx context.Context, id string, cfg campaigns.AgentConfig) (campaigns.Campaign, error) {
	if err := requireID("campaignId", id); err != nil {
		return campaigns.Campaign{}, err
	}
	if err := c.check(cfg); err != nil {
		return campaigns.Campaign{}, err
	}
	if cfg.KnowledgeBaseIDs == nil {
		cfg.KnowledgeBaseIDs = []string{}
	}
	var out campaignResponse
	err := c.doJSON(ctx, http.MethodPut, "/api/campaigns/"+url.PathEscape(id)+"/update-agent", cfg, &out, requestOpts{})
	return out.Campaign, err
}

// StartCampaign asks the backend to begin dialing the campaign's leads.
func (c *Client) StartCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	return c.campaignAction(ctx, id, "start")
}

func (c *Client) PauseCampaign(ctx context.Context, id string) (campaigns.Campaign, error) {
	return c.campaignAction(ctx, id, "pause")
}

func (c *Client) campaignAction(ctx context.Context, id, action string) (campaigns.Campaign, error) {
	if err := requireID("campaignId", id); err != nil {
		return campaigns.Campaign{}, err
	}
	var out campaignResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/campaigns/"+url.PathEscape(id)+"/"+action, nil, &out, requestOpts{})
	return out.Campaign, err
}

// CampaignActivity returns the campaign's recent activity, newest first. limit <= 0 uses the server default.
func (c *Client) CampaignActivity(ctx context.Context, id string, limit int) ([]audit.Event, error) {
	if err := requireID("campaignId", id); err != nil {
		return nil, err
	}
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	var out struct {
		Events []audit.Event `json:"events"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/api/campaigns/"+url.PathEscape(id)+"/activity", nil, &out, requestOpts{query: q})
	return out.Events, err
}
