package gateway

import (
	"context"
	"net/http"

	"campaign-console/internal/analytics"
)

// DashboardSettings are the operator's dashboard preferences.
type DashboardSettings struct {
	DefaultCampaignID string `json:"defaultCampaignId,omitempty"`
	RangeDays         int    `json:"rangeDays,omitempty" validate:"omitempty,min=1,max=365"`
	ShowFailedCalls   *bool  `json:"showFailedCalls,omitempty"`
}

type Dashboard struct {
	Summary   analytics.Summary      `json:"summary"`
	Campaigns []analytics.Summary    `json:"campaigns"`
	Settings  DashboardSettings      `json:"settings"`
	Daily     []analytics.DailyCount `json:"daily"`
}

func (c *Client) Dashboard(ctx context.Context) (Dashboard, error) {
	var out Dashboard
	err := c.doJSON(ctx, http.MethodGet, "/api/analytics/dashboard", nil, &out, requestOpts{})
	return out, err
}

func (c *Client) UpdateDashboardSettings(ctx context.Context, s DashboardSettings) (DashboardSettings, error) {
	if err := c.check(s); err != nil {
		return DashboardSettings{}, err
	}
	var out struct {
		Settings DashboardSettings `json:"settings"`
	}
	err := c.doJSON(ctx, http.MethodPatch, "/api/analytics/dashboard/settings", s, &out, requestOpts{})
	return out.Settings, err
}
