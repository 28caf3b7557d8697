package gateway

import (
	"context"
	"net/http"

	"campaign-console/internal/campaigns"
)

type voiceListResponse struct {
	Voices []campaigns.Voice `json:"voices"`
}

func (c *Client) ListVoices(ctx context.Context) ([]campaigns.Voice, error) {
	var out voiceListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/voices", nil, &out, requestOpts{}); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

// CloneVoiceRequest creates a cloned voice from one or more samples.
type CloneVoiceRequest struct {
	Name        string       `json:"name" validate:"required,max=80"`
	Description string       `json:"description" validate:"max=500"`
	Samples     []FileUpload `json:"-" validate:"required,min=1,dive"`
}

func (c *Client) CloneVoice(ctx context.Context, req CloneVoiceRequest) (campaigns.Voice, error) {
	if err := c.check(req); err != nil {
		return campaigns.Voice{}, err
	}
	files := make([]filePart, 0, len(req.Samples))
	for _, s := range req.Samples {
		if s.Content == nil {
			return campaigns.Voice{}, &ValidationError{Fields: map[string]string{"files": "is required"}}
		}
		files = append(files, filePart{Field: "files", FileName: s.FileName, Content: s.Content})
	}
	fields := map[string]string{"name": req.Name}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	var out voiceResponse
	err := c.doMultipart(ctx, http.MethodPost, "/api/clone-voice", fields, files, &out)
	return out.Voice, err
}
