package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"campaign-console/internal/campaigns"
	"campaign-console/internal/leads"
)

// FileUpload is a named file handed to a multipart endpoint.
type FileUpload struct {
	FileName string
	Content  io.Reader
}

type pdfUpload struct {
	FileName string `json:"fileName" validate:"required,filename_ext=pdf"`
}

type csvUpload struct {
	CampaignID string `json:"campaignId" validate:"required"`
	FileName   string `json:"fileName" validate:"required,filename_ext=csv"`
}

type voiceUpload struct {
	Name     string `json:"name" validate:"required,max=80"`
	FileName string `json:"fileName" validate:"required,filename_ext=mp3 wav m4a webm ogg"`
}

type knowledgeBaseResponse struct {
	File campaigns.KnowledgeBaseEntry `json:"file"`
}

// UploadPDF uploads a knowledge base document, optionally bound to a campaign.
func (c *Client) UploadPDF(ctx context.Context, campaignID string, f FileUpload) (campaigns.KnowledgeBaseEntry, error) {
	if err := c.check(pdfUpload{FileName: f.FileName}); err != nil {
		return campaigns.KnowledgeBaseEntry{}, err
	}
	if f.Content == nil {
		return campaigns.KnowledgeBaseEntry{}, &ValidationError{Fields: map[string]string{"file": "is required"}}
	}
	fields := map[string]string{}
	if campaignID != "" {
		fields["campaignId"] = campaignID
	}
	var out knowledgeBaseResponse
	err := c.doMultipart(ctx, http.MethodPost, "/api/upload/pdf", fields,
		[]filePart{{Field: "file", FileName: f.FileName, Content: f.Content}}, &out)
	return out.File, err
}

// LeadUploadResult is the backend's view of the campaign's leads after a CSV import.
type LeadUploadResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Leads    []campaigns.Lead `json:"leads"`
}

func (c *Client) UploadCSV(ctx context.Context, campaignID string, f FileUpload) (LeadUploadResult, error) {
	if err := c.check(csvUpload{CampaignID: campaignID, FileName: f.FileName}); err != nil {
		return LeadUploadResult{}, err
	}
	if f.Content == nil {
		return LeadUploadResult{}, &ValidationError{Fields: map[string]string{"file": "is required"}}
	}
	var out LeadUploadResult
	err := c.doMultipart(ctx, http.MethodPost, "/api/upload/csv",
		map[string]string{"campaignId": campaignID},
		[]filePart{{Field: "file", FileName: f.FileName, Content: f.Content}}, &out)
	return out, err
}

// ImportLeads validates leads, encodes them as CSV and uploads them to the campaign.
// It returns the campaign's lead list as the backend reports it afterwards.
func (c *Client) ImportLeads(ctx context.Context, campaignID string, in []campaigns.Lead) ([]campaigns.Lead, error) {
	if len(in) == 0 {
		return nil, &ValidationError{Fields: map[string]string{"leads": "is required"}}
	}
	for _, l := range in {
		if err := c.check(l); err != nil {
			return nil, err
		}
	}
	raw, err := leads.ToCSV(in)
	if err != nil {
		return nil, err
	}
	res, err := c.UploadCSV(ctx, campaignID, FileUpload{FileName: "leads.csv", Content: bytes.NewReader(raw)})
	if err != nil {
		return nil, err
	}
	return res.Leads, nil
}

type voiceResponse struct {
	Voice campaigns.Voice `json:"voice"`
}

// UploadVoiceSample stores an audio sample that can later back a cloned voice.
func (c *Client) UploadVoiceSample(ctx context.Context, name string, f FileUpload) (campaigns.Voice, error) {
	if err := c.check(voiceUpload{Name: name, FileName: f.FileName}); err != nil {
		return campaigns.Voice{}, err
	}
	if f.Content == nil {
		return campaigns.Voice{}, &ValidationError{Fields: map[string]string{"file": "is required"}}
	}
	var out voiceResponse
	err := c.doMultipart(ctx, http.MethodPost, "/api/upload/voice",
		map[string]string{"name": name},
		[]filePart{{Field: "file", FileName: f.FileName, Content: f.Content}}, &out)
	return out.Voice, err
}

func (c *Client) DeleteKnowledgeBase(ctx context.Context, id string) error {
	if err := requireID("fileId", id); err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/upload/knowledge-base/"+url.PathEscape(id), nil, nil, requestOpts{})
}
