package analytics

import (
	"context"
	"errors"
	"sort"
	"time"

	"campaign-console/internal/calls"
)

var ErrInvalidRequest = errors.New("analytics: invalid request")

// Repository abstracts access to call logs for reporting.
type Repository interface {
	ListCalls(ctx context.Context, campaignID string, from, to time.Time) ([]calls.CallLog, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) Summary(ctx context.Context, req SummaryRequest) (Summary, error) {
	if !req.Range.Valid() {
		return Summary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Summary{}, errors.New("analytics: repository not configured")
	}
	rows, err := s.repo.ListCalls(ctx, req.CampaignID, req.Range.From, req.Range.To)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(req.CampaignID, rows), nil
}

// PerCampaign returns one summary per campaign that has calls in range, ordered by campaign id.
func (s *Service) PerCampaign(ctx context.Context, r TimeRange) ([]Summary, error) {
	if !r.Valid() {
		return nil, ErrInvalidRequest
	}
	if s.repo == nil {
		return nil, errors.New("analytics: repository not configured")
	}
	rows, err := s.repo.ListCalls(ctx, "", r.From, r.To)
	if err != nil {
		return nil, err
	}
	byCampaign := map[string][]calls.CallLog{}
	for _, c := range rows {
		byCampaign[c.CampaignID] = append(byCampaign[c.CampaignID], c)
	}
	ids := make([]string, 0, len(byCampaign))
	for id := range byCampaign {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		out = append(out, Summarize(id, byCampaign[id]))
	}
	return out, nil
}

// Summarize aggregates call rows. Duration averages only count completed calls.
func Summarize(campaignID string, rows []calls.CallLog) Summary {
	out := Summary{CampaignID: campaignID}
	for _, c := range rows {
		out.TotalCalls++
		if c.ConversationID != "" {
			out.RecordedCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
			out.TotalDurationSeconds += c.DurationSeconds
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusDeclined:
			out.DeclinedCalls++
		case calls.StatusNoAnswer:
			out.NoAnswerCalls++
		case calls.StatusInProgress, calls.StatusRinging, calls.StatusInitiated:
			out.InProgressCalls++
		case calls.StatusUnknown:
			// counted in the total only
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	if out.TotalCalls > 0 {
		out.ConnectionRate = float64(out.CompletedCalls) / float64(out.TotalCalls)
	}
	return out
}

// Daily buckets rows by UTC start date over the given range.
// Days without calls are present with zero counts.
func Daily(rows []calls.CallLog, r TimeRange) []DailyCount {
	if !r.Valid() {
		return nil
	}
	const layout = "2006-01-02"
	index := map[string]int{}
	var out []DailyCount
	for d := r.From.UTC().Truncate(24 * time.Hour); d.Before(r.To); d = d.Add(24 * time.Hour) {
		index[d.Format(layout)] = len(out)
		out = append(out, DailyCount{Date: d.Format(layout)})
	}
	for _, c := range rows {
		if !r.Contains(c.StartedAt) {
			continue
		}
		i, ok := index[c.StartedAt.UTC().Format(layout)]
		if !ok {
			continue
		}
		out[i].Calls++
		if c.Status == calls.StatusCompleted {
			out[i].Completed++
		}
	}
	return out
}
