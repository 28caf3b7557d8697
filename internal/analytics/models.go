package analytics

import "time"

// TimeRange is a half-open [From, To) window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// SummaryRequest asks for aggregated call metrics.
// An empty CampaignID aggregates every campaign of the account.
type SummaryRequest struct {
	Range      TimeRange `json:"range"`
	CampaignID string    `json:"campaignId,omitempty"`
}

// Summary is the call outcome breakdown shown on the analytics dashboard.
type Summary struct {
	CampaignID string `json:"campaignId,omitempty"`

	TotalCalls      int `json:"totalCalls"`
	CompletedCalls  int `json:"completedCalls"`
	FailedCalls     int `json:"failedCalls"`
	DeclinedCalls   int `json:"declinedCalls"`
	NoAnswerCalls   int `json:"noAnswerCalls"`
	InProgressCalls int `json:"inProgressCalls"`

	TotalDurationSeconds   int `json:"totalDurationSeconds"`
	AverageDurationSeconds int `json:"averageDurationSeconds"`

	RecordedCalls int `json:"recordedCalls"`

	// ConnectionRate is completed / total.
	ConnectionRate float64 `json:"connectionRate"`
}

// DailyCount is one bar of the calls-per-day chart.
type DailyCount struct {
	Date      string `json:"date"`
	Calls     int    `json:"calls"`
	Completed int    `json:"completed"`
}
