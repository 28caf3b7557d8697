package calls

import (
	"encoding/json"
	"strings"
)

// Status is the single closed set of call states understood by the console.
// Provider and backend strings are mapped into it once, by Parse.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusDeclined   Status = "declined"
	StatusNoAnswer   Status = "no-answer"
	StatusUnknown    Status = "unknown"
)

// All lists every variant in display order.
var All = []Status{
	StatusInitiated,
	StatusRinging,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusDeclined,
	StatusNoAnswer,
	StatusUnknown,
}

var aliases = map[string]Status{
	"initiated":   StatusInitiated,
	"queued":      StatusInitiated,
	"pending":     StatusInitiated,
	"dialing":     StatusInitiated,
	"ringing":     StatusRinging,
	"in-progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"in progress": StatusInProgress,
	"answered":    StatusInProgress,
	"active":      StatusInProgress,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"success":     StatusCompleted,
	"successful":  StatusCompleted,
	"done":        StatusCompleted,
	"failed":      StatusFailed,
	"failure":     StatusFailed,
	"error":       StatusFailed,
	"canceled":    StatusFailed,
	"cancelled":   StatusFailed,
	"declined":    StatusDeclined,
	"busy":        StatusDeclined,
	"rejected":    StatusDeclined,
	"no-answer":   StatusNoAnswer,
	"no_answer":   StatusNoAnswer,
	"noanswer":    StatusNoAnswer,
	"no answer":   StatusNoAnswer,
	"unanswered":  StatusNoAnswer,
}

// Parse maps a loosely typed status string to a Status. Unrecognized values are StatusUnknown.
func Parse(s string) Status {
	if st, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return st
	}
	return StatusUnknown
}

// Terminal reports whether the call will not change state again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusDeclined, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// Live reports whether the call is still being set up or talking.
func (s Status) Live() bool {
	switch s {
	case StatusInitiated, StatusRinging, StatusInProgress:
		return true
	default:
		return false
	}
}

// Successful is true only for completed calls.
func (s Status) Successful() bool { return s == StatusCompleted }

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Parse(raw)
	return nil
}

// Tone is the presentation color class of a status badge.
type Tone string

const (
	ToneNeutral Tone = "neutral"
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Presentation is how a status is shown to operators.
type Presentation struct {
	Label string
	Tone  Tone
}

var presentations = map[Status]Presentation{
	StatusInitiated:  {Label: "Initiated", Tone: ToneNeutral},
	StatusRinging:    {Label: "Ringing", Tone: ToneInfo},
	StatusInProgress: {Label: "In progress", Tone: ToneInfo},
	StatusCompleted:  {Label: "Completed", Tone: ToneSuccess},
	StatusFailed:     {Label: "Failed", Tone: ToneDanger},
	StatusDeclined:   {Label: "Declined", Tone: ToneWarning},
	StatusNoAnswer:   {Label: "No answer", Tone: ToneWarning},
	StatusUnknown:    {Label: "Unknown", Tone: ToneNeutral},
}

// Present returns the presentation for s; unknown values fall back to StatusUnknown's.
func (s Status) Present() Presentation {
	if p, ok := presentations[s]; ok {
		return p
	}
	return presentations[StatusUnknown]
}
