package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campaign-console/internal/calls"
)

var ErrMissingCallSid = errors.New("telephony: CallSid is required")

// StatusCallback is the subset of Twilio status callback fields we use.
// Twilio sends application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
type StatusCallback struct {
	CallSid    string
	AccountSid string
	From       string
	To         string

	// RawStatus is the provider's CallStatus text; Status is its mapping.
	RawStatus string
	Status    calls.Status

	// DurationSeconds is CallDuration, present only on the final callback.
	DurationSeconds int

	RecordingSid string
	Timestamp    time.Time
}

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	cb := StatusCallback{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         strings.TrimSpace(r.PostFormValue("From")),
		To:           strings.TrimSpace(r.PostFormValue("To")),
		RawStatus:    r.PostFormValue("CallStatus"),
		RecordingSid: r.PostFormValue("RecordingSid"),
	}
	if cb.CallSid == "" {
		return StatusCallback{}, ErrMissingCallSid
	}
	cb.Status = calls.Parse(cb.RawStatus)

	if v := strings.TrimSpace(r.PostFormValue("CallDuration")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return StatusCallback{}, errors.New("telephony: CallDuration must be a non-negative integer")
		}
		cb.DurationSeconds = n
	}
	// Twilio uses RFC 1123 here; a missing or odd value is not fatal.
	if ts, err := time.Parse(time.RFC1123Z, r.PostFormValue("Timestamp")); err == nil {
		cb.Timestamp = ts.UTC()
	}
	return cb, nil
}

// Apply folds the callback into log. A terminal row keeps its status; a late final
// callback may still fill in the duration.
func (cb StatusCallback) Apply(log calls.CallLog, now time.Time) calls.CallLog {
	if log.ProviderCallID == "" {
		log.ProviderCallID = cb.CallSid
	}
	if log.Status.Terminal() {
		if log.DurationSeconds == 0 && cb.DurationSeconds > 0 {
			log.DurationSeconds = cb.DurationSeconds
		}
		return log
	}
	if cb.Status != calls.StatusUnknown {
		log.Status = cb.Status
	}
	if cb.DurationSeconds > 0 {
		log.DurationSeconds = cb.DurationSeconds
	}
	if log.Status.Terminal() && log.EndedAt == nil {
		at := cb.Timestamp
		if at.IsZero() {
			at = now.UTC()
		}
		log.EndedAt = &at
	}
	return log
}
