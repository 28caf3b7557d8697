package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal TwiML builder. Only the verbs the greeting needs.

var ErrEmptyGreeting = errors.New("telephony: greeting text is required")

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// Greeting is what the callee hears when the call connects.
type Greeting struct {
	Text string
	// Voice is a provider voice name, empty for the account default.
	Voice string
	// PauseSeconds is silence after the greeting before hanging up. Zero hangs up at once.
	PauseSeconds int
}

// RenderGreeting renders g as a TwiML document.
func RenderGreeting(g Greeting) (string, error) {
	text := strings.TrimSpace(g.Text)
	if text == "" {
		return "", ErrEmptyGreeting
	}

	r := twimlResponse{Verbs: []any{twimlSay{Voice: g.Voice, Text: text}}}
	if g.PauseSeconds > 0 {
		r.Verbs = append(r.Verbs, twimlPause{Length: g.PauseSeconds})
	}
	r.Verbs = append(r.Verbs, twimlHangup{})

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
