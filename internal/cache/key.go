package cache

import "strings"

// Key is a composite cache key, e.g. K("campaigns", "42").
type Key []string

func K(parts ...string) Key { return Key(parts) }

func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix matches whole segments: ["campaigns"] is a prefix of ["campaigns", "42"],
// ["campaign"] is not.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

func (k Key) id() string { return strings.Join(k, "\x00") }

// Keys used across the console.
var (
	CampaignList = K("campaigns")
	Voices       = K("voices")
	Dashboard    = K("analytics", "dashboard")
)

func Campaign(id string) Key        { return K("campaigns", id) }
func CampaignDetails(id string) Key { return K("campaigns", id, "details") }
func ActiveCalls(id string) Key     { return K("calls", "active", id) }
func CallHistory(id string) Key     { return K("calls", "history", id) }
func Conversation(id string) Key    { return K("conversations", id) }
