package telephony

import (
	"context"
	"errors"
	"strings"
	"testing"

	"campaign-console/internal/calls"
)

func TestSimulatedDialer(t *testing.T) {
	d := &SimulatedDialer{}
	res, err := d.Dial(context.Background(), DialRequest{CampaignID: "42", LeadID: "l1", To: "+15550102030"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(res.ProviderCallID, "CA") || res.Status != calls.StatusInitiated {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(d.Placed()) != 1 {
		t.Fatalf("expected one placed call")
	}

	if _, err := d.Dial(context.Background(), DialRequest{CampaignID: "42"}); !errors.Is(err, ErrInvalidDial) {
		t.Fatalf("expected ErrInvalidDial, got %v", err)
	}
}
