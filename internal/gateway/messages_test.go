package gateway

import (
	"encoding/json"
	"testing"

	"github.com/iliyamo/realtime-auction/internal/money"
)

func TestEncodeWrapsTypeAndPayload(t *testing.T) {
	frame, err := encode(TypeServerTime, ServerTimePayload{})
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeServerTime {
		t.Fatalf("expected %s, got %s", TypeServerTime, env.Type)
	}
}

func TestBidPlacedPayloadRoundTrip(t *testing.T) {
	p := BidPlacedPayload{AuctionID: "auc-1", Amount: money.MustFromString("20.00")}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var out BidPlacedPayload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.AuctionID != p.AuctionID || !out.Amount.Equal(p.Amount) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
