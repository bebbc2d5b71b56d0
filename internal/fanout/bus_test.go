package fanout

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/iliyamo/realtime-auction/internal/money"
)

func TestBidPlacedEventRoundTrip(t *testing.T) {
	ev := BidPlacedEvent{
		AuctionID: "auc-1",
		Bid: BidView{
			Amount:         money.MustFromString("105.00"),
			BidderID:       "u2",
			BidderUsername: "bob",
			Timestamp:      time.Unix(910, 0).UTC(),
			TotalBids:      2,
		},
		Extended: true,
		ExtensionData: &ExtensionView{
			OldEndTime: time.Unix(1000, 0).UTC(),
			NewEndTime: time.Unix(1030, 0).UTC(),
			ExtendedBy: 30,
		},
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var out BidPlacedEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.AuctionID != ev.AuctionID || !out.Bid.Amount.Equal(ev.Bid.Amount) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if !out.Extended || out.ExtensionData == nil || out.ExtensionData.ExtendedBy != 30 {
		t.Fatalf("extension payload lost: %+v", out.ExtensionData)
	}
}

func TestAuctionEndedEventNilWinner(t *testing.T) {
	ev := AuctionEndedEvent{AuctionID: "auc-2", TotalBids: 0, EndTime: time.Unix(2000, 0).UTC()}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	var out AuctionEndedEvent
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.WinnerID != nil || out.WinningBid != nil {
		t.Fatalf("expected nil winner fields, got %+v", out)
	}
}
