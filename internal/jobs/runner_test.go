package jobs

import (
	"testing"
	"time"

	"github.com/iliyamo/realtime-auction/internal/money"
)

func TestPersistBidKeyIsStableForSameInputs(t *testing.T) {
	ts := time.Unix(1000, 0)
	a := PersistBidKey("auc-1", "u1", ts)
	b := PersistBidKey("auc-1", "u1", ts)
	if a != b {
		t.Fatalf("expected stable key, got %q vs %q", a, b)
	}
}

func TestUpdateMirrorKeyDiffersByTotalBids(t *testing.T) {
	a := UpdateMirrorKey("auc-1", 1)
	b := UpdateMirrorKey("auc-1", 2)
	if a == b {
		t.Fatal("expected different keys for different totalBids")
	}
}

func TestFinalizeKey(t *testing.T) {
	if FinalizeKey("auc-9") != "finalize-auc-9" {
		t.Fatalf("unexpected key: %s", FinalizeKey("auc-9"))
	}
}

func TestQueueConfigsCoverAllQueues(t *testing.T) {
	for _, q := range []string{QueuePersistBid, QueueUpdateAuctionMirror, QueueFinalizeAuction} {
		if _, ok := queueConfigs[q]; !ok {
			t.Fatalf("missing config for queue %s", q)
		}
	}
}

func TestMirrorPayloadCarriesAmount(t *testing.T) {
	p := UpdateMirrorPayload{AuctionID: "a", CurrentBid: money.MustFromString("10.00"), TotalBids: 1}
	if !p.CurrentBid.Equal(money.MustFromString("10.00")) {
		t.Fatal("amount mismatch")
	}
}
