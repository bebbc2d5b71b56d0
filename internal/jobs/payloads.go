package jobs

import (
	"fmt"
	"time"

	"github.com/iliyamo/realtime-auction/internal/money"
)

// PersistBidPayload is the persist-bid job body (§4.3 step 3a).
type PersistBidPayload struct {
	AuctionID   string       `json:"auctionId"`
	BidID       string       `json:"bidId"`
	BidderID    string       `json:"bidderId"`
	Amount      money.Amount `json:"amount"`
	ServerTime  time.Time    `json:"serverTime"`
	PreviousBid money.Amount `json:"previousBid"`
	TotalBids   int64        `json:"totalBids"`
	IPAddress   string       `json:"ipAddress,omitempty"`
	UserAgent   string       `json:"userAgent,omitempty"`
}

// PersistBidKey builds the natural key from spec.md §4.8.
func PersistBidKey(auctionID, bidderID string, serverTime time.Time) string {
	return fmt.Sprintf("bid-%s-%s-%d", auctionID, bidderID, serverTime.UnixMicro())
}

// UpdateMirrorPayload is the update-auction-mirror job body (§4.3 steps 3b/3c).
type UpdateMirrorPayload struct {
	AuctionID       string        `json:"auctionId"`
	CurrentBid      money.Amount  `json:"currentBid"`
	HighestBidderID string        `json:"highestBidderId"`
	TotalBids       int64         `json:"totalBids"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	IsFinalize      bool          `json:"isFinalize,omitempty"`
}

// UpdateMirrorKey builds a coalescing key: one logical mirror write per
// auction per totalBids value is enough to make redelivery idempotent.
func UpdateMirrorKey(auctionID string, totalBids int64) string {
	return fmt.Sprintf("mirror-%s-%d", auctionID, totalBids)
}

// FinalizePayload is the finalize-auction job body (§4.5): the durable
// write-down of a P3 result the Finalization Coordinator already committed
// in the hot store. It carries the winner fields computed at commit time
// rather than asking the handler to recompute them, since by the time this
// job runs the hot-store row may already be gone past its retention TTL.
type FinalizePayload struct {
	AuctionID       string       `json:"auctionId"`
	CurrentBid      money.Amount `json:"currentBid"`
	HighestBidderID string       `json:"highestBidderId"`
	TotalBids       int64        `json:"totalBids"`
	ServerTime      time.Time    `json:"serverTime"`
}

// FinalizeKey builds the natural key from spec.md §4.8.
func FinalizeKey(auctionID string) string {
	return fmt.Sprintf("finalize-%s", auctionID)
}
