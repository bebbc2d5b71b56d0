package gateway

import (
	"encoding/json"
	"time"

	"github.com/iliyamo/realtime-auction/internal/fanout"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// Frame types, matching spec.md §6's wire vocabulary exactly.
const (
	TypeJoin            = "auction:join"
	TypeLeave           = "auction:leave"
	TypeBidPlaced       = "BID_PLACED"
	TypeServerTime      = "SERVER_TIME"
	TypeBidAccepted     = "BID_ACCEPTED"
	TypeBidRejected     = "BID_REJECTED"
	TypeUpdateBid       = "UPDATE_BID"
	TypeAuctionExtended = "AUCTION_EXTENDED"
	TypeAuctionEnded    = "AUCTION_ENDED"
)

// envelope is the wire shape for every frame in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encode(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: frameType, Payload: raw})
}

// JoinPayload is TypeJoin/TypeLeave's inbound payload.
type JoinPayload struct {
	AuctionID string `json:"auctionId"`
}

// BidPlacedPayload is TypeBidPlaced's inbound payload.
type BidPlacedPayload struct {
	AuctionID string       `json:"auctionId"`
	Amount    money.Amount `json:"amount"`
}

// ServerTimePayload is emitted once right after a successful handshake so
// clients can compute clock skew against their own local countdown. serverTime
// travels as epoch millis, never an RFC3339 string, so the client's
// offset = serverTime - clientTime subtraction is a plain integer op.
type ServerTimePayload struct {
	ServerTime int64 `json:"serverTime"`
}

// BidAcceptedPayload is TypeBidAccepted's unicast-to-bidder payload.
type BidAcceptedPayload struct {
	AuctionID string         `json:"auctionId"`
	Bid       fanout.BidView `json:"bid"`
}

// BidRejectedDetails carries the BID_TOO_LOW specifics, snake_case per
// spec.md §6/§7 scenario S2.
type BidRejectedDetails struct {
	CurrentBid *money.Amount `json:"current_bid,omitempty"`
	MinimumBid *money.Amount `json:"minimum_bid,omitempty"`
	YourBid    *money.Amount `json:"your_bid,omitempty"`
	IsFirstBid *bool         `json:"is_first_bid,omitempty"`
}

// BidRejectedPayload is TypeBidRejected's unicast-to-bidder payload.
type BidRejectedPayload struct {
	AuctionID string              `json:"auctionId"`
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	Details   *BidRejectedDetails `json:"details,omitempty"`
}

// UpdateBidPayload is TypeUpdateBid's room-broadcast payload.
type UpdateBidPayload struct {
	AuctionID string         `json:"auctionId"`
	Bid       fanout.BidView `json:"bid"`
}

// AuctionExtendedPayload is TypeAuctionExtended's room-broadcast payload.
type AuctionExtendedPayload struct {
	AuctionID  string    `json:"auctionId"`
	OldEndTime time.Time `json:"oldEndTime"`
	NewEndTime time.Time `json:"newEndTime"`
	ExtendedBy int64     `json:"extendedBy"`
}

// AuctionEndedPayload is TypeAuctionEnded's room-broadcast payload.
type AuctionEndedPayload struct {
	AuctionID  string        `json:"auctionId"`
	WinnerID   *string       `json:"winnerId"`
	WinningBid *money.Amount `json:"winningBid"`
	TotalBids  int64         `json:"totalBids"`
	EndTime    time.Time     `json:"endTime"`
}
