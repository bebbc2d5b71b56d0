package model

import (
	"time"

	"github.com/iliyamo/realtime-auction/internal/money"
)

// Bid is an append-only cold record; every accepted bid produces exactly one.
type Bid struct {
	BidID        string
	AuctionID    string
	BidderID     string
	Amount       money.Amount
	BidTime      time.Time
	PreviousBid  money.Amount
	IsWinning    bool
	IPAddress    string
	UserAgent    string
}

// BidMetadata carries client-supplied context that never affects admission
// decisions (ipAddress/userAgent only).
type BidMetadata struct {
	IPAddress string
	UserAgent string
}
