// Package model defines the shared domain types for the bidding engine:
// Auction, Bid and the status enum. These types are used by every
// component from the hot store down to the WebSocket wire shapes.
package model

import (
	"time"

	"github.com/iliyamo/realtime-auction/internal/money"
)

// Status is the auction lifecycle state. status=ended is terminal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusEnded     Status = "ended"
	StatusCancelled Status = "cancelled"
)

// Auction is the authoritative record while Status == StatusActive in the
// hot store, and the durable mirror otherwise.
type Auction struct {
	AuctionID       string
	SellerID        string
	StartingPrice   money.Amount
	BidIncrement    money.Amount
	ReservePrice    *money.Amount
	StartTime       time.Time
	OriginalEndTime time.Time

	CurrentBid      money.Amount
	HighestBidderID string // empty means unset
	TotalBids       int64
	EndTime         time.Time
	Status          Status
}

// HasBids reports whether any bid has been accepted yet.
func (a *Auction) HasBids() bool {
	return a.HighestBidderID != ""
}
