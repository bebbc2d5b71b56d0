// Package fanout implements the cross-instance publish/subscribe bus (C6).
// It rides on the same Redis client the hot store uses — per spec.md §9,
// the bus publisher/subscriber is one of the two process-wide objects this
// system keeps — and relies on Redis Pub/Sub's per-channel FIFO delivery to
// give every subscriber the same total order the Hot-State Store committed
// in, since every publish for one auctionId originates from the single
// writer that owns that auctionId's primitives.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/realtime-auction/internal/money"
)

const (
	channelBidPlaced   = "bus:bid-placed"
	channelAuctionEnded = "bus:auction-ended"
)

// BidView is the wire-shape of a placed bid, matching spec.md §6's
// BID_ACCEPTED/UPDATE_BID payload.
type BidView struct {
	Amount          money.Amount `json:"amount"`
	BidderID        string       `json:"bidderId"`
	BidderUsername  string       `json:"bidderUsername"`
	Timestamp       time.Time    `json:"timestamp"`
	TotalBids       int64        `json:"totalBids"`
}

// ExtensionView matches spec.md §6's AUCTION_EXTENDED payload.
type ExtensionView struct {
	OldEndTime  time.Time `json:"oldEndTime"`
	NewEndTime  time.Time `json:"newEndTime"`
	ExtendedBy  int64     `json:"extendedBy"` // seconds
}

// BidPlacedEvent is published after P1 commits (and, if applicable, after
// P2 commits an extension). auction-extended is piggybacked on this event
// per spec.md §4.6.
type BidPlacedEvent struct {
	AuctionID     string         `json:"auctionId"`
	Bid           BidView        `json:"bid"`
	Extended      bool           `json:"extended,omitempty"`
	ExtensionData *ExtensionView `json:"extensionData,omitempty"`
}

// AuctionEndedEvent is published exactly once per auction after P3 commits.
type AuctionEndedEvent struct {
	AuctionID  string        `json:"auctionId"`
	WinnerID   *string       `json:"winnerId"`
	WinningBid *money.Amount `json:"winningBid"`
	TotalBids  int64         `json:"totalBids"`
	EndTime    time.Time     `json:"endTime"`
}

// Bus is the Redis Pub/Sub-backed implementation of C6.
type Bus struct {
	rdb *redis.Client
	log *logrus.Entry
}

// New constructs a Bus bound to the given Redis client.
func New(rdb *redis.Client, log *logrus.Entry) *Bus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Bus{rdb: rdb, log: log.WithField("component", "fanout")}
}

// PublishBidPlaced publishes bid-placed (with auction-extended piggybacked).
// Loss of this publish never makes the truth wrong per spec.md §9 — the
// caller must only ever invoke this after P1 has already returned OK.
func (b *Bus) PublishBidPlaced(ctx context.Context, ev BidPlacedEvent) error {
	return b.publish(ctx, channelBidPlaced, ev)
}

// PublishAuctionEnded publishes auction-ended after P3 has committed.
func (b *Bus) PublishAuctionEnded(ctx context.Context, ev AuctionEndedEvent) error {
	return b.publish(ctx, channelAuctionEnded, ev)
}

func (b *Bus) publish(ctx context.Context, channel string, ev interface{}) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("fanout: marshal %s: %w", channel, err)
	}
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.WithError(err).WithField("channel", channel).Warn("publish failed")
		return fmt.Errorf("fanout: publish %s: %w", channel, err)
	}
	return nil
}

// Subscription delivers decoded events to a Gateway instance. Every Gateway
// instance subscribes to all topics, per spec.md §4.6.
type Subscription struct {
	BidPlaced    <-chan BidPlacedEvent
	AuctionEnded <-chan AuctionEndedEvent
	pubsub       *redis.PubSub
}

// Close releases the underlying Redis connection.
func (s *Subscription) Close() error { return s.pubsub.Close() }

// Subscribe opens one Redis Pub/Sub connection and demultiplexes both
// topics into typed, FIFO, per-subscriber channels.
func (b *Bus) Subscribe(ctx context.Context) *Subscription {
	pubsub := b.rdb.Subscribe(ctx, channelBidPlaced, channelAuctionEnded)
	bidCh := make(chan BidPlacedEvent, 256)
	endCh := make(chan AuctionEndedEvent, 64)

	go func() {
		defer close(bidCh)
		defer close(endCh)
		ch := pubsub.Channel()
		for msg := range ch {
			switch msg.Channel {
			case channelBidPlaced:
				var ev BidPlacedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.WithError(err).Warn("discarding malformed bid-placed message")
					continue
				}
				bidCh <- ev
			case channelAuctionEnded:
				var ev AuctionEndedEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.WithError(err).Warn("discarding malformed auction-ended message")
					continue
				}
				endCh <- ev
			}
		}
	}()

	return &Subscription{BidPlaced: bidCh, AuctionEnded: endCh, pubsub: pubsub}
}
