// Package hotstore implements the authoritative in-memory state for active
// auctions (C1). All three atomic primitives (placeBid, extend, finalize)
// are executed server-side as Redis Lua scripts so that a read-modify-write
// race between concurrent bidders on the same auctionId is structurally
// impossible: Redis itself, not a lock held by our process, is the single
// writer. This mirrors the teacher's use of a Lua script for the token
// bucket rate limiter (internal/middleware/ratelimit.go upstream), extended
// here to the bid-admission, extension and finalization primitives.
//
// Amounts are stored as integer minor units (cents) so that comparisons and
// additions inside the script are exact, per spec.md's decimal-money
// requirement; the money.Amount boundary type converts at the edges.
package hotstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// Sentinel errors mirroring the precondition taxonomy of spec.md §4.1.
var (
	ErrNotFound        = errors.New("hotstore: auction not found")
	ErrInvalidAmount    = errors.New("hotstore: invalid amount")
	ErrNotActive        = errors.New("hotstore: auction not active")
	ErrEnded             = errors.New("hotstore: auction ended")
	ErrSellerCannotBid   = errors.New("hotstore: seller cannot bid on own auction")
	ErrAlreadyFinal      = errors.New("hotstore: auction already finalized")
	ErrNotEnded          = errors.New("hotstore: auction has not reached end time")
)

// TooLowError is returned by PlaceBid when amount < minimumBid. It carries
// the structured payload spec.md §4.1/§6 requires for BID_TOO_LOW.
type TooLowError struct {
	CurrentBid  money.Amount
	MinimumBid  money.Amount
	YourBid     money.Amount
	IsFirstBid  bool
}

func (e *TooLowError) Error() string {
	return fmt.Sprintf("hotstore: bid %s below minimum %s", e.YourBid, e.MinimumBid)
}

const activeIndexKey = "auction:active-index"

func auctionKey(auctionID string) string  { return "auction:{" + auctionID + "}" }
func bidsKey(auctionID string) string     { return "auction:{" + auctionID + "}:bids" }
func rateLimitKey(bidderID string) string { return "ratelimit:bid:" + bidderID }

// deadlineKey carries no data; its sole purpose is to expire at exactly the
// auction's current endTime so a Redis keyspace notification fires,
// independent of the auction hash's own (much longer) retention TTL. This
// is the Finalization Coordinator's Trigger B.
func deadlineKey(auctionID string) string { return "auction:deadline:{" + auctionID + "}" }

// DeadlineKeyPattern returns a glob matching every deadline key. The
// Coordinator does not subscribe with it: ExpiredAuctionIDs listens on the
// expired keyevent channel and filters names with AuctionIDFromDeadlineKey.
func DeadlineKeyPattern() string { return "auction:deadline:*" }

// AuctionIDFromDeadlineKey extracts the auctionId from an expired deadline
// key name delivered by a keyspace-notification event.
func AuctionIDFromDeadlineKey(key string) (string, bool) {
	const prefix = "auction:deadline:{"
	const suffix = "}"
	if len(key) <= len(prefix)+len(suffix) || key[:len(prefix)] != prefix || key[len(key)-1:] != suffix {
		return "", false
	}
	return key[len(prefix) : len(key)-len(suffix)], true
}

// Store is the Redis-backed implementation of the C1 hot-state primitives.
type Store struct {
	rdb *redis.Client

	placeBidScript *redis.Script
	extendScript   *redis.Script
	finalizeScript *redis.Script
	cancelScript   *redis.Script
}

// New constructs a Store bound to the given Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{
		rdb:            rdb,
		placeBidScript: redis.NewScript(placeBidLua),
		extendScript:   redis.NewScript(extendLua),
		finalizeScript: redis.NewScript(finalizeLua),
		cancelScript:   redis.NewScript(cancelLua),
	}
}

// PlaceBidResult is the success payload of primitive P1.
type PlaceBidResult struct {
	PreviousBid     money.Amount
	PreviousBidder  string
	TotalBids       int64
}

// PlaceBid is primitive P1. incrementHint of money.Amount{} (zero) means
// "use the auction's stored bidIncrement".
func (s *Store) PlaceBid(ctx context.Context, auctionID string, amount money.Amount, bidderID string, serverTime time.Time, incrementHint money.Amount) (PlaceBidResult, error) {
	if !amount.IsPositive() {
		return PlaceBidResult{}, ErrInvalidAmount
	}
	res, err := s.placeBidScript.Run(ctx, s.rdb,
		[]string{auctionKey(auctionID), bidsKey(auctionID), activeIndexKey},
		amount.Cents(), bidderID, serverTime.UnixMilli(), incrementHint.Cents(), auctionID,
	).Result()
	if err != nil {
		return PlaceBidResult{}, translateScriptErr(err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return PlaceBidResult{}, fmt.Errorf("hotstore: unexpected placeBid result %#v", res)
	}
	code, _ := arr[0].(string)
	switch code {
	case "OK":
		return PlaceBidResult{
			PreviousBid:    money.FromCents(asInt64(arr[1])),
			PreviousBidder: asString(arr[2]),
			TotalBids:      asInt64(arr[3]),
		}, nil
	case "NOT_FOUND":
		return PlaceBidResult{}, ErrNotFound
	case "INVALID_AMOUNT":
		return PlaceBidResult{}, ErrInvalidAmount
	case "NOT_ACTIVE":
		return PlaceBidResult{}, ErrNotActive
	case "ENDED":
		return PlaceBidResult{}, ErrEnded
	case "SELLER_CANNOT_BID":
		return PlaceBidResult{}, ErrSellerCannotBid
	case "TOO_LOW":
		return PlaceBidResult{}, &TooLowError{
			CurrentBid: money.FromCents(asInt64(arr[1])),
			MinimumBid: money.FromCents(asInt64(arr[2])),
			YourBid:    amount,
			IsFirstBid: asInt64(arr[3]) == 1,
		}
	default:
		return PlaceBidResult{}, fmt.Errorf("hotstore: unknown placeBid code %q", code)
	}
}

// ExtendResult is the payload of primitive P2.
type ExtendResult struct {
	Extended    bool
	OldEndTime  time.Time
	NewEndTime  time.Time
	ExtendedBy  time.Duration
	TimeRemaining time.Duration
}

// Extend is primitive P2.
func (s *Store) Extend(ctx context.Context, auctionID string, serverTime time.Time, threshold, duration time.Duration) (ExtendResult, error) {
	res, err := s.extendScript.Run(ctx, s.rdb,
		[]string{auctionKey(auctionID), activeIndexKey, deadlineKey(auctionID)},
		serverTime.UnixMilli(), threshold.Milliseconds(), duration.Milliseconds(), auctionID,
	).Result()
	if err != nil {
		return ExtendResult{}, translateScriptErr(err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return ExtendResult{}, fmt.Errorf("hotstore: unexpected extend result %#v", res)
	}
	code, _ := arr[0].(string)
	switch code {
	case "NOT_FOUND":
		return ExtendResult{}, ErrNotFound
	case "NOT_ACTIVE":
		return ExtendResult{}, ErrNotActive
	case "extended":
		return ExtendResult{
			Extended:   true,
			OldEndTime: time.UnixMilli(asInt64(arr[1])).UTC(),
			NewEndTime: time.UnixMilli(asInt64(arr[2])).UTC(),
			ExtendedBy: duration,
		}, nil
	case "not-extended":
		return ExtendResult{
			Extended:      false,
			NewEndTime:    time.UnixMilli(asInt64(arr[1])).UTC(),
			TimeRemaining: time.Duration(asInt64(arr[2])) * time.Millisecond,
		}, nil
	default:
		return ExtendResult{}, fmt.Errorf("hotstore: unknown extend code %q", code)
	}
}

// FinalizeResult is the payload of primitive P3.
type FinalizeResult struct {
	WinnerID    string // empty if no bids
	WinningBid  money.Amount
	TotalBids   int64
	EndTime     time.Time
}

// Finalize is primitive P3.
func (s *Store) Finalize(ctx context.Context, auctionID string, serverTime time.Time) (FinalizeResult, error) {
	res, err := s.finalizeScript.Run(ctx, s.rdb,
		[]string{auctionKey(auctionID), activeIndexKey, deadlineKey(auctionID)},
		serverTime.UnixMilli(), auctionID,
	).Result()
	if err != nil {
		return FinalizeResult{}, translateScriptErr(err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return FinalizeResult{}, fmt.Errorf("hotstore: unexpected finalize result %#v", res)
	}
	code, _ := arr[0].(string)
	switch code {
	case "NOT_FOUND":
		return FinalizeResult{}, ErrNotFound
	case "NOT_ENDED":
		return FinalizeResult{}, ErrNotEnded
	case "ALREADY_FINAL":
		return FinalizeResult{}, ErrAlreadyFinal
	case "OK":
		return FinalizeResult{
			WinnerID:   asString(arr[1]),
			WinningBid: money.FromCents(asInt64(arr[2])),
			TotalBids:  asInt64(arr[3]),
			EndTime:    time.UnixMilli(asInt64(arr[4])).UTC(),
		}, nil
	default:
		return FinalizeResult{}, fmt.Errorf("hotstore: unknown finalize code %q", code)
	}
}

// Cancel marks an auction cancelled outside P1/P2/P3, per spec.md §9's
// administrative-cancel Open Question. It is idempotent against a
// concurrent finalize (ALREADY_FINAL wins).
func (s *Store) Cancel(ctx context.Context, auctionID string) error {
	res, err := s.cancelScript.Run(ctx, s.rdb, []string{auctionKey(auctionID), activeIndexKey, deadlineKey(auctionID)}, auctionID).Result()
	if err != nil {
		return translateScriptErr(err)
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return fmt.Errorf("hotstore: unexpected cancel result %#v", res)
	}
	code, _ := arr[0].(string)
	switch code {
	case "OK":
		return nil
	case "NOT_FOUND":
		return ErrNotFound
	case "ALREADY_FINAL":
		return ErrAlreadyFinal
	default:
		return fmt.Errorf("hotstore: unknown cancel code %q", code)
	}
}

// Install hydrates a cold-store auction row into the hot store (lazy
// hydration, §4.3 step 2, and crash recovery, §4.5). It is a put-if-absent:
// if the key already exists, Install is a no-op and returns false so that
// only one racing hydrator "wins" per spec.md's lazy-hydration semantics.
func (s *Store) Install(ctx context.Context, a *model.Auction, retention time.Duration) (bool, error) {
	ttl := time.Until(a.EndTime) + retention
	if ttl <= 0 {
		ttl = retention
	}
	fields := map[string]interface{}{
		"sellerId":        a.SellerID,
		"startingPrice":   a.StartingPrice.Cents(),
		"bidIncrement":    a.BidIncrement.Cents(),
		"startTime":       a.StartTime.UnixMilli(),
		"originalEndTime": a.OriginalEndTime.UnixMilli(),
		"currentBid":      a.CurrentBid.Cents(),
		"highestBidderId": a.HighestBidderID,
		"totalBids":       a.TotalBids,
		"endTime":         a.EndTime.UnixMilli(),
		"status":          string(a.Status),
	}
	if a.ReservePrice != nil {
		fields["reservePrice"] = a.ReservePrice.Cents()
	}

	installed, err := installLuaRun(ctx, s.rdb, auctionKey(a.AuctionID), activeIndexKey, deadlineKey(a.AuctionID), a.AuctionID, fields, ttl)
	return installed, err
}

// RateLimitAllow attempts a put-if-absent token for bidderID that expires
// after window. It returns true if the caller is allowed to proceed.
func (s *Store) RateLimitAllow(ctx context.Context, bidderID string, window time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, rateLimitKey(bidderID), "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("hotstore: rate limit check: %w", err)
	}
	return ok, nil
}

// ExpiredAuctionIDs subscribes to Redis keyspace notifications for expired
// keys and yields the auctionId of every deadline key that expires, i.e.
// Trigger B. The caller's Redis server must have notify-keyspace-events set
// to include "Ex" (expired events); Install/Extend never rely on this for
// correctness, only for promptness, so a misconfigured server degrades to
// Trigger A (and the Coordinator's periodic sweep) alone.
func (s *Store) ExpiredAuctionIDs(ctx context.Context) (<-chan string, func() error) {
	db := s.rdb.Options().DB
	channel := fmt.Sprintf("__keyevent@%d__:expired", db)
	pubsub := s.rdb.Subscribe(ctx, channel)
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			if id, ok := AuctionIDFromDeadlineKey(msg.Payload); ok {
				out <- id
			}
		}
	}()
	return out, pubsub.Close
}

// ActiveAuctionIDs returns every auctionId currently in the active index,
// ordered by endTime ascending. Nothing in this repository calls it; the
// Finalization Coordinator's crash-recovery pass reads the cold store
// instead.
func (s *Store) ActiveAuctionIDs(ctx context.Context) ([]string, error) {
	return s.rdb.ZRange(ctx, activeIndexKey, 0, -1).Result()
}

// DueAuctionIDs returns every auctionId in the active index whose endTime
// is at or before asOf. Used by the Finalization Coordinator's periodic
// sweep, the safety net beneath Triggers A and B.
func (s *Store) DueAuctionIDs(ctx context.Context, asOf time.Time) ([]string, error) {
	return s.rdb.ZRangeByScore(ctx, activeIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(asOf.UnixMilli(), 10),
	}).Result()
}

// Get loads the full auction record from the hot store, or ErrNotFound.
func (s *Store) Get(ctx context.Context, auctionID string) (*model.Auction, error) {
	m, err := s.rdb.HGetAll(ctx, auctionKey(auctionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hotstore: get %s: %w", auctionID, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	a := &model.Auction{
		AuctionID:       auctionID,
		SellerID:        m["sellerId"],
		HighestBidderID: m["highestBidderId"],
		Status:          model.Status(m["status"]),
	}
	a.StartingPrice = money.FromCents(mustAtoi64(m["startingPrice"]))
	a.BidIncrement = money.FromCents(mustAtoi64(m["bidIncrement"]))
	a.CurrentBid = money.FromCents(mustAtoi64(m["currentBid"]))
	a.TotalBids = mustAtoi64(m["totalBids"])
	a.StartTime = time.UnixMilli(mustAtoi64(m["startTime"])).UTC()
	a.OriginalEndTime = time.UnixMilli(mustAtoi64(m["originalEndTime"])).UTC()
	a.EndTime = time.UnixMilli(mustAtoi64(m["endTime"])).UTC()
	if rp, ok := m["reservePrice"]; ok && rp != "" {
		v := money.FromCents(mustAtoi64(rp))
		a.ReservePrice = &v
	}
	return a, nil
}

func translateScriptErr(err error) error {
	return fmt.Errorf("hotstore: script execution: %w", err)
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	default:
		return 0
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func mustAtoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
