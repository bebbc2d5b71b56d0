// Package extension implements the anti-snipe policy (C4): a pure function
// of the hot-state end time that decides whether a just-committed bid
// should push the auction's close out, plus the thin wrapper that invokes
// primitive P2 and reports the decision back to the caller.
package extension

import (
	"context"
	"time"

	"github.com/iliyamo/realtime-auction/internal/hotstore"
)

// Defaults per spec.md §4.4.
const (
	DefaultThreshold = 30 * time.Second
	DefaultDuration   = 30 * time.Second
)

// Policy holds the configured threshold/duration pair.
type Policy struct {
	Threshold time.Duration
	Duration  time.Duration
}

// NewPolicy returns a Policy, substituting the spec defaults for any
// non-positive configured value.
func NewPolicy(threshold, duration time.Duration) Policy {
	p := Policy{Threshold: threshold, Duration: duration}
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

// ShouldExtend is the pure decision function: true iff a bid committing at
// now, with auction end at endTime, falls within the anti-snipe window.
// This mirrors exactly the precondition evaluated inside P2's Lua script;
// it exists standalone so callers (and tests) can reason about the policy
// without a Redis round trip.
func (p Policy) ShouldExtend(now, endTime time.Time) bool {
	remaining := endTime.Sub(now)
	return remaining > 0 && remaining <= p.Threshold
}

// Evaluate invokes primitive P2 against the hot store. Repeated late bids
// cause repeated extensions by design: each call re-evaluates against the
// auction's current endTime, which P2 has already pushed out if a previous
// call extended it.
func Evaluate(ctx context.Context, store *hotstore.Store, auctionID string, serverTime time.Time, p Policy) (hotstore.ExtendResult, error) {
	return store.Extend(ctx, auctionID, serverTime, p.Threshold, p.Duration)
}
