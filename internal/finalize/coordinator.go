// Package finalize implements the Finalization Coordinator (C5): the
// component responsible for making sure every auction transitions from
// active to ended exactly once, no matter which of its triggers fires
// first, and no matter how many times a trigger fires. The commit path
// (P3 → enqueue cold-mirror write-down → fan-out publish) is idempotent by
// construction since hotstore.Finalize itself is the single writer that
// decides OK vs ALREADY_FINAL; everything here only decides *when* to ask.
// The cold-mirror write rides the finalize-auction job queue rather than a
// direct DB call so a slow or failing MySQL write retries with backoff
// without delaying the real-time AUCTION_ENDED broadcast, which still goes
// out synchronously from here.
//
// This generalizes the teacher's reservation-expiry sweep
// (internal/repository/seat_hold_repository.go's hold-expiry handling) from
// a single poll-driven trigger into three: a scheduled timer per auction
// (Trigger A), a reactive keyspace-notification listener (Trigger B), and a
// periodic sweep that catches whatever both triggers missed (crash
// recovery, clock drift, a dropped notification).
package finalize

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/realtime-auction/internal/coldstore"
	"github.com/iliyamo/realtime-auction/internal/fanout"
	"github.com/iliyamo/realtime-auction/internal/hotstore"
	"github.com/iliyamo/realtime-auction/internal/jobs"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// Enqueuer is the subset of the Background Job Runner the Coordinator needs
// to hand off the durable cold-mirror write-down. A narrow interface here
// keeps this package from depending on the runner's AMQP plumbing.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue, key string, payload interface{}) error
}

// Coordinator owns Triggers A/B and the idempotent commit path.
type Coordinator struct {
	hot      *hotstore.Store
	auctions *coldstore.AuctionRepo
	jobs     Enqueuer
	bus      *fanout.Bus
	log      *logrus.Entry

	sweepInterval time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New constructs a Coordinator.
func New(hot *hotstore.Store, auctions *coldstore.AuctionRepo, enqueuer Enqueuer, bus *fanout.Bus, sweepInterval time.Duration, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if sweepInterval <= 0 {
		sweepInterval = 10 * time.Second
	}
	return &Coordinator{
		hot:           hot,
		auctions:      auctions,
		jobs:          enqueuer,
		bus:           bus,
		log:           log.WithField("component", "finalize"),
		sweepInterval: sweepInterval,
		timers:        make(map[string]*time.Timer),
	}
}

// ScheduleAt arms Trigger A for auctionID at endTime, replacing any timer
// already armed for it (a later call always wins, matching the policy that
// an anti-snipe extension pushes the deadline out and the previous timer's
// fire would be premature).
func (c *Coordinator) ScheduleAt(auctionID string, endTime time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.timers[auctionID]; ok {
		existing.Stop()
	}
	d := time.Until(endTime)
	if d < 0 {
		d = 0
	}
	c.timers[auctionID] = time.AfterFunc(d, func() {
		c.commit(context.Background(), auctionID, "scheduled")
	})
}

// OnExpiry runs the commit path under Trigger B's label for a caller that
// learns of an expired deadline by some route other than Watch. Watch
// commits directly on each keyspace notification, and no component in this
// repository calls OnExpiry.
func (c *Coordinator) OnExpiry(auctionID string) {
	c.commit(context.Background(), auctionID, "expiry-notification")
}

// Watch runs Trigger B's keyspace-notification listener until ctx is
// cancelled. Call once at startup.
func (c *Coordinator) Watch(ctx context.Context) {
	ids, closeFn := c.hot.ExpiredAuctionIDs(ctx)
	defer closeFn()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-ids:
			if !ok {
				return
			}
			c.commit(ctx, id, "expiry-notification")
		}
	}
}

// Sweep runs the periodic safety-net pass until ctx is cancelled: any
// auction whose endTime has passed but is still in the active index gets
// committed, whether or not Triggers A/B already tried.
func (c *Coordinator) Sweep(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := c.hot.DueAuctionIDs(ctx, time.Now().UTC())
			if err != nil {
				c.log.WithError(err).Warn("sweep: list due auctions failed")
				continue
			}
			for _, id := range ids {
				c.commit(ctx, id, "sweep")
			}
		}
	}
}

// Recover runs once at startup: it lists every auction the cold store
// believes is still active, re-hydrates it into the hot store if a restart
// lost the in-memory Redis instance's state (Install is a no-op if the row
// already exists), and re-arms Trigger A. Auctions already past their
// endTime commit immediately rather than waiting for the timer.
func (c *Coordinator) Recover(ctx context.Context, retention time.Duration) error {
	active, err := c.auctions.ListActive(ctx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, a := range active {
		if _, err := c.hot.Install(ctx, a, retention); err != nil {
			c.log.WithError(err).WithField("auctionId", a.AuctionID).Error("recover: install failed")
			continue
		}
		if !a.EndTime.After(now) {
			c.commit(ctx, a.AuctionID, "recover")
			continue
		}
		c.ScheduleAt(a.AuctionID, a.EndTime)
	}
	return nil
}

// commit is the idempotent P3 → cold mirror → publish path shared by all
// three triggers.
func (c *Coordinator) commit(ctx context.Context, auctionID string, trigger string) {
	c.mu.Lock()
	if t, ok := c.timers[auctionID]; ok {
		t.Stop()
		delete(c.timers, auctionID)
	}
	c.mu.Unlock()

	res, err := c.hot.Finalize(ctx, auctionID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, hotstore.ErrAlreadyFinal):
			return
		case errors.Is(err, hotstore.ErrNotFound):
			c.log.WithField("auctionId", auctionID).WithField("trigger", trigger).Warn("finalize: auction not in hot store, skipping")
			return
		case errors.Is(err, hotstore.ErrNotEnded):
			return
		default:
			c.log.WithError(err).WithField("auctionId", auctionID).WithField("trigger", trigger).Error("finalize: P3 failed")
			return
		}
	}

	var winnerID *string
	var winningBid *money.Amount
	if res.WinnerID != "" {
		winnerID = &res.WinnerID
		wb := res.WinningBid
		winningBid = &wb
	}

	payload := jobs.FinalizePayload{
		AuctionID:       auctionID,
		CurrentBid:      res.WinningBid,
		HighestBidderID: res.WinnerID,
		TotalBids:       res.TotalBids,
		ServerTime:      time.Now().UTC(),
	}
	if err := c.jobs.Enqueue(ctx, jobs.QueueFinalizeAuction, jobs.FinalizeKey(auctionID), payload); err != nil {
		c.log.WithError(err).WithField("auctionId", auctionID).Error("finalize: enqueue cold mirror write failed")
	}

	if err := c.bus.PublishAuctionEnded(ctx, fanout.AuctionEndedEvent{
		AuctionID:  auctionID,
		WinnerID:   winnerID,
		WinningBid: winningBid,
		TotalBids:  res.TotalBids,
		EndTime:    res.EndTime,
	}); err != nil {
		c.log.WithError(err).WithField("auctionId", auctionID).Warn("finalize: publish failed")
	}

	c.log.WithFields(logrus.Fields{
		"auctionId": auctionID, "trigger": trigger, "totalBids": res.TotalBids,
	}).Info("auction finalized")
}
