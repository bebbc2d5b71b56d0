// Package admission implements the Bid Admission Service (C3): the single
// entry point that turns a client's bid request into a committed P1 write,
// the follow-on write-down jobs, an anti-snipe evaluation, and a fan-out
// publish. It owns none of the truth itself — hotstore.Store does — and
// exists only to sequence the steps spec.md §4.3 requires around primitive
// P1, the way the teacher's handler layer sequences a repository call with
// validation and a response, but with an added lazy-hydration retry no
// teacher handler needed.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/realtime-auction/internal/coldstore"
	"github.com/iliyamo/realtime-auction/internal/extension"
	"github.com/iliyamo/realtime-auction/internal/fanout"
	"github.com/iliyamo/realtime-auction/internal/hotstore"
	"github.com/iliyamo/realtime-auction/internal/jobs"
	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// Wire error codes, matching spec.md §6/§7 exactly.
const (
	CodeBidTooLow         = "BID_TOO_LOW"
	CodeAuctionEnded       = "AUCTION_ENDED"
	CodeAuctionNotFound    = "AUCTION_NOT_FOUND"
	CodeAuctionNotActive   = "AUCTION_NOT_ACTIVE"
	CodeSellerCannotBid    = "SELLER_CANNOT_BID"
	CodeInvalidBidAmount   = "INVALID_BID_AMOUNT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeInvalidInput       = "INVALID_INPUT"
)

// Error is the structured rejection returned to the gateway for translation
// into a BID_REJECTED frame.
type Error struct {
	Code    string
	Message string

	// Populated only for CodeBidTooLow, matching the BID_TOO_LOW payload.
	CurrentBid *money.Amount
	MinimumBid *money.Amount
	YourBid    *money.Amount
	IsFirstBid bool
}

func (e *Error) Error() string { return fmt.Sprintf("admission: %s: %s", e.Code, e.Message) }

func newError(code, msg string) *Error { return &Error{Code: code, Message: msg} }

// Scheduler is the subset of the Finalization Coordinator's interface the
// admission service needs: when a bid forces a lazy hydration of an auction
// the coordinator never scheduled (because this process just started), the
// admission service must make sure Trigger A still gets armed.
type Scheduler interface {
	ScheduleAt(auctionID string, endTime time.Time)
}

// Request is the inbound placeBid request, matching spec.md §6's BID_PLACED
// inbound frame plus connection-derived metadata.
type Request struct {
	AuctionID string
	BidderID  string
	Username  string
	Amount    money.Amount
	Meta      model.BidMetadata
}

// Result is returned to the caller on acceptance, matching spec.md §6's
// BID_ACCEPTED payload fields the gateway needs to build UPDATE_BID/unicast.
type Result struct {
	BidID       string
	ServerTime  time.Time
	CurrentBid  money.Amount
	TotalBids   int64
	PreviousBid money.Amount
	Extension   *hotstore.ExtendResult
}

// Service orchestrates C3. It is the only component bid traffic flows
// through to reach the hot store.
type Service struct {
	hot       *hotstore.Store
	auctions  *coldstore.AuctionRepo
	jobRunner *jobs.Runner
	bus       *fanout.Bus
	scheduler Scheduler
	policy    extension.Policy
	log       *logrus.Entry

	rateLimitWindow time.Duration
	retention       time.Duration
}

// Config holds the tunables spec.md §6 exposes as configuration options.
type Config struct {
	RateLimitWindow time.Duration // default 1s, per bidderId
	Retention       time.Duration // hot-state TTL beyond endTime
	Policy          extension.Policy
}

// New constructs a Service.
func New(hot *hotstore.Store, auctions *coldstore.AuctionRepo, jobRunner *jobs.Runner, bus *fanout.Bus, scheduler Scheduler, cfg Config, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Second
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Service{
		hot:             hot,
		auctions:        auctions,
		jobRunner:       jobRunner,
		bus:             bus,
		scheduler:       scheduler,
		policy:          cfg.Policy,
		log:             log.WithField("component", "admission"),
		rateLimitWindow: window,
		retention:       retention,
	}
}

// PlaceBid runs spec.md §4.3 steps 1-4: rate gate, P1 (with lazy-hydration
// retry), write-down job enqueue, extension evaluation, and fan-out publish.
func (s *Service) PlaceBid(ctx context.Context, req Request) (Result, error) {
	if req.AuctionID == "" || req.BidderID == "" {
		return Result{}, newError(CodeInvalidInput, "auctionId and bidderId are required")
	}
	if !req.Amount.IsPositive() {
		return Result{}, newError(CodeInvalidBidAmount, "amount must be positive")
	}

	allowed, err := s.hot.RateLimitAllow(ctx, req.BidderID, s.rateLimitWindow)
	if err != nil {
		return Result{}, fmt.Errorf("admission: rate limit check: %w", err)
	}
	if !allowed {
		return Result{}, newError(CodeRateLimitExceeded, "one bid per second per bidder")
	}

	serverTime := time.Now().UTC()
	placeRes, err := s.place(ctx, req, serverTime, true)
	if err != nil {
		return Result{}, err
	}

	bidID := uuid.NewString()
	result := Result{
		BidID:       bidID,
		ServerTime:  serverTime,
		CurrentBid:  req.Amount,
		TotalBids:   placeRes.TotalBids,
		PreviousBid: placeRes.PreviousBid,
	}

	s.enqueueWriteDown(ctx, req, bidID, serverTime, placeRes)

	var extResult *hotstore.ExtendResult
	if ext, extErr := extension.Evaluate(ctx, s.hot, req.AuctionID, serverTime, s.policy); extErr != nil {
		s.log.WithError(extErr).WithField("auctionId", req.AuctionID).Warn("extension evaluation failed")
	} else if ext.Extended {
		extResult = &ext
		s.enqueueMirrorForExtension(ctx, req.AuctionID, req.Amount, req.BidderID, placeRes.TotalBids, ext.NewEndTime)
	}
	result.Extension = extResult

	s.publish(ctx, req, result, extResult)

	return result, nil
}

// place runs P1 once, and on ErrNotFound lazily hydrates from cold storage
// and retries exactly once, per spec.md §4.3 step 2.
func (s *Service) place(ctx context.Context, req Request, serverTime time.Time, allowHydrate bool) (hotstore.PlaceBidResult, error) {
	res, err := s.hot.PlaceBid(ctx, req.AuctionID, req.Amount, req.BidderID, serverTime, money.Amount{})
	if err == nil {
		return res, nil
	}

	var tooLow *hotstore.TooLowError
	switch {
	case errors.As(err, &tooLow):
		return hotstore.PlaceBidResult{}, &Error{
			Code:       CodeBidTooLow,
			Message:    tooLow.Error(),
			CurrentBid: &tooLow.CurrentBid,
			MinimumBid: &tooLow.MinimumBid,
			YourBid:    &tooLow.YourBid,
			IsFirstBid: tooLow.IsFirstBid,
		}
	case errors.Is(err, hotstore.ErrNotFound):
		if !allowHydrate {
			return hotstore.PlaceBidResult{}, newError(CodeAuctionNotFound, "auction not found")
		}
		if hydrateErr := s.hydrate(ctx, req.AuctionID); hydrateErr != nil {
			return hotstore.PlaceBidResult{}, hydrateErr
		}
		return s.place(ctx, req, serverTime, false)
	case errors.Is(err, hotstore.ErrInvalidAmount):
		return hotstore.PlaceBidResult{}, newError(CodeInvalidBidAmount, "amount must be positive")
	case errors.Is(err, hotstore.ErrNotActive):
		return hotstore.PlaceBidResult{}, newError(CodeAuctionNotActive, "auction is not active")
	case errors.Is(err, hotstore.ErrEnded):
		return hotstore.PlaceBidResult{}, newError(CodeAuctionEnded, "auction has already ended")
	case errors.Is(err, hotstore.ErrSellerCannotBid):
		return hotstore.PlaceBidResult{}, newError(CodeSellerCannotBid, "sellers cannot bid on their own auction")
	default:
		return hotstore.PlaceBidResult{}, fmt.Errorf("admission: place bid: %w", err)
	}
}

// hydrate loads the cold mirror and installs it into the hot store, arming
// Trigger A for the auction's eventual finalize. Put-if-absent semantics in
// hotstore.Install mean a race between two concurrent hydrators is safe: the
// loser's Install is a no-op, and both callers retry against the same row.
func (s *Service) hydrate(ctx context.Context, auctionID string) error {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, coldstore.ErrAuctionNotFound) {
			return newError(CodeAuctionNotFound, "auction not found")
		}
		return fmt.Errorf("admission: load cold mirror %s: %w", auctionID, err)
	}
	if a.Status != model.StatusActive {
		return newError(CodeAuctionNotActive, "auction is not active")
	}
	if _, err := s.hot.Install(ctx, a, s.retention); err != nil {
		return fmt.Errorf("admission: install %s: %w", auctionID, err)
	}
	if s.scheduler != nil {
		s.scheduler.ScheduleAt(auctionID, a.EndTime)
	}
	return nil
}

func (s *Service) enqueueWriteDown(ctx context.Context, req Request, bidID string, serverTime time.Time, placeRes hotstore.PlaceBidResult) {
	bidPayload := jobs.PersistBidPayload{
		AuctionID:   req.AuctionID,
		BidID:       bidID,
		BidderID:    req.BidderID,
		Amount:      req.Amount,
		ServerTime:  serverTime,
		PreviousBid: placeRes.PreviousBid,
		TotalBids:   placeRes.TotalBids,
		IPAddress:   req.Meta.IPAddress,
		UserAgent:   req.Meta.UserAgent,
	}
	key := jobs.PersistBidKey(req.AuctionID, req.BidderID, serverTime)
	if err := s.jobRunner.Enqueue(ctx, jobs.QueuePersistBid, key, bidPayload); err != nil {
		s.log.WithError(err).WithField("auctionId", req.AuctionID).Error("persist-bid enqueue failed")
	}

	mirrorPayload := jobs.UpdateMirrorPayload{
		AuctionID:       req.AuctionID,
		CurrentBid:      req.Amount,
		HighestBidderID: req.BidderID,
		TotalBids:       placeRes.TotalBids,
	}
	mirrorKey := jobs.UpdateMirrorKey(req.AuctionID, placeRes.TotalBids)
	if err := s.jobRunner.Enqueue(ctx, jobs.QueueUpdateAuctionMirror, mirrorKey, mirrorPayload); err != nil {
		s.log.WithError(err).WithField("auctionId", req.AuctionID).Error("update-auction-mirror enqueue failed")
	}
}

// enqueueMirrorForExtension submits a second mirror job carrying the pushed-
// out endTime, since the first mirror job (enqueued before extension was
// evaluated) does not know about it.
func (s *Service) enqueueMirrorForExtension(ctx context.Context, auctionID string, currentBid money.Amount, bidderID string, totalBids int64, newEndTime time.Time) {
	payload := jobs.UpdateMirrorPayload{
		AuctionID:       auctionID,
		CurrentBid:      currentBid,
		HighestBidderID: bidderID,
		TotalBids:       totalBids,
		EndTime:         &newEndTime,
	}
	key := jobs.UpdateMirrorKey(auctionID, totalBids) + "-ext"
	if err := s.jobRunner.Enqueue(ctx, jobs.QueueUpdateAuctionMirror, key, payload); err != nil {
		s.log.WithError(err).WithField("auctionId", auctionID).Error("extension mirror enqueue failed")
	}
	if s.scheduler != nil {
		s.scheduler.ScheduleAt(auctionID, newEndTime)
	}
}

func (s *Service) publish(ctx context.Context, req Request, result Result, ext *hotstore.ExtendResult) {
	ev := fanout.BidPlacedEvent{
		AuctionID: req.AuctionID,
		Bid: fanout.BidView{
			Amount:         result.CurrentBid,
			BidderID:       req.BidderID,
			BidderUsername: req.Username,
			Timestamp:      result.ServerTime,
			TotalBids:      result.TotalBids,
		},
	}
	if ext != nil {
		ev.Extended = true
		ev.ExtensionData = &fanout.ExtensionView{
			OldEndTime: ext.OldEndTime,
			NewEndTime: ext.NewEndTime,
			ExtendedBy: int64(ext.ExtendedBy / time.Second),
		}
	}
	if err := s.bus.PublishBidPlaced(ctx, ev); err != nil {
		s.log.WithError(err).WithField("auctionId", req.AuctionID).Warn("bid-placed publish failed")
	}
}

// Cancel is the administrative seam from spec.md's Open Question on
// cancelled auctions: it is never reachable from bid traffic, only from
// out-of-band operator action, and marks the hot-store record cancelled so
// the next bid attempt on it surfaces AUCTION_NOT_ACTIVE. The cold mirror's
// status is not changed.
func (s *Service) Cancel(ctx context.Context, auctionID string) error {
	a, err := s.auctions.GetByID(ctx, auctionID)
	if err != nil {
		if errors.Is(err, coldstore.ErrAuctionNotFound) {
			return newError(CodeAuctionNotFound, "auction not found")
		}
		return fmt.Errorf("admission: cancel: load %s: %w", auctionID, err)
	}
	if a.Status != model.StatusActive && a.Status != model.StatusScheduled {
		return newError(CodeAuctionNotActive, "auction cannot be cancelled from its current state")
	}
	return s.hot.Cancel(ctx, auctionID)
}
