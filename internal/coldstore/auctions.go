// Package coldstore is the durable relational adapter (C2): an append-only
// bids table plus a mirrored auctions row, following the teacher's *Repo
// convention (internal/repository/show_repository.go) for idempotent writes
// against MySQL. Each method runs its statement directly on the pool; none
// takes a transaction.
package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// AuctionRepo manages persistence for the auctions mirror table.
type AuctionRepo struct {
	db *sql.DB
}

// NewAuctionRepo constructs an AuctionRepo bound to the given DB handle.
func NewAuctionRepo(db *sql.DB) *AuctionRepo { return &AuctionRepo{db: db} }

// DB exposes the underlying handle so callers can span transactions across
// repositories, matching the teacher's ShowRepo.DB() convention.
func (r *AuctionRepo) DB() *sql.DB { return r.db }

const timeLayout = "2006-01-02 15:04:05.000000"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// Create inserts a brand-new auction row. Called when an auction is
// scheduled, outside the core bid-admission path.
func (r *AuctionRepo) Create(ctx context.Context, a *model.Auction) error {
	const q = `INSERT INTO auctions
		(id, seller_id, starting_price, bid_increment, reserve_price, current_bid,
		 highest_bidder_id, total_bids, start_time, end_time, original_end_time, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var reserve interface{}
	if a.ReservePrice != nil {
		reserve = a.ReservePrice.String()
	}
	var highestBidder interface{}
	if a.HighestBidderID != "" {
		highestBidder = a.HighestBidderID
	}
	_, err := r.db.ExecContext(ctx, q,
		a.AuctionID, a.SellerID, a.StartingPrice.String(), a.BidIncrement.String(), reserve,
		a.CurrentBid.String(), highestBidder, a.TotalBids,
		fmtTime(a.StartTime), fmtTime(a.EndTime), fmtTime(a.OriginalEndTime), string(a.Status),
	)
	return err
}

// GetByID loads a single auction row, or ErrAuctionNotFound.
func (r *AuctionRepo) GetByID(ctx context.Context, auctionID string) (*model.Auction, error) {
	const q = `SELECT id, seller_id, starting_price, bid_increment, reserve_price, current_bid,
		       highest_bidder_id, total_bids, start_time, end_time, original_end_time, status
		FROM auctions WHERE id = ?`
	return scanAuctionRow(r.db.QueryRowContext(ctx, q, auctionID))
}

// ListActive returns every auction row with status='active'. Used by the
// Finalization Coordinator's crash-recovery pass (§4.5).
func (r *AuctionRepo) ListActive(ctx context.Context) ([]*model.Auction, error) {
	const q = `SELECT id, seller_id, starting_price, bid_increment, reserve_price, current_bid,
		       highest_bidder_id, total_bids, start_time, end_time, original_end_time, status
		FROM auctions WHERE status = 'active'`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Auction
	for rows.Next() {
		a, err := scanAuctionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// row is satisfied by both *sql.Row and *sql.Rows.
type row interface {
	Scan(dest ...interface{}) error
}

func scanAuctionRow(rw row) (*model.Auction, error) {
	var (
		a                                                    model.Auction
		startingPrice, bidIncrement, currentBid              string
		reservePrice, highestBidderID                        sql.NullString
		startTime, endTime, originalEndTime                  time.Time
		status                                                string
	)
	err := rw.Scan(&a.AuctionID, &a.SellerID, &startingPrice, &bidIncrement, &reservePrice,
		&currentBid, &highestBidderID, &a.TotalBids, &startTime, &endTime, &originalEndTime, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAuctionNotFound
		}
		return nil, err
	}
	a.StartingPrice, err = money.FromString(startingPrice)
	if err != nil {
		return nil, err
	}
	a.BidIncrement, err = money.FromString(bidIncrement)
	if err != nil {
		return nil, err
	}
	a.CurrentBid, err = money.FromString(currentBid)
	if err != nil {
		return nil, err
	}
	if reservePrice.Valid {
		v, err := money.FromString(reservePrice.String)
		if err != nil {
			return nil, err
		}
		a.ReservePrice = &v
	}
	if highestBidderID.Valid {
		a.HighestBidderID = highestBidderID.String
	}
	a.StartTime = startTime.UTC()
	a.EndTime = endTime.UTC()
	a.OriginalEndTime = originalEndTime.UTC()
	a.Status = model.Status(status)
	return &a, nil
}

// MirrorInput is the partial update applied by C8's update-auction-mirror
// job (§4.8). Fields are all required by the job payload in §4.3 step 3a/3c.
type MirrorInput struct {
	AuctionID       string
	CurrentBid      money.Amount
	HighestBidderID string
	TotalBids       int64
	EndTime         *time.Time // nil means "unchanged"
}

// UpdateMirror applies a conditional UPDATE guarded by status='active',
// unless isFinalize is true (the finalization write is the one mirror
// update allowed to transition status away from active), per spec.md §4.2's
// "conditional on status=active to avoid resurrecting ended auctions".
func (r *AuctionRepo) UpdateMirror(ctx context.Context, in MirrorInput, isFinalize bool) error {
	if isFinalize {
		const q = `UPDATE auctions SET current_bid = ?, highest_bidder_id = ?, total_bids = ?, status = 'ended'
			WHERE id = ?`
		_, err := r.db.ExecContext(ctx, q, in.CurrentBid.String(), nullableBidder(in.HighestBidderID), in.TotalBids, in.AuctionID)
		return err
	}
	if in.EndTime != nil {
		const q = `UPDATE auctions SET current_bid = ?, highest_bidder_id = ?, total_bids = ?, end_time = ?
			WHERE id = ? AND status = 'active'`
		_, err := r.db.ExecContext(ctx, q, in.CurrentBid.String(), nullableBidder(in.HighestBidderID), in.TotalBids, fmtTime(*in.EndTime), in.AuctionID)
		return err
	}
	const q = `UPDATE auctions SET current_bid = ?, highest_bidder_id = ?, total_bids = ?
		WHERE id = ? AND status = 'active'`
	_, err := r.db.ExecContext(ctx, q, in.CurrentBid.String(), nullableBidder(in.HighestBidderID), in.TotalBids, in.AuctionID)
	return err
}

func nullableBidder(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}
