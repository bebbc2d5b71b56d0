package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// BidRepo manages the append-only bids table. No UPDATE or DELETE is ever
// issued against it from this package, per spec.md §4.2.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo constructs a BidRepo bound to the given DB handle.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

// Insert appends one bid row. A duplicate bidId (primary key collision) is
// treated as success, making redelivery of a persist-bid job idempotent per
// spec.md §4.2 and the round-trip property in §8.
func (r *BidRepo) Insert(ctx context.Context, b *model.Bid) error {
	const q = `INSERT INTO bids
		(id, auction_id, bidder_id, amount, bid_time, previous_bid, is_winning, ip_address, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q,
		b.BidID, b.AuctionID, b.BidderID, b.Amount.String(), fmtTime(b.BidTime),
		b.PreviousBid.String(), b.IsWinning, nullableString(b.IPAddress), nullableString(b.UserAgent),
	)
	if isDuplicateKey(err) {
		return nil
	}
	return err
}

// CountByAuction returns the number of bid rows recorded for an auction,
// used to verify the append-only invariant in spec.md §8 property 7.
func (r *BidRepo) CountByAuction(ctx context.Context, auctionID string) (int64, error) {
	const q = `SELECT COUNT(*) FROM bids WHERE auction_id = ?`
	var n int64
	err := r.db.QueryRowContext(ctx, q, auctionID).Scan(&n)
	return n, err
}

// ListByAuction returns all bid rows for an auction ordered by bid_time
// ascending, i.e. commit order.
func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]*model.Bid, error) {
	const q = `SELECT id, auction_id, bidder_id, amount, bid_time, previous_bid, is_winning, ip_address, user_agent
		FROM bids WHERE auction_id = ? ORDER BY bid_time ASC`
	rows, err := r.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Bid
	for rows.Next() {
		b, err := scanBidRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBidRow(rows *sql.Rows) (*model.Bid, error) {
	var (
		b                          model.Bid
		amount, previousBid        string
		bidTime                    time.Time
		ipAddress, userAgent       sql.NullString
	)
	if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &amount, &bidTime, &previousBid, &b.IsWinning, &ipAddress, &userAgent); err != nil {
		return nil, err
	}
	var err error
	b.Amount, err = money.FromString(amount)
	if err != nil {
		return nil, err
	}
	b.PreviousBid, err = money.FromString(previousBid)
	if err != nil {
		return nil, err
	}
	b.BidTime = bidTime.UTC()
	b.IPAddress = ipAddress.String
	b.UserAgent = userAgent.String
	return &b, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062 // ER_DUP_ENTRY
	}
	return false
}
