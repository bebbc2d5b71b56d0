// Package catalogue is the thin external-collaborator stub spec.md §6
// frames as out of core scope: GET /items, GET /items/{id}, POST /items.
// Its only job here is to let a caller seed an auction so the rest of the
// system (admission, extension, finalize, gateway) has something to act on;
// it owns no admission logic of its own. Structured the way the teacher's
// OwnerHandler bundles repositories and binds/validates before delegating.
package catalogue

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/realtime-auction/internal/coldstore"
	"github.com/iliyamo/realtime-auction/internal/hotstore"
	"github.com/iliyamo/realtime-auction/internal/model"
	"github.com/iliyamo/realtime-auction/internal/money"
)

// Scheduler is the subset of the Finalization Coordinator this handler
// needs to arm Trigger A for a freshly created auction.
type Scheduler interface {
	ScheduleAt(auctionID string, endTime time.Time)
}

// Handler bundles the collaborators needed to seed and browse auctions.
type Handler struct {
	Auctions  *coldstore.AuctionRepo
	Hot       *hotstore.Store
	Scheduler Scheduler
	Retention time.Duration
}

// NewHandler constructs a Handler and panics if any dependency is nil, the
// teacher's NewOwnerHandler convention for fail-fast wiring at startup.
func NewHandler(auctions *coldstore.AuctionRepo, hot *hotstore.Store, scheduler Scheduler, retention time.Duration) *Handler {
	if auctions == nil || hot == nil || scheduler == nil {
		panic("nil dependency passed to catalogue.NewHandler")
	}
	if retention <= 0 {
		retention = 5 * time.Minute
	}
	return &Handler{Auctions: auctions, Hot: hot, Scheduler: scheduler, Retention: retention}
}

// createItemBody is the POST /items request shape.
type createItemBody struct {
	SellerID      string `json:"sellerId"`
	StartingPrice string `json:"startingPrice"`
	BidIncrement  string `json:"bidIncrement"`
	ReservePrice  string `json:"reservePrice,omitempty"`
	DurationSec   int64  `json:"durationSec"`
}

// CreateItem handles POST /items: validates, inserts the cold mirror row,
// installs it into the hot store immediately (items go live on creation in
// this stub; a real catalogue would schedule activation separately), and
// arms Trigger A.
func (h *Handler) CreateItem(c echo.Context) error {
	var body createItemBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	sellerID := strings.TrimSpace(body.SellerID)
	if sellerID == "" || body.DurationSec <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sellerId and a positive durationSec are required"})
	}
	startingPrice, err := money.FromString(body.StartingPrice)
	if err != nil || !startingPrice.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "startingPrice must be a positive decimal"})
	}
	bidIncrement, err := money.FromString(body.BidIncrement)
	if err != nil || !bidIncrement.IsPositive() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "bidIncrement must be a positive decimal"})
	}
	var reserve *money.Amount
	if rp := strings.TrimSpace(body.ReservePrice); rp != "" {
		v, err := money.FromString(rp)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "reservePrice must be a decimal"})
		}
		reserve = &v
	}

	now := time.Now().UTC()
	auction := &model.Auction{
		AuctionID:       uuid.NewString(),
		SellerID:        sellerID,
		StartingPrice:   startingPrice,
		BidIncrement:    bidIncrement,
		ReservePrice:    reserve,
		StartTime:       now,
		OriginalEndTime: now.Add(time.Duration(body.DurationSec) * time.Second),
		CurrentBid:      money.Zero,
		TotalBids:       0,
		EndTime:         now.Add(time.Duration(body.DurationSec) * time.Second),
		Status:          model.StatusActive,
	}

	ctx := c.Request().Context()
	if err := h.Auctions.Create(ctx, auction); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create auction"})
	}
	if _, err := h.Hot.Install(ctx, auction, h.Retention); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not activate auction"})
	}
	h.Scheduler.ScheduleAt(auction.AuctionID, auction.EndTime)

	return c.JSON(http.StatusCreated, auction)
}

// GetItem handles GET /items/{id}: hot-store state wins when present since
// it is the authoritative source while an auction is active.
func (h *Handler) GetItem(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	if a, err := h.Hot.Get(ctx, id); err == nil {
		return c.JSON(http.StatusOK, a)
	} else if err != hotstore.ErrNotFound {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	a, err := h.Auctions.GetByID(ctx, id)
	if err != nil {
		if err == coldstore.ErrAuctionNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "item not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, a)
}

// ListItems handles GET /items: returns every auction the cold store
// considers active.
func (h *Handler) ListItems(c echo.Context) error {
	items, err := h.Auctions.ListActive(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
