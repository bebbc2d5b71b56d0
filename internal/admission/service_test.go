package admission

import (
	"testing"
	"time"

	"github.com/iliyamo/realtime-auction/internal/hotstore"
	"github.com/iliyamo/realtime-auction/internal/money"
)

func TestPlaceResultCarriesTotals(t *testing.T) {
	r := Result{
		BidID:       "bid-1",
		CurrentBid:  money.MustFromString("50.00"),
		TotalBids:   3,
		PreviousBid: money.MustFromString("45.00"),
	}
	if r.TotalBids != 3 || !r.CurrentBid.Equal(money.MustFromString("50.00")) {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestTooLowErrorCarriesStructuredFields(t *testing.T) {
	tooLow := &hotstore.TooLowError{
		CurrentBid: money.MustFromString("10.00"),
		MinimumBid: money.MustFromString("15.00"),
		YourBid:    money.MustFromString("12.00"),
	}
	e := &Error{
		Code:       CodeBidTooLow,
		Message:    tooLow.Error(),
		CurrentBid: &tooLow.CurrentBid,
		MinimumBid: &tooLow.MinimumBid,
		YourBid:    &tooLow.YourBid,
	}
	if e.Code != CodeBidTooLow {
		t.Fatalf("expected %s, got %s", CodeBidTooLow, e.Code)
	}
	if !e.MinimumBid.Equal(money.MustFromString("15.00")) {
		t.Fatalf("unexpected minimum bid: %s", e.MinimumBid)
	}
}

func TestNewErrorMessage(t *testing.T) {
	e := newError(CodeRateLimitExceeded, "one bid per second per bidder")
	if e.Error() == "" {
		t.Fatal("expected non-empty error string")
	}
}

func TestResultWithExtension(t *testing.T) {
	ext := &hotstore.ExtendResult{
		Extended:   true,
		NewEndTime: time.Unix(1000, 0).UTC(),
		ExtendedBy: 30 * time.Second,
	}
	r := Result{Extension: ext}
	if r.Extension == nil || !r.Extension.Extended {
		t.Fatal("expected extended result to survive")
	}
}
