package hotstore

import (
	"testing"

	"github.com/iliyamo/realtime-auction/internal/money"
)

func TestAsInt64(t *testing.T) {
	if asInt64(int64(42)) != 42 {
		t.Fatal("int64 passthrough failed")
	}
	if asInt64("42") != 42 {
		t.Fatal("string parse failed")
	}
	if asInt64(nil) != 0 {
		t.Fatal("unknown type should default to 0")
	}
}

func TestStringifyFieldValue(t *testing.T) {
	if stringifyFieldValue("x") != "x" {
		t.Fatal("string passthrough failed")
	}
	if stringifyFieldValue(int64(7)) != "7" {
		t.Fatal("int64 stringify failed")
	}
	if stringifyFieldValue(3) != "3" {
		t.Fatal("int stringify failed")
	}
}

func TestTooLowErrorMessage(t *testing.T) {
	err := &TooLowError{
		CurrentBid: money.MustFromString("105.00"),
		MinimumBid: money.MustFromString("110.00"),
		YourBid:    money.MustFromString("105.00"),
		IsFirstBid: false,
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
