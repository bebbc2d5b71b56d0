// Package money provides exact decimal arithmetic for auction amounts.
// All comparisons and additions in the bidding engine flow through this
// package so that no binary float ever touches a price.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value with exactly two fractional digits.
type Amount struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Amount{d: decimal.Zero}

// FromString parses a decimal string such as "100.00" into an Amount.
func FromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return Amount{d: d.Round(2)}, nil
}

// FromCents builds an Amount from an integer minor-unit count.
func FromCents(cents int64) Amount {
	return Amount{d: decimal.New(cents, -2)}
}

// MustFromString is FromString but panics on error; reserved for constants in tests.
func MustFromString(s string) Amount {
	a, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount with exactly two fractional digits.
func (a Amount) String() string {
	return a.d.StringFixed(2)
}

// Cents returns the amount as an integer minor-unit count.
func (a Amount) Cents() int64 {
	return a.d.Mul(decimal.New(100, 0)).Round(0).IntPart()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.d.Sign() > 0
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{d: a.d.Add(b.d).Round(2)}
}

// Cmp compares a to b: -1, 0, 1.
func (a Amount) Cmp(b Amount) int {
	return a.d.Cmp(b.d)
}

// GreaterThanOrEqual reports a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool {
	return a.d.Cmp(b.d) >= 0
}

// Equal reports a == b.
func (a Amount) Equal(b Amount) bool {
	return a.d.Equal(b.d)
}

// Value implements driver.Valuer so an Amount can be written to a DECIMAL column.
func (a Amount) Value() (driver.Value, error) {
	return a.d.StringFixed(2), nil
}

// Scan implements sql.Scanner so an Amount can be read from a DECIMAL/VARCHAR column.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.d = decimal.Zero
		return nil
	case []byte:
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		a.d = d.Round(2)
		return nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		a.d = d.Round(2)
		return nil
	case float64:
		a.d = decimal.NewFromFloat(v).Round(2)
		return nil
	default:
		return fmt.Errorf("money: unsupported scan type %T", src)
	}
}

// MarshalJSON renders the amount as a quoted decimal string, matching the
// wire shape of spec.md's exact-decimal money fields.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.StringFixed(2) + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("money: invalid json amount %q: %w", string(data), err)
	}
	a.d = d.Round(2)
	return nil
}
