package money

import "testing"

func TestAddAndCompare(t *testing.T) {
	a := MustFromString("100.00")
	b := MustFromString("5.00")
	sum := a.Add(b)
	if sum.String() != "105.00" {
		t.Fatalf("got %s, want 105.00", sum.String())
	}
	if !sum.GreaterThanOrEqual(a) {
		t.Fatalf("expected sum >= a")
	}
}

func TestCmpExactness(t *testing.T) {
	a := MustFromString("110.00")
	b := MustFromString("100.00").Add(MustFromString("10.00"))
	if a.Cmp(b) != 0 {
		t.Fatalf("expected 110.00 == 100.00+10.00, cmp=%d", a.Cmp(b))
	}
}

func TestFromCents(t *testing.T) {
	a := FromCents(10050)
	if a.String() != "100.50" {
		t.Fatalf("got %s, want 100.50", a.String())
	}
	if a.Cents() != 10050 {
		t.Fatalf("got %d, want 10050", a.Cents())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	a := MustFromString("99.99")
	b, err := a.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var out Amount
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if !out.Equal(a) {
		t.Fatalf("round trip mismatch: %s vs %s", out, a)
	}
}
