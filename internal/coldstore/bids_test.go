package coldstore

import "testing"

func TestNullableString(t *testing.T) {
	if nullableString("") != nil {
		t.Fatal("expected nil for empty string")
	}
	if nullableString("abc") != "abc" {
		t.Fatal("expected passthrough for non-empty string")
	}
}

func TestIsDuplicateKeyNilError(t *testing.T) {
	if isDuplicateKey(nil) {
		t.Fatal("nil error should not be a duplicate key")
	}
}
