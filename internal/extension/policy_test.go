package extension

import (
	"testing"
	"time"
)

func TestShouldExtend(t *testing.T) {
	p := NewPolicy(30*time.Second, 30*time.Second)
	end := time.Unix(1000, 0)

	if !p.ShouldExtend(time.Unix(985, 0), end) {
		t.Fatal("bid 15s before close should extend")
	}
	if p.ShouldExtend(time.Unix(960, 0), end) {
		t.Fatal("bid 40s before close should not extend")
	}
	if p.ShouldExtend(time.Unix(1000, 0), end) {
		t.Fatal("bid exactly at close should not extend (ended, not extended)")
	}
	if p.ShouldExtend(time.Unix(1001, 0), end) {
		t.Fatal("bid after close should not extend")
	}
}

func TestNewPolicyDefaults(t *testing.T) {
	p := NewPolicy(0, -1)
	if p.Threshold != DefaultThreshold || p.Duration != DefaultDuration {
		t.Fatalf("expected defaults, got %v/%v", p.Threshold, p.Duration)
	}
}
