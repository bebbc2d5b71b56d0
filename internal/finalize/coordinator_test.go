package finalize

import (
	"testing"
	"time"
)

func TestScheduleAtReplacesExistingTimer(t *testing.T) {
	c := New(nil, nil, nil, nil, time.Second, nil)
	c.mu.Lock()
	c.timers["auc-1"] = time.AfterFunc(time.Hour, func() {})
	first := c.timers["auc-1"]
	c.mu.Unlock()

	c.ScheduleAt("auc-1", time.Now().Add(2*time.Hour))

	c.mu.Lock()
	second := c.timers["auc-1"]
	c.mu.Unlock()

	if second == first {
		t.Fatal("expected a fresh timer to replace the stopped one")
	}
}

func TestNewDefaultsSweepInterval(t *testing.T) {
	c := New(nil, nil, nil, nil, 0, nil)
	if c.sweepInterval != 10*time.Second {
		t.Fatalf("expected default sweep interval, got %s", c.sweepInterval)
	}
}
