package dedupcache

import (
	"testing"
	"time"
)

func TestCheckAndInsertBlocksWithinWindow(t *testing.T) {
	c := New(1 * time.Second)
	now := time.Now()

	if dup := c.CheckAndInsert(42, now); dup {
		t.Fatal("first insert must not be reported as duplicate")
	}
	if dup := c.CheckAndInsert(42, now.Add(100*time.Millisecond)); !dup {
		t.Fatal("resubmission within the dedup window must be reported as duplicate")
	}
}

func TestCheckAndInsertAcceptsAfterWindow(t *testing.T) {
	c := New(1 * time.Second)
	now := time.Now()

	c.CheckAndInsert(42, now)
	if dup := c.CheckAndInsert(42, now.Add(1100*time.Millisecond)); dup {
		t.Fatal("resubmission after the dedup window must not be reported as duplicate")
	}
}

func TestSweepRemovesOnlyAgedEntries(t *testing.T) {
	c := New(1 * time.Second)
	now := time.Now()

	c.CheckAndInsert(1, now.Add(-400*time.Second))
	c.CheckAndInsert(2, now)

	removed := c.Sweep(now, 300*time.Second)
	if removed != 1 {
		t.Fatalf("expected 1 entry removed, got %d", removed)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", c.Len())
	}
}

func TestSweepNeverRemovesYoungEntry(t *testing.T) {
	c := New(1 * time.Second)
	now := time.Now()

	c.CheckAndInsert(1, now.Add(-299*time.Second))
	if removed := c.Sweep(now, 300*time.Second); removed != 0 {
		t.Fatalf("expected no removals for an entry younger than retention, got %d", removed)
	}
}

func TestEvictorRunsAndStops(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.CheckAndInsert(7, time.Now().Add(-time.Hour))

	e := NewEvictor(c, 1*time.Millisecond, 5*time.Millisecond, nil)
	e.Start()

	deadline := time.Now().Add(500 * time.Millisecond)
	for c.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.Stop()

	if c.Len() != 0 {
		t.Fatalf("expected evictor to remove the aged entry, %d remain", c.Len())
	}
}
