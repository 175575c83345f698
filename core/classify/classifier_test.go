package classify

import (
	"testing"
	"time"

	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/internal/clock"
)

type fakeMembership map[string]bool

func (f fakeMembership) OnActiveRoute(binID string) bool { return f[binID] }

func TestClassifyEmergencyEdgeTriggered(t *testing.T) {
	clk := clock.NewFixed(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	c := New(85, fakeMembership{}, clk)

	prev := model.Bin{ID: "b1", FillLevel: 60, Status: model.BinActive}
	curr := model.Bin{ID: "b1", FillLevel: 92, Status: model.BinOverflow}
	if got := c.Classify(prev, curr, true); got != Emergency {
		t.Fatalf("crossing into overflow should be emergency, got %v", got)
	}

	// Re-delivery of the same urgent snapshot must not re-trigger.
	if got := c.Classify(curr, curr, true); got != None {
		t.Fatalf("identical urgent snapshot should be none, got %v", got)
	}
}

func TestClassifyFirstSnapshotCanBeEmergency(t *testing.T) {
	c := New(85, fakeMembership{}, nil)
	curr := model.Bin{ID: "b1", FillLevel: 92, Status: model.BinOverflow}
	if got := c.Classify(model.Bin{}, curr, false); got != Emergency {
		t.Fatalf("unseen urgent bin should be emergency, got %v", got)
	}
}

func TestClassifyThresholdIsStrict(t *testing.T) {
	c := New(85, fakeMembership{}, nil)
	curr := model.Bin{ID: "b1", FillLevel: 85, Status: model.BinOverflow}
	if got := c.Classify(model.Bin{}, curr, false); got == Emergency {
		t.Fatalf("fill 85 is not above threshold 85, got %v", got)
	}
}

func TestClassifyOverflowStatusRequired(t *testing.T) {
	c := New(85, fakeMembership{}, nil)
	curr := model.Bin{ID: "b1", FillLevel: 95, Status: model.BinActive}
	if got := c.Classify(model.Bin{}, curr, false); got == Emergency {
		t.Fatalf("urgent fill without overflow status must not be emergency, got %v", got)
	}
}

func TestClassifyActiveRouteMembershipWins(t *testing.T) {
	c := New(85, fakeMembership{"b1": true}, nil)
	curr := model.Bin{ID: "b1", FillLevel: 95, Status: model.BinOverflow}
	if got := c.Classify(model.Bin{}, curr, false); got != None {
		t.Fatalf("bin on active route must never be re-queued, got %v", got)
	}
}

func TestClassifyRoutineDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(now)
	c := New(85, fakeMembership{}, clk)

	curr := model.Bin{ID: "b1", FillLevel: 50, Status: model.BinActive, NextScheduledPickup: now.Add(-time.Hour)}
	if got := c.Classify(model.Bin{}, curr, false); got != RoutineDue {
		t.Fatalf("past schedule should be routine-due, got %v", got)
	}

	curr.NextScheduledPickup = now.Add(time.Hour)
	if got := c.Classify(model.Bin{}, curr, false); got != None {
		t.Fatalf("future schedule should be none, got %v", got)
	}

	curr.NextScheduledPickup = time.Time{}
	if got := c.Classify(model.Bin{}, curr, false); got != None {
		t.Fatalf("unscheduled bin should be none, got %v", got)
	}
}

func TestClassifyCollectedBinNotDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := New(85, fakeMembership{}, clock.NewFixed(now))
	curr := model.Bin{ID: "b1", FillLevel: 0, Status: model.BinCollected, NextScheduledPickup: now.Add(-time.Hour)}
	if got := c.Classify(model.Bin{}, curr, false); got != None {
		t.Fatalf("collected bin should not be due, got %v", got)
	}
}
