// Package classify tags bin state changes as emergency or routine work.
package classify

import (
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/internal/clock"
)

// Result is the outcome of classifying one bin state change.
type Result int

const (
	// None means the update requires no dispatch action.
	None Result = iota
	// Emergency means the bin crossed the urgent fill threshold into
	// overflow and needs immediate service.
	Emergency
	// RoutineDue means the bin is due for its scheduled pickup.
	RoutineDue
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case Emergency:
		return "emergency"
	case RoutineDue:
		return "routine-due"
	default:
		return "none"
	}
}

// RouteMembership answers whether a bin is already queued on an active
// (assigned or in-progress) route. The lifecycle manager implements it from
// its per-driver index; classification checks membership, not just bin
// state, so a flapping sensor cannot enqueue the same bin twice.
type RouteMembership interface {
	OnActiveRoute(binID string) bool
}

// DefaultUrgentFillThreshold is the fill percentage above which an overflow
// transition is treated as an emergency.
const DefaultUrgentFillThreshold = 85

// Classifier inspects consecutive bin states.
type Classifier struct {
	threshold  int
	membership RouteMembership
	clk        clock.Clock
}

// New creates a classifier. A non-positive threshold selects the default.
func New(threshold int, membership RouteMembership, clk clock.Clock) *Classifier {
	if threshold <= 0 {
		threshold = DefaultUrgentFillThreshold
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Classifier{threshold: threshold, membership: membership, clk: clk}
}

// Classify compares the previous and updated state of one bin. Emergency is
// edge-triggered: the update must cross above the urgent threshold into
// overflow, so re-delivery of an identical snapshot never re-triggers. A bin
// already on an active route is never re-queued.
func (c *Classifier) Classify(prev, curr model.Bin, prevKnown bool) Result {
	if c.membership != nil && c.membership.OnActiveRoute(curr.ID) {
		return None
	}
	if c.isUrgent(curr) && (!prevKnown || !c.isUrgent(prev)) {
		return Emergency
	}
	if c.dueForPickup(curr) {
		return RoutineDue
	}
	return None
}

func (c *Classifier) isUrgent(b model.Bin) bool {
	return b.FillLevel > c.threshold && b.Status == model.BinOverflow
}

func (c *Classifier) dueForPickup(b model.Bin) bool {
	if b.NextScheduledPickup.IsZero() || b.Status == model.BinCollected {
		return false
	}
	return !b.NextScheduledPickup.After(c.clk.Now())
}
