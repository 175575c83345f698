package model

import (
	"fmt"
	"time"
)

// RouteType distinguishes driver-requested routes from auto-dispatched ones.
type RouteType int

const (
	RouteRoutine RouteType = iota
	RouteEmergency
)

// String returns a human-readable representation of the route type.
func (t RouteType) String() string {
	switch t {
	case RouteRoutine:
		return "routine"
	case RouteEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// ParseRouteType parses the wire representation of a route type.
func ParseRouteType(s string) (RouteType, error) {
	switch s {
	case "routine":
		return RouteRoutine, nil
	case "emergency":
		return RouteEmergency, nil
	default:
		return RouteRoutine, fmt.Errorf("unknown route type %q", s)
	}
}

// RouteStatus is the lifecycle state of a route.
type RouteStatus int

const (
	RouteUnassigned RouteStatus = iota
	RouteAssigned
	RouteInProgress
	RouteCompleted
	RouteCancelled
)

// String returns a human-readable representation of the route status.
func (s RouteStatus) String() string {
	switch s {
	case RouteUnassigned:
		return "unassigned"
	case RouteAssigned:
		return "assigned"
	case RouteInProgress:
		return "in-progress"
	case RouteCompleted:
		return "completed"
	case RouteCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition may leave this status.
func (s RouteStatus) Terminal() bool {
	return s == RouteCompleted || s == RouteCancelled
}

// Active reports whether the route occupies its driver's exclusivity slot.
func (s RouteStatus) Active() bool {
	return s == RouteAssigned || s == RouteInProgress
}

// StopStatus is the per-stop collection state.
type StopStatus int

const (
	StopPending StopStatus = iota
	StopCollected
)

// String returns a human-readable representation of the stop status.
func (s StopStatus) String() string {
	switch s {
	case StopPending:
		return "pending"
	case StopCollected:
		return "collected"
	default:
		return "unknown"
	}
}

// RouteStop is one bin's position within a route. Stops reference bins by
// identifier only; fill levels are read from the registry, never copied here.
type RouteStop struct {
	BinID                 string
	Order                 int // 1-based, unique within the route
	EstimatedOffsetMinute int // non-decreasing with Order
	Status                StopStatus
	CollectedAt           time.Time // zero until collected
}

// Route is an ordered collection task assigned to one driver.
type Route struct {
	ID                string
	Type              RouteType
	AssignedDriver    string // empty until assigned
	Status            RouteStatus
	Stops             []RouteStop
	EstimatedDuration int // minutes
	CreatedAt         time.Time
	StartedAt         time.Time
	CompletedAt       time.Time
}

// Validate checks structural invariants: 1-based contiguous stop orders and
// non-decreasing offsets.
func (r Route) Validate() error {
	if len(r.Stops) == 0 {
		return fmt.Errorf("route %s: at least one stop is required", r.ID)
	}
	prevOffset := -1
	for i, st := range r.Stops {
		if st.BinID == "" {
			return fmt.Errorf("route %s: stop %d has no bin id", r.ID, i)
		}
		if st.Order != i+1 {
			return fmt.Errorf("route %s: stop %d has order %d", r.ID, i, st.Order)
		}
		if st.EstimatedOffsetMinute < prevOffset {
			return fmt.Errorf("route %s: stop %d offset decreases", r.ID, i)
		}
		prevOffset = st.EstimatedOffsetMinute
	}
	return nil
}

// StopByBin returns the stop referencing the given bin.
func (r Route) StopByBin(binID string) (RouteStop, bool) {
	for _, st := range r.Stops {
		if st.BinID == binID {
			return st, true
		}
	}
	return RouteStop{}, false
}

// AllCollected reports whether every stop has been collected.
func (r Route) AllCollected() bool {
	for _, st := range r.Stops {
		if st.Status != StopCollected {
			return false
		}
	}
	return true
}
