package dispatch

import (
	"sync"

	"github.com/smartbin/fleetops/core/model"
)

// DriverSource selects the driver that receives an auto-dispatched route.
type DriverSource interface {
	NextAvailable(typ model.RouteType) (string, bool)
}

// ActiveRouteIndex is the subset of the lifecycle manager the roster needs
// to skip busy drivers.
type ActiveRouteIndex interface {
	ActiveRoute(driverID string, typ model.RouteType) (model.Route, bool)
}

// Roster hands out drivers round-robin, skipping drivers that already hold
// an active route of the requested type.
type Roster struct {
	mu      sync.Mutex
	drivers []string
	next    int
	index   ActiveRouteIndex
}

// NewRoster creates a roster over the given driver ids.
func NewRoster(drivers []string, index ActiveRouteIndex) *Roster {
	return &Roster{drivers: append([]string(nil), drivers...), index: index}
}

// NextAvailable returns the next driver without an active route of the given
// type, or false when every driver is busy.
func (r *Roster) NextAvailable(typ model.RouteType) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.drivers) == 0 {
		return "", false
	}
	for i := 0; i < len(r.drivers); i++ {
		d := r.drivers[r.next%len(r.drivers)]
		r.next++
		if r.index != nil {
			if _, busy := r.index.ActiveRoute(d, typ); busy {
				continue
			}
		}
		return d, true
	}
	return "", false
}
