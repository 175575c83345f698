// Package events defines the structured events the dispatch coordinator
// emits on the event bus and mirrors to the notification sink.
//
// Available event types:
//   - ClassifiedEvent: outcome of classifying one bin update
//   - EmergencyRouteCreated: an emergency route was auto-dispatched
//   - NearCapacityWarning: a vehicle crossed the capacity warning ratio
//   - RouteCompleted: a route reached its terminal completed state
package events

import (
	"time"

	"github.com/smartbin/fleetops/core/model"
)

// ClassifiedEvent is published for every processed bin update.
type ClassifiedEvent struct {
	BinID  string
	Result string
	Time   time.Time
}

// EmergencyRouteCreated is published when an emergency route has been
// materialized and assigned.
type EmergencyRouteCreated struct {
	Route    model.Route
	DriverID string
	BinCount int
	Time     time.Time
}

// NearCapacityWarning is published when a collection crosses the vehicle's
// capacity warning ratio. The collection itself still succeeded.
type NearCapacityWarning struct {
	VehicleID   string
	DriverID    string
	CurrentKg   float64
	MaxKg       float64
	Utilization float64
	Time        time.Time
}

// RouteCompleted is published when a route completes.
type RouteCompleted struct {
	Route model.Route
	Time  time.Time
}
