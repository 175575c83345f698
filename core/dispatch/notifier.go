package dispatch

import (
	"context"

	"github.com/smartbin/fleetops/core/events"
)

// Notifier delivers structured events to the external notification sink
// (driver push, UI subscription). The MQTT implementation lives under
// infra/mqtt.
type Notifier interface {
	NotifyEmergencyRoute(ctx context.Context, ev events.EmergencyRouteCreated) error
	NotifyNearCapacity(ctx context.Context, ev events.NearCapacityWarning) error
	NotifyRouteCompleted(ctx context.Context, ev events.RouteCompleted) error
}

// NopNotifier discards every notification.
type NopNotifier struct{}

func (NopNotifier) NotifyEmergencyRoute(context.Context, events.EmergencyRouteCreated) error {
	return nil
}
func (NopNotifier) NotifyNearCapacity(context.Context, events.NearCapacityWarning) error { return nil }
func (NopNotifier) NotifyRouteCompleted(context.Context, events.RouteCompleted) error   { return nil }
