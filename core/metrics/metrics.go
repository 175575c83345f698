// Package metrics defines the sink interfaces used to record collection
// activity. Sinks like the Prometheus and InfluxDB adapters under
// infra/metrics implement them and can be combined with a multi sink.
package metrics

import (
	"time"

	"github.com/smartbin/fleetops/core/model"
)

// CollectionEvent represents one bin pickup on a route.
type CollectionEvent struct {
	RouteID   string
	RouteType model.RouteType
	BinID     string
	DriverID  string
	WeightKg  float64
	Time      time.Time
}

// RouteEvent represents a route lifecycle milestone (created, completed,
// cancelled).
type RouteEvent struct {
	RouteID   string
	RouteType model.RouteType
	DriverID  string
	Milestone string
	StopCount int
	Time      time.Time
}

// MetricsSink records collection activity for observability purposes.
type MetricsSink interface {
	RecordCollection(ev CollectionEvent) error
	RecordRouteEvent(ev RouteEvent) error
	RecordDisposal(rec model.DisposalRecord) error
	RecordUtilization(vehicleID string, utilization float64) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCollection(CollectionEvent) error    { return nil }
func (NopSink) RecordRouteEvent(RouteEvent) error         { return nil }
func (NopSink) RecordDisposal(model.DisposalRecord) error { return nil }
func (NopSink) RecordUtilization(string, float64) error   { return nil }
