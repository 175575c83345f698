package metrics

import (
	"errors"

	coremetrics "github.com/smartbin/fleetops/core/metrics"
	"github.com/smartbin/fleetops/core/model"
)

// MultiSink fans records out to several sinks, joining their errors.
type MultiSink struct {
	sinks []coremetrics.MetricsSink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordCollection(ev coremetrics.CollectionEvent) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordCollection(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordRouteEvent(ev coremetrics.RouteEvent) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordRouteEvent(ev))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordDisposal(rec model.DisposalRecord) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordDisposal(rec))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordUtilization(vehicleID string, utilization float64) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.RecordUtilization(vehicleID, utilization))
	}
	return errors.Join(errs...)
}
