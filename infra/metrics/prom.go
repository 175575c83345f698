package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/smartbin/fleetops/core/metrics"
	"github.com/smartbin/fleetops/core/model"
)

// PromSink records collection activity in Prometheus metrics.
type PromSink struct {
	collections *prometheus.CounterVec
	routeEvents *prometheus.CounterVec
	disposals   prometheus.Counter
	disposedKg  prometheus.Counter
	utilization *prometheus.GaugeVec
}

// NewPromSink registers collection metrics on the default Prometheus
// registerer. The metrics HTTP server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		collections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bin_collections_total",
			Help: "Total number of bin collections",
		}, []string{"route_type", "driver_id"}),
		routeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "route_lifecycle_events_total",
			Help: "Route lifecycle milestones",
		}, []string{"route_type", "milestone"}),
		disposals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "disposals_total",
			Help: "Total number of disposal events",
		}),
		disposedKg: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "disposed_weight_kg_total",
			Help: "Total weight disposed in kilograms",
		}),
		utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vehicle_capacity_utilization",
			Help: "Current payload utilization per vehicle",
		}, []string{"vehicle_id"}),
	}
	for _, c := range []prometheus.Collector{s.collections, s.routeEvents, s.disposals, s.disposedKg, s.utilization} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordCollection increments the collection counter.
func (s *PromSink) RecordCollection(ev coremetrics.CollectionEvent) error {
	s.collections.WithLabelValues(ev.RouteType.String(), ev.DriverID).Inc()
	return nil
}

// RecordRouteEvent increments the lifecycle milestone counter.
func (s *PromSink) RecordRouteEvent(ev coremetrics.RouteEvent) error {
	s.routeEvents.WithLabelValues(ev.RouteType.String(), ev.Milestone).Inc()
	return nil
}

// RecordDisposal counts the disposal and its weight.
func (s *PromSink) RecordDisposal(rec model.DisposalRecord) error {
	s.disposals.Inc()
	s.disposedKg.Add(rec.WeightKg)
	return nil
}

// RecordUtilization sets the per-vehicle utilization gauge.
func (s *PromSink) RecordUtilization(vehicleID string, utilization float64) error {
	s.utilization.WithLabelValues(vehicleID).Set(utilization)
	return nil
}
