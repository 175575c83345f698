package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	classificationsTotal *prometheus.CounterVec
	routesCreatedTotal   *prometheus.CounterVec
	collectionsTotal     *prometheus.CounterVec
	intakeQueueDepth     prometheus.Gauge
	notifyFailures       prometheus.Counter
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge, prometheus.Counter) {
	cls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bin_classifications_total",
			Help: "Number of bin updates classified, by result",
		},
		[]string{"result"},
	)
	routes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routes_created_total",
			Help: "Number of routes created, by type",
		},
		[]string{"route_type"},
	)
	coll := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stops_collected_total",
			Help: "Number of route stops collected, by route type",
		},
		[]string{"route_type"},
	)
	depth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "intake_queue_depth",
			Help: "Number of pending items in the coordinator intake queue",
		},
	)
	nf := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_failures_total",
			Help: "Number of failed notification deliveries",
		},
	)
	return cls, routes, coll, depth, nf
}

func init() {
	classificationsTotal, routesCreatedTotal, collectionsTotal, intakeQueueDepth, notifyFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers coordinator metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(classificationsTotal, routesCreatedTotal, collectionsTotal, intakeQueueDepth, notifyFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	classificationsTotal, routesCreatedTotal, collectionsTotal, intakeQueueDepth, notifyFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
