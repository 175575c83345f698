// Package app assembles the dispatch engine from its configuration: stores,
// registry, classifier, lifecycle manager, capacity tracker, coordinator,
// telemetry source and the HTTP surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	driverapi "github.com/smartbin/fleetops/api/driver"
	fleetapi "github.com/smartbin/fleetops/api/fleet"
	"github.com/smartbin/fleetops/config"
	"github.com/smartbin/fleetops/core/capacity"
	"github.com/smartbin/fleetops/core/classify"
	"github.com/smartbin/fleetops/core/dispatch"
	"github.com/smartbin/fleetops/core/lifecycle"
	coremetrics "github.com/smartbin/fleetops/core/metrics"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/core/registry"
	"github.com/smartbin/fleetops/core/storage"
	"github.com/smartbin/fleetops/infra/logger"
	"github.com/smartbin/fleetops/infra/metrics"
	"github.com/smartbin/fleetops/infra/mongo"
	"github.com/smartbin/fleetops/infra/mqtt"
	"github.com/smartbin/fleetops/internal/eventbus"
)

// Service orchestrates the dispatch coordinator and its adapters.
type Service struct {
	Coordinator *dispatch.Coordinator
	Registry    *registry.Registry
	Routes      *lifecycle.Manager

	source    *mqtt.Source
	notifier  *mqtt.Notifier
	bus       *eventbus.Bus
	mongo     *mongo.Store
	disposals storage.DisposalStore
	log       logger.Logger

	apiAddr     string
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration. The context bounds the
// initial store and broker connections.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	mem := storage.NewMemory()
	var (
		binStore      storage.BinStore      = mem
		routeStore    storage.RouteStore    = mem
		disposalStore storage.DisposalStore = mem
		mongoStore    *mongo.Store
	)
	if cfg.Mongo.Enabled {
		st, err := mongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		mongoStore = st
		binStore, routeStore, disposalStore = st, st, st
	}

	reg := registry.New()
	tracker := capacity.NewTracker(capacity.Config{
		DefaultMaxKg:  cfg.Capacity.DefaultMaxKg,
		WarnRatio:     cfg.Capacity.WarnRatio,
		Facility:      cfg.Capacity.Facility,
		RetryAttempts: cfg.Dispatch.RetryAttempts,
		RetryBackoff:  time.Duration(cfg.Dispatch.RetryBackoffMS) * time.Millisecond,
	}, disposalStore, nil, logger.New("capacity"))
	for id, maxKg := range cfg.Capacity.Vehicles {
		if err := tracker.Register(id, maxKg); err != nil {
			return nil, fmt.Errorf("register vehicle %s: %w", id, err)
		}
	}

	routes := lifecycle.NewManager(lifecycle.Config{
		PerBinWeightKg: cfg.Dispatch.PerBinWeightKg,
		RetryAttempts:  cfg.Dispatch.RetryAttempts,
		RetryBackoff:   time.Duration(cfg.Dispatch.RetryBackoffMS) * time.Millisecond,
	}, routeStore, reg, tracker, nil, logger.New("lifecycle"))

	classifier := classify.New(cfg.Dispatch.UrgentFillThreshold, routes, nil)
	roster := dispatch.NewRoster(cfg.Dispatch.Drivers, routes)

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		sinks = append(sinks, sink)
	}
	var sink coremetrics.MetricsSink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	notifier, err := mqtt.NewNotifier(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt notifier: %w", err)
	}
	source, err := mqtt.NewSource(cfg.MQTT, cfg.Dispatch.QueueSize)
	if err != nil {
		return nil, fmt.Errorf("mqtt source: %w", err)
	}

	bus := eventbus.New()
	coord, err := dispatch.NewCoordinator(cfg.Dispatch, reg, classifier, nil, routes, tracker, roster, notifier, bus, binStore, sink, nil, logger.New("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	return &Service{
		Coordinator: coord,
		Registry:    reg,
		Routes:      routes,
		source:      source,
		notifier:    notifier,
		bus:         bus,
		mongo:       mongoStore,
		disposals:   disposalStore,
		log:         logg,
		apiAddr:     cfg.API.Addr,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}, nil
}

// disposalLister adapts the disposal store for the fleet summary endpoint.
type disposalLister struct {
	store storage.DisposalStore
	log   logger.Logger
}

func (l disposalLister) Disposals(driverID string) []model.DisposalRecord {
	recs, err := l.store.ListDisposals(context.Background(), driverID)
	if err != nil {
		l.log.Errorf("list disposals: %v", err)
		return nil
	}
	return recs
}

// Run starts the coordinator, telemetry intake and HTTP surfaces, and blocks
// until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Coordinator.Start(ctx, s.source.Updates()); err != nil {
		return err
	}
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/driver/", driverapi.NewHandler(s.Coordinator))
	mux.Handle("/api/fleet/summary", fleetapi.NewSummaryHandler(s.Registry, s.Routes, disposalLister{store: s.disposals, log: s.log}))
	srv := &http.Server{Addr: s.apiAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api shutdown: %v", err)
		}
	}()
	s.log.Infof("driver API listening on %s", s.apiAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases broker connections and stops the coordinator.
func (s *Service) Close() error {
	s.Coordinator.Stop()
	s.bus.Close()
	var errs []error
	if err := s.source.Close(); err != nil {
		errs = append(errs, err)
	}
	s.notifier.Close()
	if s.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mongo.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
