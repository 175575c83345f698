package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/smartbin/fleetops/core/capacity"
	"github.com/smartbin/fleetops/core/classify"
	"github.com/smartbin/fleetops/core/events"
	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/lifecycle"
	"github.com/smartbin/fleetops/core/logger"
	coremetrics "github.com/smartbin/fleetops/core/metrics"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/core/optimize"
	"github.com/smartbin/fleetops/core/registry"
	"github.com/smartbin/fleetops/core/storage"
	"github.com/smartbin/fleetops/internal/clock"
	"github.com/smartbin/fleetops/internal/eventbus"
)

// Coordinator wires the registry, classifier, optimizer, lifecycle manager
// and capacity tracker together. All telemetry and routine-route requests
// run on one intake loop in arrival order.
type Coordinator struct {
	cfg        Config
	registry   *registry.Registry
	classifier *classify.Classifier
	optimizer  optimize.Optimizer
	routes     *lifecycle.Manager
	capacity   *capacity.Tracker
	pool       *Pool
	drivers    DriverSource
	notifier   Notifier
	bus        *eventbus.Bus
	bins       storage.BinStore
	sink       coremetrics.MetricsSink
	clk        clock.Clock
	log        logger.Logger

	mu      sync.Mutex
	tasks   chan func()
	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewCoordinator creates the coordinator. registry, routes and capacity are
// required; the remaining collaborators default to no-ops.
func NewCoordinator(cfg Config, reg *registry.Registry, cls *classify.Classifier, opt optimize.Optimizer, routes *lifecycle.Manager, cap *capacity.Tracker, drivers DriverSource, notifier Notifier, bus *eventbus.Bus, bins storage.BinStore, sink coremetrics.MetricsSink, clk clock.Clock, log logger.Logger) (*Coordinator, error) {
	if reg == nil || cls == nil || routes == nil || cap == nil {
		return nil, fault.New(fault.InvariantViolation, "coordinator", "", "construct")
	}
	cfg.SetDefaults()
	if opt == nil {
		opt = optimize.NewFillLevelOptimizer(cfg.ServiceTimeMinutes, cfg.TravelBufferMinutes)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Coordinator{
		cfg:        cfg,
		registry:   reg,
		classifier: cls,
		optimizer:  opt,
		routes:     routes,
		capacity:   cap,
		pool:       NewPool(),
		drivers:    drivers,
		notifier:   notifier,
		bus:        bus,
		bins:       bins,
		sink:       sink,
		clk:        clk,
		log:        log,
	}, nil
}

// Start consumes the telemetry source until the context is cancelled or
// Stop is called. It is an error to start a running coordinator; a stopped
// coordinator may be started again with a fresh intake queue.
func (c *Coordinator) Start(ctx context.Context, updates <-chan model.BinUpdate) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fault.New(fault.Conflict, "coordinator", "", "start").WithState("running")
	}
	c.running = true
	c.tasks = make(chan func(), c.cfg.QueueSize)
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	tasks, quit, done := c.tasks, c.quit, c.done
	c.mu.Unlock()

	go c.loop(ctx, updates, tasks, quit, done)
	return nil
}

func (c *Coordinator) loop(ctx context.Context, updates <-chan model.BinUpdate, tasks chan func(), quit, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.done == done {
			c.running = false
		}
		c.mu.Unlock()
		close(done)
	}()
	for {
		intakeQueueDepth.Set(float64(len(tasks)))
		select {
		case <-ctx.Done():
			drain(tasks)
			return
		case <-quit:
			drain(tasks)
			return
		case u, ok := <-updates:
			if !ok {
				drain(tasks)
				return
			}
			c.handleBinUpdate(ctx, u)
		case task := <-tasks:
			task()
		}
	}
}

// drain runs every queued task before the loop exits, so Stop returns only
// after in-flight callbacks finished.
func drain(tasks chan func()) {
	for {
		select {
		case task := <-tasks:
			task()
		default:
			return
		}
	}
}

// Stop shuts the intake loop down and waits until queued work is drained.
// Routes already created are unaffected.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	done := c.done
	close(c.quit)
	c.mu.Unlock()
	<-done
}

// submit schedules fn on the intake loop and waits for it to run. The quit
// and done channels of the current incarnation are captured under the lock,
// so a concurrent Stop turns into a Conflict instead of a lost task.
func (c *Coordinator) submit(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	wrapped := func() {
		defer close(ran)
		fn()
	}
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return fault.New(fault.Conflict, "coordinator", "", "submit").WithState("stopped")
	}
	tasks, quit, done := c.tasks, c.quit, c.done
	c.mu.Unlock()

	select {
	case tasks <- wrapped:
	case <-quit:
		return fault.New(fault.Conflict, "coordinator", "", "submit").WithState("stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-done:
		// The loop exited; the task either ran during the final drain or
		// never will.
		select {
		case <-ran:
			return nil
		default:
			return fault.New(fault.Conflict, "coordinator", "", "submit").WithState("stopped")
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleBinUpdate runs on the intake loop: ingest, persist, classify, and
// either auto-dispatch or queue for routine pickup.
func (c *Coordinator) handleBinUpdate(ctx context.Context, u model.BinUpdate) {
	prev, curr, known, err := c.registry.Ingest(u)
	if err != nil {
		c.log.Warnf("dropping bin update: %v", err)
		return
	}
	c.persistBin(ctx, curr)

	res := c.classifier.Classify(prev, curr, known)
	classificationsTotal.WithLabelValues(res.String()).Inc()
	if c.bus != nil {
		c.bus.Publish(events.ClassifiedEvent{BinID: curr.ID, Result: res.String(), Time: c.clk.Now()})
	}

	switch res {
	case classify.Emergency:
		if err := c.dispatchEmergency(ctx); err != nil {
			// No notification was emitted; the bin stays pending and the
			// next qualifying update retries.
			c.log.Errorf("emergency dispatch for bin %s failed: %v", curr.ID, err)
		}
	case classify.RoutineDue:
		c.pool.Add(curr.ID)
		c.log.Debugf("bin %s queued for routine pickup (pool=%d)", curr.ID, c.pool.Len())
	}
}

// persistBin mirrors registry state to the document store with bounded
// retry. The in-memory registry remains last-known-good on failure.
func (c *Coordinator) persistBin(ctx context.Context, b model.Bin) {
	if c.bins == nil {
		return
	}
	backoff := time.Duration(c.cfg.RetryBackoffMS) * time.Millisecond
	err := storage.Retry(ctx, c.cfg.RetryAttempts, backoff, func() error {
		return c.bins.PutBin(ctx, b)
	})
	if err != nil {
		c.log.Errorf("persist bin %s: %v", b.ID, err)
	}
}

// dispatchEmergency gathers every currently urgent bin not already routed,
// computes the visiting order and materializes an assigned emergency route.
// The candidate snapshot comes first: an edge whose bins are all routed
// already must not advance the roster position.
func (c *Coordinator) dispatchEmergency(ctx context.Context) error {
	threshold := c.cfg.UrgentFillThreshold
	candidates := c.registry.Snapshot(func(b model.Bin) bool {
		return b.FillLevel > threshold && b.Status == model.BinOverflow && !c.routes.OnActiveRoute(b.ID)
	})
	if len(candidates) == 0 {
		return nil
	}

	if c.drivers == nil {
		return fault.New(fault.Conflict, "roster", "", "emergency dispatch").WithState("no driver source")
	}
	driverID, ok := c.drivers.NextAvailable(model.RouteEmergency)
	if !ok {
		return fault.New(fault.Conflict, "roster", "", "emergency dispatch").WithState("no driver available")
	}

	stops, duration := c.optimizer.Optimize(candidates)
	route, err := c.routes.Create(ctx, model.RouteEmergency, stops, duration, driverID)
	if err != nil {
		return err
	}
	routesCreatedTotal.WithLabelValues(route.Type.String()).Inc()
	if err := c.sink.RecordRouteEvent(coremetrics.RouteEvent{
		RouteID:   route.ID,
		RouteType: route.Type,
		DriverID:  driverID,
		Milestone: "created",
		StopCount: len(route.Stops),
		Time:      c.clk.Now(),
	}); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}

	ev := events.EmergencyRouteCreated{Route: route, DriverID: driverID, BinCount: len(route.Stops), Time: c.clk.Now()}
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	if err := c.notifier.NotifyEmergencyRoute(ctx, ev); err != nil {
		notifyFailures.Inc()
		c.log.Errorf("emergency notification: %v", err)
	}
	c.log.Infof("emergency route %s dispatched to %s (%d bins, ~%dmin)", route.ID, driverID, len(route.Stops), route.EstimatedDuration)
	return nil
}

// OnBinUpdate enqueues one telemetry snapshot for processing. It is the
// entry point for sources that are not wired through Start's channel.
func (c *Coordinator) OnBinUpdate(ctx context.Context, u model.BinUpdate) error {
	return c.submit(ctx, func() { c.handleBinUpdate(ctx, u) })
}

// RequestRoutineRoute consumes the routine candidate pool and creates a
// routine route for the driver. The decision runs on the intake loop so it
// cannot interleave with emergency dispatch for the same bins.
func (c *Coordinator) RequestRoutineRoute(ctx context.Context, driverID string) (model.Route, error) {
	var (
		route model.Route
		err   error
	)
	serr := c.submit(ctx, func() {
		route, err = c.buildRoutineRoute(ctx, driverID)
	})
	if serr != nil {
		return model.Route{}, serr
	}
	return route, err
}

func (c *Coordinator) buildRoutineRoute(ctx context.Context, driverID string) (model.Route, error) {
	ids := c.pool.Take()
	var candidates []model.Bin
	for _, id := range ids {
		b, err := c.registry.Get(id)
		if err != nil || c.routes.OnActiveRoute(id) || b.Status == model.BinCollected {
			continue
		}
		candidates = append(candidates, b)
	}
	if len(candidates) == 0 {
		return model.Route{}, fault.New(fault.NotFound, "driver", driverID, "request routine route").WithState("no bins due")
	}

	stops, duration := c.optimizer.Optimize(candidates)
	route, err := c.routes.Create(ctx, model.RouteRoutine, stops, duration, driverID)
	if err != nil {
		c.pool.Return(ids)
		return model.Route{}, err
	}
	routesCreatedTotal.WithLabelValues(route.Type.String()).Inc()
	if merr := c.sink.RecordRouteEvent(coremetrics.RouteEvent{
		RouteID:   route.ID,
		RouteType: route.Type,
		DriverID:  driverID,
		Milestone: "created",
		StopCount: len(route.Stops),
		Time:      c.clk.Now(),
	}); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	return route, nil
}

// StartRoute forwards a driver's start action to the lifecycle manager.
func (c *Coordinator) StartRoute(ctx context.Context, routeID, driverID string) (model.Route, error) {
	return c.routes.Start(ctx, routeID, driverID)
}

// AssignRoute forwards an assignment to the lifecycle manager.
func (c *Coordinator) AssignRoute(ctx context.Context, routeID, driverID string) (model.Route, error) {
	return c.routes.Assign(ctx, routeID, driverID)
}

// CollectStop marks a stop collected and propagates the capacity warning
// when the addition crossed the warning ratio.
func (c *Coordinator) CollectStop(ctx context.Context, routeID, driverID, binID string) (lifecycle.CollectResult, error) {
	res, err := c.routes.MarkStopCollected(ctx, routeID, driverID, binID)
	if err != nil {
		return res, err
	}
	if res.Bin.ID != "" {
		c.persistBin(ctx, res.Bin)
	}
	collectionsTotal.WithLabelValues(res.Route.Type.String()).Inc()
	if merr := c.sink.RecordCollection(coremetrics.CollectionEvent{
		RouteID:   res.Route.ID,
		RouteType: res.Route.Type,
		BinID:     binID,
		DriverID:  res.Route.AssignedDriver,
		WeightKg:  c.cfg.PerBinWeightKg,
		Time:      c.clk.Now(),
	}); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	if merr := c.sink.RecordUtilization(res.Load.VehicleID, res.Load.Utilization); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}

	if res.Load.NearCapacity {
		ev := events.NearCapacityWarning{
			VehicleID:   res.Load.VehicleID,
			DriverID:    res.Route.AssignedDriver,
			CurrentKg:   res.Load.CurrentKg,
			MaxKg:       res.Load.MaxKg,
			Utilization: res.Load.Utilization,
			Time:        c.clk.Now(),
		}
		if c.bus != nil {
			c.bus.Publish(ev)
		}
		if nerr := c.notifier.NotifyNearCapacity(ctx, ev); nerr != nil {
			notifyFailures.Inc()
			c.log.Errorf("capacity notification: %v", nerr)
		}
	}
	return res, nil
}

// CompleteRoute forwards completion and emits the route-completed event.
func (c *Coordinator) CompleteRoute(ctx context.Context, routeID, driverID string) (model.Route, error) {
	route, err := c.routes.Complete(ctx, routeID, driverID)
	if err != nil {
		return model.Route{}, err
	}
	if merr := c.sink.RecordRouteEvent(coremetrics.RouteEvent{
		RouteID:   route.ID,
		RouteType: route.Type,
		DriverID:  route.AssignedDriver,
		Milestone: "completed",
		StopCount: len(route.Stops),
		Time:      c.clk.Now(),
	}); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	ev := events.RouteCompleted{Route: route, Time: c.clk.Now()}
	if c.bus != nil {
		c.bus.Publish(ev)
	}
	if nerr := c.notifier.NotifyRouteCompleted(ctx, ev); nerr != nil {
		notifyFailures.Inc()
		c.log.Errorf("completion notification: %v", nerr)
	}
	return route, nil
}

// CancelRoute forwards cancellation to the lifecycle manager.
func (c *Coordinator) CancelRoute(ctx context.Context, routeID, driverID, reason string) (model.Route, error) {
	route, err := c.routes.Cancel(ctx, routeID, driverID, reason)
	if err != nil {
		return model.Route{}, err
	}
	if merr := c.sink.RecordRouteEvent(coremetrics.RouteEvent{
		RouteID:   route.ID,
		RouteType: route.Type,
		DriverID:  route.AssignedDriver,
		Milestone: "cancelled",
		StopCount: len(route.Stops),
		Time:      c.clk.Now(),
	}); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	return route, nil
}

// Dispose empties the vehicle at the facility and records the disposal.
func (c *Coordinator) Dispose(ctx context.Context, vehicleID, driverID, routeID string) (model.DisposalRecord, error) {
	rec, err := c.capacity.DisposeAll(ctx, vehicleID, driverID, routeID)
	if err != nil {
		return model.DisposalRecord{}, err
	}
	if merr := c.sink.RecordDisposal(rec); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	if merr := c.sink.RecordUtilization(vehicleID, 0); merr != nil {
		c.log.Errorf("metrics error: %v", merr)
	}
	return rec, nil
}

// ActiveRoute exposes the driver's active route of the given type.
func (c *Coordinator) ActiveRoute(driverID string, typ model.RouteType) (model.Route, bool) {
	return c.routes.ActiveRoute(driverID, typ)
}

// PoolSize reports the routine candidate backlog.
func (c *Coordinator) PoolSize() int { return c.pool.Len() }
