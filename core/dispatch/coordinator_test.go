package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartbin/fleetops/core/capacity"
	"github.com/smartbin/fleetops/core/classify"
	coreevents "github.com/smartbin/fleetops/core/events"
	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/lifecycle"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/core/registry"
	"github.com/smartbin/fleetops/core/storage"
	"github.com/smartbin/fleetops/infra/mqtt"
	"github.com/smartbin/fleetops/internal/clock"
	"github.com/smartbin/fleetops/internal/eventbus"
)

type engine struct {
	coord    *Coordinator
	registry *registry.Registry
	routes   *lifecycle.Manager
	tracker  *capacity.Tracker
	notifier *mqtt.MockNotifier
	store    *storage.Memory
	clk      *clock.Fixed
	cancel   context.CancelFunc
}

func newEngine(t *testing.T, cfg Config, routeStore storage.RouteStore) *engine {
	t.Helper()
	cfg.SetDefaults()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	mem := storage.NewMemory()
	if routeStore == nil {
		routeStore = mem
	}
	reg := registry.New()
	tracker := capacity.NewTracker(capacity.Config{DefaultMaxKg: 100, WarnRatio: 0.8, Facility: "north-depot", RetryBackoff: time.Millisecond}, mem, clk, nil)
	routes := lifecycle.NewManager(lifecycle.Config{PerBinWeightKg: cfg.PerBinWeightKg, RetryBackoff: time.Millisecond}, routeStore, reg, tracker, clk, nil)
	cls := classify.New(cfg.UrgentFillThreshold, routes, clk)
	notifier := mqtt.NewMockNotifier()
	roster := NewRoster(cfg.Drivers, routes)

	coord, err := NewCoordinator(cfg, reg, cls, nil, routes, tracker, roster, notifier, nil, mem, nil, clk, nil)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := coord.Start(ctx, make(chan model.BinUpdate)); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		coord.Stop()
	})
	return &engine{coord: coord, registry: reg, routes: routes, tracker: tracker, notifier: notifier, store: mem, clk: clk, cancel: cancel}
}

func overflowUpdate(binID string, fill int) model.BinUpdate {
	return model.BinUpdate{BinID: binID, FillLevel: fill, Status: model.BinOverflow, Timestamp: time.Now()}
}

func TestEmergencyAutoDispatch(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	route, ok := e.coord.ActiveRoute("d1", model.RouteEmergency)
	if !ok {
		t.Fatal("expected an emergency route for d1")
	}
	if route.Status != model.RouteAssigned || len(route.Stops) != 1 || route.Stops[0].BinID != "b1" {
		t.Fatalf("unexpected route: %+v", route)
	}
	if len(e.notifier.Emergency) != 1 || e.notifier.Emergency[0].DriverID != "d1" {
		t.Fatalf("driver not notified: %+v", e.notifier.Emergency)
	}
	// The route reached the store before the notification went out.
	if _, err := e.store.GetRoute(ctx, route.ID); err != nil {
		t.Fatalf("route not persisted: %v", err)
	}
}

func TestEmergencyFlapDoesNotDuplicate(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1", "d2"}}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Same snapshot re-delivered: no edge, no membership, no second route.
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 93)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(e.notifier.Emergency) != 1 {
		t.Fatalf("expected a single emergency dispatch, got %d", len(e.notifier.Emergency))
	}
	if _, ok := e.coord.ActiveRoute("d2", model.RouteEmergency); ok {
		t.Fatal("second driver must not receive a duplicate route")
	}
}

func TestEmergencyGathersAllUrgentBins(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	ctx := context.Background()

	// b1 is urgent but below the overflow status; it only qualifies later.
	if err := e.coord.OnBinUpdate(ctx, model.BinUpdate{BinID: "b1", FillLevel: 90, Status: model.BinActive}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); err != nil {
		t.Fatalf("update: %v", err)
	}
	route, ok := e.coord.ActiveRoute("d1", model.RouteEmergency)
	if !ok {
		t.Fatal("expected emergency route")
	}
	if len(route.Stops) != 1 || route.Stops[0].BinID != "b2" {
		t.Fatalf("only overflowing bins belong on the route: %+v", route.Stops)
	}
}

func TestEmergencyRosterSkipsBusyDriver(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1", "d2"}}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d1", model.RouteEmergency); !ok {
		t.Fatal("d1 should hold the first route")
	}
	r2, ok := e.coord.ActiveRoute("d2", model.RouteEmergency)
	if !ok {
		t.Fatal("d2 should hold the second route")
	}
	if len(r2.Stops) != 1 || r2.Stops[0].BinID != "b2" {
		t.Fatalf("second route should carry only the new bin: %+v", r2.Stops)
	}
}

type flakyRouteStore struct {
	*storage.Memory
	fail bool
}

func (f *flakyRouteStore) PutRoute(ctx context.Context, r model.Route) error {
	if f.fail {
		return errors.New("store down")
	}
	return f.Memory.PutRoute(ctx, r)
}

func TestEmergencyStoreFailureRetriesOnNextEdge(t *testing.T) {
	store := &flakyRouteStore{Memory: storage.NewMemory(), fail: true}
	e := newEngine(t, Config{Drivers: []string{"d1"}, RetryAttempts: 1}, store)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d1", model.RouteEmergency); ok {
		t.Fatal("store failure must not leave a committed route")
	}
	if len(e.notifier.Emergency) != 0 {
		t.Fatal("no notification without a persisted route")
	}

	// The bin stays pending; the next qualifying edge picks it up too.
	store.fail = false
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); err != nil {
		t.Fatalf("update: %v", err)
	}
	route, ok := e.coord.ActiveRoute("d1", model.RouteEmergency)
	if !ok {
		t.Fatal("expected route after store recovery")
	}
	if len(route.Stops) != 2 {
		t.Fatalf("pending urgent bin missing from retry: %+v", route.Stops)
	}
	if route.Stops[0].BinID != "b2" || route.Stops[1].BinID != "b1" {
		t.Fatalf("stops must order by fill descending: %+v", route.Stops)
	}
}

func TestRoutinePoolAndRequest(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	ctx := context.Background()
	due := e.clk.Now().Add(-time.Hour)

	for _, u := range []model.BinUpdate{
		{BinID: "b1", FillLevel: 40, Status: model.BinActive, NextScheduledPickup: due},
		{BinID: "b2", FillLevel: 70, Status: model.BinActive, NextScheduledPickup: due},
		{BinID: "b2", FillLevel: 71, Status: model.BinActive, NextScheduledPickup: due}, // duplicate
	} {
		if err := e.coord.OnBinUpdate(ctx, u); err != nil {
			t.Fatalf("update %s: %v", u.BinID, err)
		}
	}
	if e.coord.PoolSize() != 2 {
		t.Fatalf("pool should deduplicate, got %d", e.coord.PoolSize())
	}

	route, err := e.coord.RequestRoutineRoute(ctx, "d9")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if route.Type != model.RouteRoutine || route.AssignedDriver != "d9" {
		t.Fatalf("unexpected route: %+v", route)
	}
	if len(route.Stops) != 2 || route.Stops[0].BinID != "b2" {
		t.Fatalf("stops should order by fill descending: %+v", route.Stops)
	}
	if e.coord.PoolSize() != 0 {
		t.Fatalf("pool not drained: %d", e.coord.PoolSize())
	}

	if _, err := e.coord.RequestRoutineRoute(ctx, "d8"); !fault.IsKind(err, fault.NotFound) {
		t.Fatalf("empty pool should report nothing due, got %v", err)
	}
}

func TestRoutineRequestConflictReturnsBins(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	ctx := context.Background()
	due := e.clk.Now().Add(-time.Hour)

	if err := e.coord.OnBinUpdate(ctx, model.BinUpdate{BinID: "b1", FillLevel: 40, Status: model.BinActive, NextScheduledPickup: due}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := e.coord.RequestRoutineRoute(ctx, "d9"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, model.BinUpdate{BinID: "b2", FillLevel: 45, Status: model.BinActive, NextScheduledPickup: due}); err != nil {
		t.Fatalf("update: %v", err)
	}

	// d9 already holds a routine route; the candidates must survive the
	// failed request for the next driver.
	if _, err := e.coord.RequestRoutineRoute(ctx, "d9"); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if e.coord.PoolSize() != 1 {
		t.Fatalf("failed request must return candidates, pool=%d", e.coord.PoolSize())
	}
	if _, err := e.coord.RequestRoutineRoute(ctx, "d8"); err != nil {
		t.Fatalf("next driver should get the returned bins: %v", err)
	}
}

func TestCollectPropagatesNearCapacityWarning(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}, PerBinWeightKg: 50}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); err != nil {
		t.Fatalf("update: %v", err)
	}
	route, _ := e.coord.ActiveRoute("d1", model.RouteEmergency)
	if len(route.Stops) != 2 {
		t.Fatalf("expected 2 stops, got %+v", route.Stops)
	}
	if _, err := e.coord.StartRoute(ctx, route.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	res, err := e.coord.CollectStop(ctx, route.ID, "d1", "b2")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.Load.NearCapacity {
		t.Fatal("50kg of 100kg must not warn")
	}
	if res.Bin.FillLevel != 0 || res.Bin.Status != model.BinCollected {
		t.Fatalf("bin not reset: %+v", res.Bin)
	}

	res, err = e.coord.CollectStop(ctx, route.ID, "d1", "b1")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !res.Load.NearCapacity {
		t.Fatal("100kg of 100kg must warn")
	}
	if len(e.notifier.Capacity) != 1 || e.notifier.Capacity[0].VehicleID != "d1" {
		t.Fatalf("capacity warning not notified: %+v", e.notifier.Capacity)
	}
}

func TestCompleteAndDisposeCycle(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}, PerBinWeightKg: 50}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	route, _ := e.coord.ActiveRoute("d1", model.RouteEmergency)
	if _, err := e.coord.StartRoute(ctx, route.ID, "d1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.coord.CollectStop(ctx, route.ID, "d1", "b1"); err != nil {
		t.Fatalf("collect: %v", err)
	}
	done, err := e.coord.CompleteRoute(ctx, route.ID, "d1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.RouteCompleted {
		t.Fatalf("expected completed, got %v", done.Status)
	}
	if len(e.notifier.Completed) != 1 {
		t.Fatalf("completion not notified: %+v", e.notifier.Completed)
	}

	rec, err := e.coord.Dispose(ctx, "d1", "d1", route.ID)
	if err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if rec.WeightKg != 50 {
		t.Fatalf("expected 50kg disposed, got %v", rec.WeightKg)
	}
	cap, err := e.tracker.Snapshot("d1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if cap.CurrentKg != 0 {
		t.Fatalf("vehicle not emptied: %v", cap.CurrentKg)
	}
}

func TestNotifierFailureDoesNotBlockDispatch(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	e.notifier.Fail = true
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d1", model.RouteEmergency); !ok {
		t.Fatal("route must exist even when the notification failed")
	}
}

func TestBusPublishesClassification(t *testing.T) {
	cfg := Config{Drivers: []string{"d1"}}
	cfg.SetDefaults()
	clk := clock.NewFixed(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	mem := storage.NewMemory()
	reg := registry.New()
	tracker := capacity.NewTracker(capacity.Config{DefaultMaxKg: 100}, mem, clk, nil)
	routes := lifecycle.NewManager(lifecycle.Config{}, mem, reg, tracker, clk, nil)
	cls := classify.New(cfg.UrgentFillThreshold, routes, clk)
	bus := eventbus.New()
	defer bus.Close()
	sub, cancel := bus.Subscribe(8)
	defer cancel()

	coord, err := NewCoordinator(cfg, reg, cls, nil, routes, tracker, NewRoster(cfg.Drivers, routes), mqtt.NewMockNotifier(), bus, mem, nil, clk, nil)
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	if err := coord.Start(ctx, make(chan model.BinUpdate)); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer coord.Stop()

	if err := coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	select {
	case ev := <-sub:
		ce, ok := ev.(coreevents.ClassifiedEvent)
		if !ok {
			t.Fatalf("expected classification event, got %T", ev)
		}
		if ce.BinID != "b1" || ce.Result != "emergency" {
			t.Fatalf("unexpected event: %+v", ce)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestRestartAfterStop(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1", "d2"}}, nil)
	ctx := context.Background()

	if err := e.coord.Start(ctx, make(chan model.BinUpdate)); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("double start must conflict, got %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.coord.Stop()
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("expected conflict while stopped, got %v", err)
	}

	// A stopped coordinator comes back with a fresh intake queue.
	if err := e.coord.Start(ctx, make(chan model.BinUpdate)); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer e.coord.Stop()
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); err != nil {
		t.Fatalf("update after restart: %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d2", model.RouteEmergency); !ok {
		t.Fatal("restarted coordinator must dispatch again")
	}
}

func TestEmptyEmergencySweepKeepsRosterPosition(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1", "d2"}}, nil)
	ctx := context.Background()

	// A sweep that finds no urgent bins must not consume a roster turn.
	if err := e.coord.dispatchEmergency(ctx); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d1", model.RouteEmergency); !ok {
		t.Fatal("first dispatch must still go to d1")
	}
}

func TestStopDrainsQueuedWork(t *testing.T) {
	e := newEngine(t, Config{Drivers: []string{"d1"}}, nil)
	ctx := context.Background()

	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b1", 92)); err != nil {
		t.Fatalf("update: %v", err)
	}
	e.coord.Stop()
	// Stopped coordinator refuses new work but keeps existing routes.
	if err := e.coord.OnBinUpdate(ctx, overflowUpdate("b2", 95)); !fault.IsKind(err, fault.Conflict) {
		t.Fatalf("expected conflict after stop, got %v", err)
	}
	if _, ok := e.coord.ActiveRoute("d1", model.RouteEmergency); !ok {
		t.Fatal("existing routes must survive shutdown")
	}
}
