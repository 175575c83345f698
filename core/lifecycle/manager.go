// Package lifecycle owns route entities and arbitrates their state machine:
// unassigned → assigned → in-progress → completed, with cancelled reachable
// from assigned or in-progress. It enforces the per-driver exclusivity
// invariant (at most one active route per type per driver) against an
// explicit index rather than by scanning routes.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartbin/fleetops/core/capacity"
	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/logger"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/core/storage"
	"github.com/smartbin/fleetops/internal/clock"
)

// PickupRecorder resets a bin after its stop is collected. Implemented by
// the bin registry.
type PickupRecorder interface {
	RecordPickup(binID string, at time.Time) (model.Bin, error)
}

// LoadTracker adds collected weight to a vehicle. Implemented by the
// capacity tracker.
type LoadTracker interface {
	AddLoad(vehicleID string, weightKg float64) (capacity.Result, error)
}

// CollectResult reports the side effects of marking one stop collected.
type CollectResult struct {
	Route model.Route
	Bin   model.Bin
	Load  capacity.Result
}

// Config carries the lifecycle manager settings.
type Config struct {
	// PerBinWeightKg is the fixed weight estimate added per collected bin.
	PerBinWeightKg float64
	RetryAttempts  int
	RetryBackoff   time.Duration
}

// Manager is the route lifecycle manager. All route mutation goes through
// one lock; the persistence write happens before the in-memory commit so a
// store failure leaves the last-known-good state untouched.
type Manager struct {
	mu       sync.Mutex
	routes   map[string]model.Route
	byDriver map[string]map[model.RouteType]string // driver → type → active route id
	byBin    map[string]string                     // bin id → active route id

	store   storage.RouteStore
	pickups PickupRecorder
	loads   LoadTracker
	clk     clock.Clock
	log     logger.Logger

	perBinWeightKg float64
	retryAttempts  int
	retryBackoff   time.Duration
}

// NewManager creates a lifecycle manager. store may be nil for a purely
// in-memory engine; pickups and loads wire the collection side effects.
func NewManager(cfg Config, store storage.RouteStore, pickups PickupRecorder, loads LoadTracker, clk clock.Clock, log logger.Logger) *Manager {
	if cfg.PerBinWeightKg <= 0 {
		cfg.PerBinWeightKg = 50
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Manager{
		routes:         make(map[string]model.Route),
		byDriver:       make(map[string]map[model.RouteType]string),
		byBin:          make(map[string]string),
		store:          store,
		pickups:        pickups,
		loads:          loads,
		clk:            clk,
		log:            log,
		perBinWeightKg: cfg.PerBinWeightKg,
		retryAttempts:  cfg.RetryAttempts,
		retryBackoff:   cfg.RetryBackoff,
	}
}

// persist writes the route through the store with bounded retry. The caller
// holds the manager lock and must not have committed memory yet.
func (m *Manager) persist(ctx context.Context, r model.Route) error {
	if m.store == nil {
		return nil
	}
	err := storage.Retry(ctx, m.retryAttempts, m.retryBackoff, func() error {
		return m.store.PutRoute(ctx, r)
	})
	if err != nil {
		return fault.Wrap("route", r.ID, "persist", err)
	}
	return nil
}

func (m *Manager) commit(r model.Route) {
	m.routes[r.ID] = r
	if r.Status.Active() && r.AssignedDriver != "" {
		byType := m.byDriver[r.AssignedDriver]
		if byType == nil {
			byType = make(map[model.RouteType]string)
			m.byDriver[r.AssignedDriver] = byType
		}
		byType[r.Type] = r.ID
		for _, st := range r.Stops {
			m.byBin[st.BinID] = r.ID
		}
		return
	}
	if r.Status.Terminal() {
		m.release(r)
	}
}

// release frees the driver's exclusivity slot and the bin membership index.
func (m *Manager) release(r model.Route) {
	if byType, ok := m.byDriver[r.AssignedDriver]; ok && byType[r.Type] == r.ID {
		delete(byType, r.Type)
		if len(byType) == 0 {
			delete(m.byDriver, r.AssignedDriver)
		}
	}
	for _, st := range r.Stops {
		if m.byBin[st.BinID] == r.ID {
			delete(m.byBin, st.BinID)
		}
	}
}

// Create materializes a route in unassigned state, or directly assigned when
// a driver is supplied (emergency auto-dispatch). It fails with Conflict if
// the driver already holds an active route of the same type.
func (m *Manager) Create(ctx context.Context, typ model.RouteType, stops []model.RouteStop, estimatedDuration int, driverID string) (model.Route, error) {
	r := model.Route{
		ID:                uuid.NewString(),
		Type:              typ,
		Status:            model.RouteUnassigned,
		Stops:             append([]model.RouteStop(nil), stops...),
		EstimatedDuration: estimatedDuration,
		CreatedAt:         m.clk.Now(),
	}
	if driverID != "" {
		r.AssignedDriver = driverID
		r.Status = model.RouteAssigned
	}
	if err := r.Validate(); err != nil {
		return model.Route{}, fault.Wrap("route", r.ID, "create", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if driverID != "" {
		if held, ok := m.byDriver[driverID][typ]; ok {
			return model.Route{}, fault.New(fault.Conflict, "driver", driverID, "create "+typ.String()+" route").WithState("already holds route " + held)
		}
	}
	if err := m.persist(ctx, r); err != nil {
		return model.Route{}, err
	}
	m.commit(r)
	m.log.Infof("route %s created: type=%s driver=%q stops=%d", r.ID, r.Type, driverID, len(r.Stops))
	return r, nil
}

// Assign moves an unassigned route to assigned for the given driver.
func (m *Manager) Assign(ctx context.Context, routeID, driverID string) (model.Route, error) {
	if driverID == "" {
		return model.Route{}, fault.New(fault.InvariantViolation, "route", routeID, "assign")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", routeID, "assign")
	}
	if r.Status != model.RouteUnassigned {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "assign").WithState(r.Status.String())
	}
	if held, ok := m.byDriver[driverID][r.Type]; ok {
		return model.Route{}, fault.New(fault.Conflict, "driver", driverID, "assign "+r.Type.String()+" route").WithState("already holds route " + held)
	}
	r.AssignedDriver = driverID
	r.Status = model.RouteAssigned
	if err := m.persist(ctx, r); err != nil {
		return model.Route{}, err
	}
	m.commit(r)
	return r, nil
}

// Start moves an assigned route to in-progress. Only the assigned driver may
// start it; from this point the stop ordering is immutable.
func (m *Manager) Start(ctx context.Context, routeID, driverID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", routeID, "start")
	}
	if r.Status != model.RouteAssigned {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "start").WithState(r.Status.String())
	}
	if r.AssignedDriver != driverID {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "start by "+driverID).WithState("assigned to " + r.AssignedDriver)
	}
	r.Status = model.RouteInProgress
	r.StartedAt = m.clk.Now()
	if err := m.persist(ctx, r); err != nil {
		return model.Route{}, err
	}
	m.commit(r)
	return r, nil
}

// MarkStopCollected records one stop's collection while the route is
// in-progress. Only the assigned driver may collect. Stops may be collected
// in any order; the visiting order is advisory. On success the bin registry
// resets the bin and the capacity tracker gains the per-bin weight estimate.
//
// The stop is committed collected before the side effects run, so a registry
// or tracker failure surfaces as an error while the stop stays collected.
// The contract is at-least-once: re-collecting an already collected stop is
// a no-op, so re-delivered driver actions never double-count weight.
func (m *Manager) MarkStopCollected(ctx context.Context, routeID, driverID, binID string) (CollectResult, error) {
	m.mu.Lock()
	r, ok := m.routes[routeID]
	if !ok {
		m.mu.Unlock()
		return CollectResult{}, fault.New(fault.NotFound, "route", routeID, "collect stop")
	}
	if r.Status != model.RouteInProgress {
		m.mu.Unlock()
		return CollectResult{}, fault.New(fault.Conflict, "route", routeID, "collect stop").WithState(r.Status.String())
	}
	if r.AssignedDriver != driverID {
		m.mu.Unlock()
		return CollectResult{}, fault.New(fault.Conflict, "route", routeID, "collect stop by "+driverID).WithState("assigned to " + r.AssignedDriver)
	}
	idx := -1
	for i, st := range r.Stops {
		if st.BinID == binID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return CollectResult{}, fault.New(fault.NotFound, "bin", binID, "collect stop on route "+routeID)
	}
	if r.Stops[idx].Status == model.StopCollected {
		m.mu.Unlock()
		return CollectResult{Route: r}, nil
	}

	now := m.clk.Now()
	updated := r
	updated.Stops = append([]model.RouteStop(nil), r.Stops...)
	updated.Stops[idx].Status = model.StopCollected
	updated.Stops[idx].CollectedAt = now
	if err := m.persist(ctx, updated); err != nil {
		m.mu.Unlock()
		return CollectResult{}, err
	}
	m.commit(updated)
	driver := updated.AssignedDriver
	m.mu.Unlock()

	res := CollectResult{Route: updated}
	if m.pickups != nil {
		bin, err := m.pickups.RecordPickup(binID, now)
		if err != nil {
			return res, err
		}
		res.Bin = bin
	}
	if m.loads != nil {
		// One vehicle per driver: the vehicle is keyed by the driver id.
		load, err := m.loads.AddLoad(driver, m.perBinWeightKg)
		if err != nil {
			return res, err
		}
		res.Load = load
	}
	return res, nil
}

// Complete moves an in-progress route with every stop collected to
// completed. Only the assigned driver may complete. Pending stops fail the
// call with Incomplete and leave the status unchanged.
func (m *Manager) Complete(ctx context.Context, routeID, driverID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", routeID, "complete")
	}
	if r.Status != model.RouteInProgress {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "complete").WithState(r.Status.String())
	}
	if r.AssignedDriver != driverID {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "complete by "+driverID).WithState("assigned to " + r.AssignedDriver)
	}
	if !r.AllCollected() {
		pending := 0
		for _, st := range r.Stops {
			if st.Status != model.StopCollected {
				pending++
			}
		}
		return model.Route{}, fault.New(fault.Incomplete, "route", routeID, "complete").WithState(fmt.Sprintf("%d stops pending", pending))
	}
	r.Status = model.RouteCompleted
	r.CompletedAt = m.clk.Now()
	if err := m.persist(ctx, r); err != nil {
		return model.Route{}, err
	}
	m.commit(r)
	m.log.Infof("route %s completed by %s", r.ID, r.AssignedDriver)
	return r, nil
}

// Cancel aborts an assigned or in-progress route and releases the driver's
// exclusivity slot. Only the assigned driver may cancel an assigned route;
// unassigned routes can be cancelled by anyone.
func (m *Manager) Cancel(ctx context.Context, routeID, driverID, reason string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", routeID, "cancel")
	}
	if !r.Status.Active() {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "cancel").WithState(r.Status.String())
	}
	if r.AssignedDriver != "" && r.AssignedDriver != driverID {
		return model.Route{}, fault.New(fault.Conflict, "route", routeID, "cancel by "+driverID).WithState("assigned to " + r.AssignedDriver)
	}
	r.Status = model.RouteCancelled
	r.CompletedAt = m.clk.Now()
	if err := m.persist(ctx, r); err != nil {
		return model.Route{}, err
	}
	m.commit(r)
	m.log.Warnf("route %s cancelled: %s", routeID, reason)
	return r, nil
}

// Get returns the route with the given id.
func (m *Manager) Get(routeID string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", routeID, "get")
	}
	return r, nil
}

// ActiveRoute returns the driver's active route of the given type.
func (m *Manager) ActiveRoute(driverID string, typ model.RouteType) (model.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byDriver[driverID][typ]
	if !ok {
		return model.Route{}, false
	}
	return m.routes[id], true
}

// OnActiveRoute reports whether the bin is a stop of any active route. It
// implements the classifier's membership check.
func (m *Manager) OnActiveRoute(binID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byBin[binID]
	return ok
}

// Routes returns a copy of every route the manager knows about.
func (m *Manager) Routes() []model.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]model.Route, 0, len(m.routes))
	for _, r := range m.routes {
		res = append(res, r)
	}
	return res
}
