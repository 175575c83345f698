// Package capacity tracks per-vehicle payload through the collect/dispose
// cycle. Each vehicle is mutated under its own lock; concurrent load
// additions serialize, so no update is ever lost and the near-capacity
// warning fires on exact numbers.
package capacity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/logger"
	"github.com/smartbin/fleetops/core/model"
	"github.com/smartbin/fleetops/core/storage"
	"github.com/smartbin/fleetops/internal/clock"
)

// DefaultWarnRatio is the utilization at which a load addition raises the
// near-capacity signal.
const DefaultWarnRatio = 0.8

// Result reports the post-update state of a vehicle after a load addition.
type Result struct {
	VehicleID   string
	CurrentKg   float64
	MaxKg       float64
	Utilization float64
	// NearCapacity is set when this addition crossed the warning ratio. The
	// operation itself still succeeds; the coordinator propagates a warning.
	NearCapacity bool
	// Clamped is set when part of the addition was discarded at the maximum.
	Clamped bool
}

type vehicleState struct {
	mu  sync.Mutex
	cap model.VehicleCapacity
}

// Tracker maintains vehicle payloads and appends disposal records.
type Tracker struct {
	mu           sync.Mutex
	vehicles     map[string]*vehicleState
	defaultMaxKg float64
	warnRatio    float64
	facility     string
	store        storage.DisposalStore
	clk          clock.Clock
	log          logger.Logger

	retryAttempts int
	retryBackoff  time.Duration
}

// Config carries the tracker settings.
type Config struct {
	DefaultMaxKg  float64
	WarnRatio     float64
	Facility      string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// NewTracker creates a tracker persisting disposal records to store.
func NewTracker(cfg Config, store storage.DisposalStore, clk clock.Clock, log logger.Logger) *Tracker {
	if cfg.DefaultMaxKg <= 0 {
		cfg.DefaultMaxKg = 100
	}
	if cfg.WarnRatio <= 0 || cfg.WarnRatio > 1 {
		cfg.WarnRatio = DefaultWarnRatio
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
	return &Tracker{
		vehicles:      make(map[string]*vehicleState),
		defaultMaxKg:  cfg.DefaultMaxKg,
		warnRatio:     cfg.WarnRatio,
		facility:      cfg.Facility,
		store:         store,
		clk:           clk,
		log:           log,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
	}
}

// Register sets the maximum load for a vehicle. Vehicles touched by AddLoad
// without prior registration get the configured default maximum.
func (t *Tracker) Register(vehicleID string, maxKg float64) error {
	if maxKg <= 0 {
		return fault.New(fault.InvariantViolation, "vehicle", vehicleID, "register")
	}
	st := t.state(vehicleID)
	st.mu.Lock()
	st.cap.MaxKg = maxKg
	if st.cap.CurrentKg > maxKg {
		st.cap.CurrentKg = maxKg
	}
	st.mu.Unlock()
	return nil
}

func (t *Tracker) state(vehicleID string) *vehicleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.vehicles[vehicleID]
	if !ok {
		st = &vehicleState{cap: model.VehicleCapacity{VehicleID: vehicleID, MaxKg: t.defaultMaxKg}}
		t.vehicles[vehicleID] = st
	}
	return st
}

// AddLoad adds weight to the vehicle, clamping at the maximum, and returns
// the post-update state. Crossing the warning ratio sets NearCapacity but
// never blocks the addition.
func (t *Tracker) AddLoad(vehicleID string, weightKg float64) (Result, error) {
	if weightKg < 0 {
		return Result{}, fault.New(fault.InvariantViolation, "vehicle", vehicleID, "add load")
	}
	st := t.state(vehicleID)
	st.mu.Lock()
	defer st.mu.Unlock()

	before := st.cap.CurrentKg
	after := before + weightKg
	clamped := false
	if after > st.cap.MaxKg {
		after = st.cap.MaxKg
		clamped = true
	}
	st.cap.CurrentKg = after

	warnAt := t.warnRatio * st.cap.MaxKg
	res := Result{
		VehicleID:    vehicleID,
		CurrentKg:    after,
		MaxKg:        st.cap.MaxKg,
		Utilization:  st.cap.Utilization(),
		NearCapacity: before < warnAt && after >= warnAt,
		Clamped:      clamped,
	}
	return res, nil
}

// Snapshot returns the current capacity of the vehicle.
func (t *Tracker) Snapshot(vehicleID string) (model.VehicleCapacity, error) {
	t.mu.Lock()
	st, ok := t.vehicles[vehicleID]
	t.mu.Unlock()
	if !ok {
		return model.VehicleCapacity{}, fault.New(fault.NotFound, "vehicle", vehicleID, "snapshot")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cap, nil
}

// DisposeAll reads the current load, appends a disposal record with that
// snapshot and resets the load to zero. The vehicle lock is held across the
// whole sequence, so no concurrent AddLoad observes an intermediate state.
// A store failure leaves the load untouched.
func (t *Tracker) DisposeAll(ctx context.Context, vehicleID, driverID, routeID string) (model.DisposalRecord, error) {
	st := t.state(vehicleID)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec := model.DisposalRecord{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		RouteID:   routeID,
		VehicleID: vehicleID,
		WeightKg:  st.cap.CurrentKg,
		Facility:  t.facility,
		Timestamp: t.clk.Now(),
	}
	if t.store != nil {
		err := storage.Retry(ctx, t.retryAttempts, t.retryBackoff, func() error {
			return t.store.AppendDisposal(ctx, rec)
		})
		if err != nil {
			return model.DisposalRecord{}, fault.Wrap("vehicle", vehicleID, "dispose", err)
		}
	}
	st.cap.CurrentKg = 0
	t.log.Infof("vehicle %s disposed %.1fkg at %s", vehicleID, rec.WeightKg, rec.Facility)
	return rec, nil
}
