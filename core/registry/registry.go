// Package registry holds the current known state of every smart bin. It is
// the single serialized mutation point for bin state; telemetry ingestion
// and pickup resets both go through it.
package registry

import (
	"sync"
	"time"

	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/model"
)

// Registry is the in-memory bin registry.
type Registry struct {
	mu   sync.RWMutex
	bins map[string]model.Bin
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{bins: make(map[string]model.Bin)}
}

// Ingest applies an external telemetry snapshot to the named bin, creating it
// if unseen, and returns the previous and new state. The previous state of an
// unseen bin is the zero Bin with Known=false.
func (r *Registry) Ingest(u model.BinUpdate) (prev model.Bin, curr model.Bin, known bool, err error) {
	if err := u.Validate(); err != nil {
		return model.Bin{}, model.Bin{}, false, fault.Wrap("bin", u.BinID, "ingest", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, known = r.bins[u.BinID]
	curr = prev
	curr.ID = u.BinID
	curr.FillLevel = u.FillLevel
	curr.Status = u.Status
	curr.Coordinates = u.Coordinates
	if u.Location != "" {
		curr.Location = u.Location
	}
	if !u.NextScheduledPickup.IsZero() {
		curr.NextScheduledPickup = u.NextScheduledPickup
	}
	r.bins[u.BinID] = curr
	return prev, curr, known, nil
}

// Get returns the bin with the given id.
func (r *Registry) Get(id string) (model.Bin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bins[id]
	if !ok {
		return model.Bin{}, fault.New(fault.NotFound, "bin", id, "get")
	}
	return b, nil
}

// Snapshot evaluates pred against the current state of every bin and returns
// the matches. The result is computed fresh on each call; no ordering beyond
// identifier uniqueness is guaranteed.
func (r *Registry) Snapshot(pred func(model.Bin) bool) []model.Bin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res []model.Bin
	for _, b := range r.bins {
		if pred == nil || pred(b) {
			res = append(res, b)
		}
	}
	return res
}

// RecordPickup marks the bin collected: fill level reset to zero, status set
// to collected and the pickup timestamp recorded. This is the only path that
// zeroes a bin's fill level.
func (r *Registry) RecordPickup(binID string, at time.Time) (model.Bin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bins[binID]
	if !ok {
		return model.Bin{}, fault.New(fault.NotFound, "bin", binID, "record pickup")
	}
	b.FillLevel = 0
	b.Status = model.BinCollected
	b.LastPickup = at
	r.bins[binID] = b
	return b, nil
}
