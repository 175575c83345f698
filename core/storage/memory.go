package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/model"
)

// Memory is a thread-safe in-memory store implementing all three store
// interfaces. It is the default backend and the test double.
type Memory struct {
	mu        sync.RWMutex
	bins      map[string]model.Bin
	routes    map[string]model.Route
	disposals []model.DisposalRecord
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		bins:   make(map[string]model.Bin),
		routes: make(map[string]model.Route),
	}
}

func (m *Memory) GetBin(_ context.Context, id string) (model.Bin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bins[id]
	if !ok {
		return model.Bin{}, fault.New(fault.NotFound, "bin", id, "get")
	}
	return b, nil
}

func (m *Memory) PutBin(_ context.Context, bin model.Bin) error {
	m.mu.Lock()
	m.bins[bin.ID] = bin
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListBins(_ context.Context) ([]model.Bin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]model.Bin, 0, len(m.bins))
	for _, b := range m.bins {
		res = append(res, b)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *Memory) GetRoute(_ context.Context, id string) (model.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, fault.New(fault.NotFound, "route", id, "get")
	}
	return r, nil
}

func (m *Memory) PutRoute(_ context.Context, route model.Route) error {
	m.mu.Lock()
	m.routes[route.ID] = route
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListActiveRoutes(_ context.Context, driverID string) ([]model.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.Route
	for _, r := range m.routes {
		if !r.Status.Active() {
			continue
		}
		if driverID != "" && r.AssignedDriver != driverID {
			continue
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

func (m *Memory) AppendDisposal(_ context.Context, rec model.DisposalRecord) error {
	m.mu.Lock()
	m.disposals = append(m.disposals, rec)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListDisposals(_ context.Context, driverID string) ([]model.DisposalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []model.DisposalRecord
	for _, d := range m.disposals {
		if driverID != "" && d.DriverID != driverID {
			continue
		}
		res = append(res, d)
	}
	return res, nil
}
