// Package optimize computes the visiting order for a set of candidate bins.
// Candidate selection is the caller's job; only the ordering happens here, so
// a road-network optimizer can replace the default without touching the
// route lifecycle manager.
package optimize

import (
	"sort"

	"github.com/smartbin/fleetops/core/model"
)

// Optimizer turns a candidate bin set into an ordered stop sequence and a
// duration estimate in minutes.
type Optimizer interface {
	Optimize(bins []model.Bin) (stops []model.RouteStop, estimatedDuration int)
}

// Default timing parameters, in minutes.
const (
	DefaultServiceTimePerBin  = 15
	DefaultTravelBufferPerBin = 10
)

// FillLevelOptimizer orders bins by fill level descending, fullest first.
// Ties break on bin id ascending so the ordering is a total order and the
// output deterministic.
type FillLevelOptimizer struct {
	ServiceTimePerBin  int
	TravelBufferPerBin int
}

// NewFillLevelOptimizer creates an optimizer with the default timing
// parameters. Non-positive overrides fall back to the defaults.
func NewFillLevelOptimizer(serviceMin, travelMin int) FillLevelOptimizer {
	if serviceMin <= 0 {
		serviceMin = DefaultServiceTimePerBin
	}
	if travelMin <= 0 {
		travelMin = DefaultTravelBufferPerBin
	}
	return FillLevelOptimizer{ServiceTimePerBin: serviceMin, TravelBufferPerBin: travelMin}
}

// Optimize ranks the bins and assigns 1-based stop orders. The estimated
// offset of stop i is i*(service+travel) for the zero-based rank; the total
// duration is service*n + travel*(n-1).
func (o FillLevelOptimizer) Optimize(bins []model.Bin) ([]model.RouteStop, int) {
	if len(bins) == 0 {
		return nil, 0
	}
	sorted := append([]model.Bin(nil), bins...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].FillLevel != sorted[j].FillLevel {
			return sorted[i].FillLevel > sorted[j].FillLevel
		}
		return sorted[i].ID < sorted[j].ID
	})

	service := o.ServiceTimePerBin
	travel := o.TravelBufferPerBin
	stops := make([]model.RouteStop, len(sorted))
	for i, b := range sorted {
		stops[i] = model.RouteStop{
			BinID:                 b.ID,
			Order:                 i + 1,
			EstimatedOffsetMinute: i * (service + travel),
			Status:                model.StopPending,
		}
	}
	duration := service*len(sorted) + travel*(len(sorted)-1)
	return stops, duration
}
