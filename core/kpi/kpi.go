// Package kpi computes fleet-level summary statistics for reporting.
package kpi

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/smartbin/fleetops/core/model"
)

// FleetSummary aggregates the current bin population and route history.
type FleetSummary struct {
	TotalBins       int     `json:"total_bins"`
	OverflowingBins int     `json:"overflowing_bins"`
	MeanFillLevel   float64 `json:"mean_fill_level"`
	FillLevelStdDev float64 `json:"fill_level_std_dev"`
	FillLevelP90    float64 `json:"fill_level_p90"`
	ActiveRoutes    int     `json:"active_routes"`
	CompletedRoutes int     `json:"completed_routes"`
	DisposedKg      float64 `json:"disposed_kg"`
}

// OverflowFillThreshold marks a bin as overflowing for reporting purposes.
const OverflowFillThreshold = 80

// Summarize computes the fleet summary from bin, route and disposal data.
func Summarize(bins []model.Bin, routes []model.Route, disposals []model.DisposalRecord) FleetSummary {
	s := FleetSummary{TotalBins: len(bins)}

	if len(bins) > 0 {
		fills := make([]float64, 0, len(bins))
		for _, b := range bins {
			if b.FillLevel > OverflowFillThreshold {
				s.OverflowingBins++
			}
			fills = append(fills, float64(b.FillLevel))
		}
		sort.Float64s(fills)
		s.MeanFillLevel = stat.Mean(fills, nil)
		s.FillLevelStdDev = stat.StdDev(fills, nil)
		s.FillLevelP90 = stat.Quantile(0.9, stat.Empirical, fills, nil)
	}

	for _, r := range routes {
		switch {
		case r.Status.Active():
			s.ActiveRoutes++
		case r.Status == model.RouteCompleted:
			s.CompletedRoutes++
		}
	}
	for _, d := range disposals {
		s.DisposedKg += d.WeightKg
	}
	return s
}
