// Package fleet exposes aggregate fleet indicators for dashboards.
package fleet

import (
	"encoding/json"
	"net/http"

	"github.com/smartbin/fleetops/core/kpi"
	"github.com/smartbin/fleetops/core/model"
)

// BinSource lists the current bin snapshots.
type BinSource interface {
	Snapshot(pred func(model.Bin) bool) []model.Bin
}

// RouteSource lists every known route.
type RouteSource interface {
	Routes() []model.Route
}

// DisposalSource lists disposal records, optionally for one driver.
type DisposalSource interface {
	Disposals(driverID string) []model.DisposalRecord
}

// NewSummaryHandler serves fleet-wide KPIs via GET /api/fleet/summary.
func NewSummaryHandler(bins BinSource, routes RouteSource, disposals DisposalSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		summary := kpi.Summarize(
			bins.Snapshot(nil),
			routes.Routes(),
			disposals.Disposals(r.URL.Query().Get("driver_id")),
		)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	})
}
