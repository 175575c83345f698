// Package driver exposes the route lifecycle to driver clients over HTTP.
// Every request carries the driver identity in the X-Driver-ID header; identity
// verification happens upstream of this service.
package driver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/smartbin/fleetops/core/fault"
	"github.com/smartbin/fleetops/core/lifecycle"
	"github.com/smartbin/fleetops/core/model"
)

// Dispatcher is the slice of the dispatch coordinator the API needs.
type Dispatcher interface {
	RequestRoutineRoute(ctx context.Context, driverID string) (model.Route, error)
	AssignRoute(ctx context.Context, routeID, driverID string) (model.Route, error)
	StartRoute(ctx context.Context, routeID, driverID string) (model.Route, error)
	CollectStop(ctx context.Context, routeID, driverID, binID string) (lifecycle.CollectResult, error)
	CompleteRoute(ctx context.Context, routeID, driverID string) (model.Route, error)
	CancelRoute(ctx context.Context, routeID, driverID, reason string) (model.Route, error)
	Dispose(ctx context.Context, vehicleID, driverID, routeID string) (model.DisposalRecord, error)
	ActiveRoute(driverID string, typ model.RouteType) (model.Route, bool)
}

// NewHandler returns the driver action API. Endpoints:
//
//	POST /api/driver/routes/routine        request a routine route from the pool
//	GET  /api/driver/routes/current?type=  fetch the caller's active route
//	POST /api/driver/routes/{id}/assign    claim an unassigned route
//	POST /api/driver/routes/{id}/start     begin the assigned route
//	POST /api/driver/routes/{id}/collect   mark one stop collected
//	POST /api/driver/routes/{id}/complete  finish the route
//	POST /api/driver/routes/{id}/cancel    abandon the route
//	POST /api/driver/dispose               unload the vehicle at the facility
func NewHandler(d Dispatcher) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/driver/routes/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routeAction(d, w, r)
	}))
	mux.Handle("/api/driver/dispose", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dispose(d, w, r)
	}))
	return mux
}

func routeAction(d Dispatcher, w http.ResponseWriter, r *http.Request) {
	driverID := r.Header.Get("X-Driver-ID")
	if driverID == "" {
		http.Error(w, "missing X-Driver-ID header", http.StatusBadRequest)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/driver/routes/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] == "routine":
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		route, err := d.RequestRoutineRoute(r.Context(), driverID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, route)

	case len(parts) == 1 && parts[0] == "current":
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		typ := model.RouteRoutine
		if t := r.URL.Query().Get("type"); t != "" {
			parsed, err := model.ParseRouteType(t)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			typ = parsed
		}
		route, ok := d.ActiveRoute(driverID, typ)
		if !ok {
			http.Error(w, "no active route", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, route)

	case len(parts) == 2:
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		routeID, action := parts[0], parts[1]
		switch action {
		case "assign":
			route, err := d.AssignRoute(r.Context(), routeID, driverID)
			respond(w, route, err)
		case "start":
			route, err := d.StartRoute(r.Context(), routeID, driverID)
			respond(w, route, err)
		case "collect":
			var body struct {
				BinID string `json:"bin_id"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.BinID == "" {
				http.Error(w, "bin_id required", http.StatusBadRequest)
				return
			}
			res, err := d.CollectStop(r.Context(), routeID, driverID, body.BinID)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, res)
		case "complete":
			route, err := d.CompleteRoute(r.Context(), routeID, driverID)
			respond(w, route, err)
		case "cancel":
			var body struct {
				Reason string `json:"reason"`
			}
			// The reason is optional; an empty body cancels without one.
			_ = json.NewDecoder(r.Body).Decode(&body)
			route, err := d.CancelRoute(r.Context(), routeID, driverID, body.Reason)
			respond(w, route, err)
		default:
			http.NotFound(w, r)
		}

	default:
		http.NotFound(w, r)
	}
}

func dispose(d Dispatcher, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	driverID := r.Header.Get("X-Driver-ID")
	if driverID == "" {
		http.Error(w, "missing X-Driver-ID header", http.StatusBadRequest)
		return
	}
	var body struct {
		RouteID string `json:"route_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	// Vehicles map one-to-one onto drivers, so the driver id doubles as the
	// vehicle id here.
	rec, err := d.Dispose(r.Context(), driverID, driverID, body.RouteID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func respond(w http.ResponseWriter, route model.Route, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the fault taxonomy onto HTTP statuses. Upstream failures hide
// the cause behind a generic retryable message.
func writeErr(w http.ResponseWriter, err error) {
	switch fault.KindOf(err) {
	case fault.NotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case fault.Conflict:
		http.Error(w, err.Error(), http.StatusConflict)
	case fault.Incomplete:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case fault.InvariantViolation:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "temporary backend failure, retry shortly", http.StatusBadGateway)
	}
}
