// Package storage defines the persistence boundary of the dispatch engine.
// The engine treats the store as a keyed document interface; adapters for a
// real document database live under infra, and in-memory implementations
// back tests and single-process deployments.
package storage

import (
	"context"
	"time"

	"github.com/smartbin/fleetops/core/model"
)

// BinStore persists bin documents keyed by bin id.
type BinStore interface {
	GetBin(ctx context.Context, id string) (model.Bin, error)
	PutBin(ctx context.Context, bin model.Bin) error
	ListBins(ctx context.Context) ([]model.Bin, error)
}

// RouteStore persists route documents keyed by route id.
type RouteStore interface {
	GetRoute(ctx context.Context, id string) (model.Route, error)
	PutRoute(ctx context.Context, route model.Route) error
	// ListActiveRoutes returns routes in assigned or in-progress state,
	// optionally restricted to one driver (empty driverID means all).
	ListActiveRoutes(ctx context.Context, driverID string) ([]model.Route, error)
}

// DisposalStore appends immutable disposal records.
type DisposalStore interface {
	AppendDisposal(ctx context.Context, rec model.DisposalRecord) error
	ListDisposals(ctx context.Context, driverID string) ([]model.DisposalRecord, error)
}

// Retry runs fn up to attempts times, sleeping backoff, 2*backoff, ... between
// tries. It returns nil on the first success and the last error once the
// budget is exhausted or the context is cancelled. Business-rule errors are
// not retried here; callers pass only upstream I/O operations.
func Retry(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff << i):
		}
	}
	return err
}
