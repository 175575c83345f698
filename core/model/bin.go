package model

import (
	"fmt"
	"time"
)

// BinStatus describes the operational state of a smart bin.
type BinStatus int

const (
	BinActive BinStatus = iota
	BinOverflow
	BinMaintenance
	BinCollected
)

// String returns a human-readable representation of the bin status.
func (s BinStatus) String() string {
	switch s {
	case BinActive:
		return "active"
	case BinOverflow:
		return "overflow"
	case BinMaintenance:
		return "maintenance"
	case BinCollected:
		return "collected"
	default:
		return "unknown"
	}
}

// ParseBinStatus converts the wire representation of a bin status.
func ParseBinStatus(s string) (BinStatus, error) {
	switch s {
	case "active":
		return BinActive, nil
	case "overflow":
		return BinOverflow, nil
	case "maintenance":
		return BinMaintenance, nil
	case "collected":
		return BinCollected, nil
	default:
		return BinActive, fmt.Errorf("unknown bin status %q", s)
	}
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bin represents a monitored waste receptacle.
type Bin struct {
	ID                  string
	FillLevel           int // percentage, 0-100
	Status              BinStatus
	Location            string
	Coordinates         Coordinates
	LastPickup          time.Time // zero when never collected
	NextScheduledPickup time.Time // zero when unscheduled
}

// Validate checks that the bin state is sound.
func (b Bin) Validate() error {
	if b.ID == "" {
		return fmt.Errorf("bin id is required")
	}
	if b.FillLevel < 0 || b.FillLevel > 100 {
		return fmt.Errorf("bin %s: fill level %d out of range", b.ID, b.FillLevel)
	}
	return nil
}

// BinUpdate is one telemetry snapshot for a bin. Delivery is at-least-once
// and unordered across bins; consumers must tolerate duplicates.
type BinUpdate struct {
	BinID               string      `json:"bin_id"`
	FillLevel           int         `json:"fill_level"`
	Status              BinStatus   `json:"-"`
	Location            string      `json:"location,omitempty"`
	Coordinates         Coordinates `json:"coordinates"`
	NextScheduledPickup time.Time   `json:"next_scheduled_pickup,omitempty"`
	Timestamp           time.Time   `json:"timestamp"`
}

// Validate checks the snapshot before ingestion.
func (u BinUpdate) Validate() error {
	if u.BinID == "" {
		return fmt.Errorf("bin update: bin id is required")
	}
	if u.FillLevel < 0 || u.FillLevel > 100 {
		return fmt.Errorf("bin update %s: fill level %d out of range", u.BinID, u.FillLevel)
	}
	return nil
}
