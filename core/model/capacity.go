package model

import (
	"fmt"
	"time"
)

// VehicleCapacity tracks a vehicle's payload against its maximum.
type VehicleCapacity struct {
	VehicleID string
	CurrentKg float64
	MaxKg     float64
}

// Utilization returns the load ratio in [0,1].
func (c VehicleCapacity) Utilization() float64 {
	if c.MaxKg <= 0 {
		return 0
	}
	return c.CurrentKg / c.MaxKg
}

// Validate checks that the capacity configuration is sound.
func (c VehicleCapacity) Validate() error {
	if c.VehicleID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	if c.MaxKg <= 0 {
		return fmt.Errorf("vehicle %s: max load must be positive", c.VehicleID)
	}
	if c.CurrentKg < 0 {
		return fmt.Errorf("vehicle %s: current load is negative", c.VehicleID)
	}
	return nil
}

// DisposalRecord logs one unload at a facility. Records are append-only and
// immutable once created.
type DisposalRecord struct {
	ID        string    `json:"id" bson:"_id"`
	DriverID  string    `json:"driver_id" bson:"driver_id"`
	RouteID   string    `json:"route_id,omitempty" bson:"route_id,omitempty"`
	VehicleID string    `json:"vehicle_id" bson:"vehicle_id"`
	WeightKg  float64   `json:"weight_kg" bson:"weight_kg"`
	Facility  string    `json:"facility" bson:"facility"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}
