package config

import "fmt"

// CapacityConfig defines the vehicle payload settings.
type CapacityConfig struct {
	// DefaultMaxKg is the maximum load assumed for unregistered vehicles.
	DefaultMaxKg float64 `json:"default_max_kg"`
	// WarnRatio is the utilization at which collections raise the
	// near-capacity warning.
	WarnRatio float64 `json:"warn_ratio"`
	// Facility names the disposal facility recorded on unload.
	Facility string `json:"facility"`
	// Vehicles maps vehicle ids to their maximum load in kilograms.
	Vehicles map[string]float64 `json:"vehicles"`
}

// SetDefaults applies sane defaults.
func (c *CapacityConfig) SetDefaults() {
	if c.DefaultMaxKg <= 0 {
		c.DefaultMaxKg = 100
	}
	if c.WarnRatio <= 0 {
		c.WarnRatio = 0.8
	}
	if c.Facility == "" {
		c.Facility = "central-processing"
	}
}

// Validate checks mandatory fields.
func (c CapacityConfig) Validate() error {
	if c.WarnRatio > 1 {
		return fmt.Errorf("capacity warn_ratio must be at most 1, got %v", c.WarnRatio)
	}
	for id, max := range c.Vehicles {
		if max <= 0 {
			return fmt.Errorf("vehicle %s: max load must be positive", id)
		}
	}
	return nil
}
