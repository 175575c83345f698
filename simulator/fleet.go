package main

import (
	"fmt"
	"math/rand"
	"time"
)

var fleetRng = rand.New(rand.NewSource(time.Now().UnixNano()))

// FleetConfig holds parameters for bulk bin generation.
type FleetConfig struct {
	Size int
	// FillRateMin and FillRateMax bound the per-tick fill growth in
	// percentage points.
	FillRateMin int
	FillRateMax int
	// ScheduledPct is the fraction of bins carrying a pickup schedule.
	ScheduledPct float64
	// Center and Spread place the bins on the map.
	CenterLat float64
	CenterLng float64
	Spread    float64
}

// SimulatedBin is one telemetry-emitting bin.
type SimulatedBin struct {
	ID                  string
	FillLevel           int
	FillRate            int
	Lat                 float64
	Lng                 float64
	NextScheduledPickup time.Time
}

// GenerateFleet creates Size bins with ids bin0001..binNNNN scattered around
// the configured center.
func GenerateFleet(cfg FleetConfig) []SimulatedBin {
	if cfg.Size <= 0 {
		return nil
	}
	if cfg.FillRateMax < cfg.FillRateMin {
		cfg.FillRateMax = cfg.FillRateMin
	}
	bins := make([]SimulatedBin, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		b := SimulatedBin{
			ID:        fmt.Sprintf("bin%04d", i+1),
			FillLevel: fleetRng.Intn(60),
			FillRate:  cfg.FillRateMin + fleetRng.Intn(cfg.FillRateMax-cfg.FillRateMin+1),
			Lat:       cfg.CenterLat + (fleetRng.Float64()-0.5)*cfg.Spread,
			Lng:       cfg.CenterLng + (fleetRng.Float64()-0.5)*cfg.Spread,
		}
		if cfg.ScheduledPct > 0 && fleetRng.Float64() < cfg.ScheduledPct {
			b.NextScheduledPickup = time.Now().UTC().Add(time.Duration(fleetRng.Intn(120)) * time.Minute)
		}
		bins[i] = b
	}
	return bins
}

// Step advances the bin by one tick and returns its wire status.
func (b *SimulatedBin) Step() string {
	b.FillLevel += b.FillRate
	if b.FillLevel > 100 {
		b.FillLevel = 100
	}
	if b.FillLevel > 85 {
		return "overflow"
	}
	return "active"
}

// Reset simulates a pickup.
func (b *SimulatedBin) Reset() {
	b.FillLevel = 0
}
