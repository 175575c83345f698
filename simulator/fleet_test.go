package main

import "testing"

func TestGenerateFleet(t *testing.T) {
	bins := GenerateFleet(FleetConfig{Size: 50, FillRateMin: 1, FillRateMax: 5, ScheduledPct: 1, Spread: 0.1})
	if len(bins) != 50 {
		t.Fatalf("expected 50 bins, got %d", len(bins))
	}
	seen := make(map[string]bool)
	for _, b := range bins {
		if seen[b.ID] {
			t.Fatalf("duplicate id %s", b.ID)
		}
		seen[b.ID] = true
		if b.FillRate < 1 || b.FillRate > 5 {
			t.Fatalf("fill rate out of range: %d", b.FillRate)
		}
		if b.NextScheduledPickup.IsZero() {
			t.Fatal("scheduled_pct=1 must schedule every bin")
		}
	}
}

func TestGenerateFleetEmpty(t *testing.T) {
	if bins := GenerateFleet(FleetConfig{}); bins != nil {
		t.Fatalf("expected nil fleet, got %v", bins)
	}
}

func TestStepSaturatesAndOverflows(t *testing.T) {
	b := SimulatedBin{ID: "bin0001", FillLevel: 95, FillRate: 10}
	status := b.Step()
	if b.FillLevel != 100 {
		t.Fatalf("fill must clamp at 100, got %d", b.FillLevel)
	}
	if status != "overflow" {
		t.Fatalf("expected overflow, got %s", status)
	}
	b.Reset()
	if b.FillLevel != 0 {
		t.Fatal("reset must empty the bin")
	}
	if st := b.Step(); st != "active" {
		t.Fatalf("expected active after reset, got %s", st)
	}
}
