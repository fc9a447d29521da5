package geospatial

import (
	"math"
	"testing"
)

func TestEstimateTiers(t *testing.T) {
	cfg := DefaultTransportConfig()
	tests := []struct {
		km      float64
		mode    string
		minutes int
		cost    int
	}{
		{0, ModeWalk, 0, 0},
		{0.3, ModeWalk, 4, 0},
		{1.0, ModeWalkOrTrain, 15, 170},
		{1.5, ModeWalkOrTrain, 20, 170},
		{5, ModeTrain, 25, 300},
		{20, ModeExpress, 55, 800},
		{100, ModeExpress, 215, 1500},
	}
	for _, tt := range tests {
		got := cfg.Estimate(tt.km)
		if got.Mode != tt.mode || got.Minutes != tt.minutes || got.Cost != tt.cost {
			t.Errorf("Estimate(%v): expected {%s %d %d}, got %+v", tt.km, tt.mode, tt.minutes, tt.cost, got)
		}
	}
}

func TestEstimateMonotonic(t *testing.T) {
	cfg := DefaultTransportConfig()
	prev := cfg.Estimate(0)
	for km := 0.01; km < 60; km += 0.01 {
		cur := cfg.Estimate(km)
		if cur.Minutes < prev.Minutes {
			t.Fatalf("minutes decreased at %.2f km: %d -> %d", km, prev.Minutes, cur.Minutes)
		}
		prev = cur
	}
}

func TestEstimateClampsAtTierBoundary(t *testing.T) {
	cfg := DefaultTransportConfig()
	below := cfg.Estimate(1.99)
	above := cfg.Estimate(2.0)
	if above.Mode != ModeTrain {
		t.Fatalf("expected train at 2 km, got %s", above.Mode)
	}
	if above.Minutes < below.Minutes {
		t.Errorf("expected train estimate >= %d minutes, got %d", below.Minutes, above.Minutes)
	}
}

func TestEstimateDeterministicAndSafe(t *testing.T) {
	cfg := DefaultTransportConfig()
	if cfg.Estimate(3.7) != cfg.Estimate(3.7) {
		t.Errorf("expected identical estimates for identical input")
	}
	if got := cfg.Estimate(math.NaN()); got.Mode != ModeWalk || got.Minutes != 0 {
		t.Errorf("expected NaN to clamp to zero distance, got %+v", got)
	}
	if got := cfg.Estimate(-2); got.Minutes != 0 {
		t.Errorf("expected negative distance to clamp to zero, got %+v", got)
	}
}

func TestTransportConfigValidate(t *testing.T) {
	if err := DefaultTransportConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	bad := TransportConfig{Tiers: []TransportTier{
		{Mode: "walk", UpToKm: 2},
		{Mode: "train", UpToKm: 1},
		{Mode: "express"},
	}}
	if err := bad.Validate(); err == nil {
		t.Errorf("expected error for unordered tiers")
	}
	if err := (TransportConfig{}).Validate(); err == nil {
		t.Errorf("expected error for empty tiers")
	}
}
