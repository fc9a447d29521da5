package geospatial

import (
	"fmt"
	"math"
)

// Transport modes produced by the default tiers.
const (
	ModeWalk        = "walk"
	ModeWalkOrTrain = "walk-or-train"
	ModeTrain       = "train"
	ModeExpress     = "express-train"
)

// TransportTier estimates travel for distances below UpToKm. The last tier
// also covers everything beyond it.
type TransportTier struct {
	Mode         string  `mapstructure:"mode"`
	UpToKm       float64 `mapstructure:"up_to_km"`
	MinutesPerKm float64 `mapstructure:"minutes_per_km"`
	FixedMinutes int     `mapstructure:"fixed_minutes"`
	BaseCost     int     `mapstructure:"base_cost"`
	CostPerKm    float64 `mapstructure:"cost_per_km"`
	MaxCost      int     `mapstructure:"max_cost"`
}

// TransportConfig is an ordered list of tiers, shortest distance first.
type TransportConfig struct {
	Tiers []TransportTier `mapstructure:"tiers"`
}

// TransportEstimate is the heuristic cost of covering a distance.
type TransportEstimate struct {
	Mode    string `json:"mode"`
	Minutes int    `json:"minutes"`
	Cost    int    `json:"cost"`
}

// DefaultTransportConfig reflects Japanese urban transit: walking, short hops,
// metro/JR lines and limited express trains. Costs are in yen.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{Tiers: []TransportTier{
		{Mode: ModeWalk, UpToKm: 0.5, MinutesPerKm: 12},
		{Mode: ModeWalkOrTrain, UpToKm: 2, MinutesPerKm: 10, FixedMinutes: 5, BaseCost: 170},
		{Mode: ModeTrain, UpToKm: 10, MinutesPerKm: 3, FixedMinutes: 10, BaseCost: 200, CostPerKm: 20, MaxCost: 500},
		{Mode: ModeExpress, MinutesPerKm: 2, FixedMinutes: 15, BaseCost: 300, CostPerKm: 25, MaxCost: 1500},
	}}
}

// Validate checks tier ordering.
func (c TransportConfig) Validate() error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("transport: at least one tier is required")
	}
	prev := 0.0
	for i, t := range c.Tiers {
		if t.Mode == "" {
			return fmt.Errorf("transport: tier %d has no mode", i)
		}
		if t.MinutesPerKm < 0 || t.FixedMinutes < 0 || t.BaseCost < 0 || t.CostPerKm < 0 {
			return fmt.Errorf("transport: tier %q has negative constants", t.Mode)
		}
		if i < len(c.Tiers)-1 && t.UpToKm <= prev {
			return fmt.Errorf("transport: tier %q must end beyond %.2f km", t.Mode, prev)
		}
		prev = t.UpToKm
	}
	return nil
}

// Estimate returns mode, minutes and cost for travelling distanceKm.
// Minutes never decrease as distance grows: a tier never reports less than
// the slowest time of the tiers before it.
func (c TransportConfig) Estimate(distanceKm float64) TransportEstimate {
	if !(distanceKm > 0) {
		distanceKm = 0
	}
	if len(c.Tiers) == 0 {
		c = DefaultTransportConfig()
	}

	floor := 0
	for i, t := range c.Tiers {
		last := i == len(c.Tiers)-1
		if !last && distanceKm >= t.UpToKm {
			floor = max(floor, t.minutes(t.UpToKm))
			continue
		}
		return TransportEstimate{
			Mode:    t.Mode,
			Minutes: max(t.minutes(distanceKm), floor),
			Cost:    t.cost(distanceKm),
		}
	}
	return TransportEstimate{}
}

func (t TransportTier) minutes(km float64) int {
	return int(math.Ceil(km*t.MinutesPerKm)) + t.FixedMinutes
}

func (t TransportTier) cost(km float64) int {
	cost := t.BaseCost + int(math.Ceil(km*t.CostPerKm))
	if t.MaxCost > 0 && cost > t.MaxCost {
		cost = t.MaxCost
	}
	return cost
}
