package config

import (
	"math"
	"sort"
	"strings"
)

// Classic is the reference tuning every other preset derives from.
func Classic() Physics {
	return Physics{
		Name: "classic",
		Cycle: Cycle{
			BaseSpeed:       40,
			MaxSpeed:        80,
			MinSpeed:        10,
			Acceleration:    30,
			BrakeDecel:      60,
			TurnSpeed:       3,
			CollisionRadius: 4,
		},
		Rubber: Rubber{
			MaxRubber:       1.0,
			ServerCeiling:   1.05,
			DetectionRadius: 10,
			MinDistance:     1.0,
			ProximityFactor: 2.0,
			RubberSpeed:     1.0,
			ConsumptionRate: 3.0,
			GrindSlowdown:   2.0,
			RegenRate:       0.5,
			MalusFactor:     0.3,
			MalusDuration:   0.5,
		},
		Trail: Trail{
			Spacing:           2,
			MinPointSpacing:   0.1,
			MaxLength:         200,
			SelfGraceDistance: 12,
		},
		Arena: Arena{
			HalfExtent: 200,
			SpawnRing:  0.6,
		},
		Slipstream: Slipstream{
			Radius:          6,
			MaxAngle:        math.Pi / 8,
			BoostMultiplier: 1.5,
		},
		Round: Round{
			RespawnDelay: 3,
			RestartDelay: 2,
			AutoRespawn:  false,
			MinPlayers:   2,
		},
	}
}

// Competitive tightens rubber and lengthens trails.
func Competitive() Physics {
	p := Classic()
	p.Name = "competitive"
	p.Rubber.MaxRubber = 0.6
	p.Rubber.ServerCeiling = 0.6
	p.Rubber.RegenRate = 0.3
	p.Rubber.MalusFactor = 0.2
	p.Rubber.MalusDuration = 0.8
	p.Trail.MaxLength = 400
	p.Cycle.BaseSpeed = 50
	p.Cycle.MaxSpeed = 100
	return p
}

// Casual is forgiving: more rubber, shorter trails, automatic respawn.
func Casual() Physics {
	p := Classic()
	p.Name = "casual"
	p.Rubber.MaxRubber = 2.0
	p.Rubber.ServerCeiling = 2.1
	p.Rubber.RegenRate = 1.0
	p.Rubber.MalusFactor = 0.5
	p.Trail.MaxLength = 120
	p.Cycle.BaseSpeed = 30
	p.Round.AutoRespawn = true
	return p
}

var presets = map[string]func() Physics{
	"classic":     Classic,
	"competitive": Competitive,
	"casual":      Casual,
}

// Preset returns the named preset. Lookup is case-insensitive.
func Preset(name string) (Physics, bool) {
	fn, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Physics{}, false
	}
	return fn(), true
}

// PresetNames lists available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
