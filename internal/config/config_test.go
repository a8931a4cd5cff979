package config

import (
	"testing"
)

func TestPresetsKeepServerCeilingAboveClient(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			p, ok := Preset(name)
			if !ok {
				t.Fatalf("preset %q not found", name)
			}
			if p.Rubber.ServerCeiling < p.Rubber.MaxRubber {
				t.Errorf("server ceiling %.2f below client ceiling %.2f", p.Rubber.ServerCeiling, p.Rubber.MaxRubber)
			}
			if p.Rubber.MalusFactor <= 0 || p.Rubber.MalusFactor > 1 {
				t.Errorf("malus factor %.2f out of (0,1]", p.Rubber.MalusFactor)
			}
			if p.Trail.MinPointSpacing > p.Trail.Spacing {
				t.Errorf("min point spacing %.2f exceeds emit spacing %.2f", p.Trail.MinPointSpacing, p.Trail.Spacing)
			}
			if p.Rubber.MinDistance >= p.Rubber.DetectionRadius {
				t.Errorf("min distance must be inside detection radius")
			}
		})
	}
}

func TestPresetLookupIsCaseInsensitive(t *testing.T) {
	p, ok := Preset("  Competitive ")
	if !ok || p.Name != "competitive" {
		t.Fatalf("expected competitive preset, got %q ok=%v", p.Name, ok)
	}
	if _, ok := Preset("turbo"); ok {
		t.Error("unknown preset should not resolve")
	}
}

func TestPresetsAreIndependentValues(t *testing.T) {
	a := Classic()
	a.Rubber.MaxRubber = 99
	if Classic().Rubber.MaxRubber == 99 {
		t.Error("mutating a preset copy leaked into the preset")
	}
}

func TestPhysicsFromEnv(t *testing.T) {
	t.Setenv("PHYSICS_PRESET", "casual")
	t.Setenv("ARENA_HALF_EXTENT", "350")

	p := PhysicsFromEnv()
	if p.Name != "casual" {
		t.Errorf("expected casual preset, got %s", p.Name)
	}
	if p.Arena.HalfExtent != 350 {
		t.Errorf("expected half extent 350, got %.0f", p.Arena.HalfExtent)
	}
}

func TestSchedulerFromEnv(t *testing.T) {
	t.Setenv("TICK_RATE", "120")
	t.Setenv("MAX_CATCHUP_TICKS", "bogus")

	s := SchedulerFromEnv()
	if s.TickRate != 120 {
		t.Errorf("expected tick rate 120, got %d", s.TickRate)
	}
	if s.MaxCatchUpTicks != DefaultScheduler().MaxCatchUpTicks {
		t.Errorf("invalid override should keep default, got %d", s.MaxCatchUpTicks)
	}
	if dt := s.FixedDt(); dt != 1.0/120.0 {
		t.Errorf("expected dt 1/120, got %f", dt)
	}
}

func TestServerFromEnvOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " https://arena.example , ,http://lan-box:*")
	t.Setenv("ADMIN_TOKEN", "hunter2")

	s := ServerFromEnv()
	if len(s.AllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", s.AllowedOrigins)
	}
	if s.AllowedOrigins[0] != "https://arena.example" || s.AllowedOrigins[1] != "http://lan-box:*" {
		t.Errorf("origins not trimmed: %q", s.AllowedOrigins)
	}
	if s.AdminToken != "hunter2" {
		t.Errorf("expected admin token, got %q", s.AdminToken)
	}
}

func TestObservabilityFromEnv(t *testing.T) {
	t.Setenv("DISABLE_DEBUG_SERVER", "true")
	t.Setenv("ALLOW_DEBUG_EXTERNAL", "maybe")
	t.Setenv("DEBUG_PORT", "7070")

	o := ObservabilityFromEnv()
	if o.Enabled {
		t.Error("debug server should be disabled")
	}
	if o.AllowExternal {
		t.Error("unparsable bool should keep the default")
	}
	if o.Port != 7070 {
		t.Errorf("expected port 7070, got %d", o.Port)
	}
}

func TestIPCFromEnvEmptySocketDisablesFeed(t *testing.T) {
	t.Setenv("IPC_SOCKET", "")
	t.Setenv("IPC_PUBLISH_EVERY", "4")

	c := IPCFromEnv()
	if c.SocketPath != "" {
		t.Errorf("expected empty socket path, got %q", c.SocketPath)
	}
	if c.PublishEvery != 4 {
		t.Errorf("expected publish every 4, got %d", c.PublishEvery)
	}
}
