package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "physics.toml")
	doc := `
[physics]
gravity = [0.0, -20.0, 0.0]
solver_iterations = 8

[layers]
path = "layers.yaml"
watch = true

[stress]
bodies = 42
profile = "cpu"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Physics.Gravity != [3]float64{0, -20, 0} || cfg.Physics.SolverIterations != 8 {
		t.Fatalf("physics = %+v", cfg.Physics)
	}
	if cfg.Physics.FixedTimestep != 1.0/60.0 {
		t.Fatalf("fixed timestep = %v, want the default kept", cfg.Physics.FixedTimestep)
	}
	if !cfg.Layers.Watch || cfg.Layers.Path != "layers.yaml" {
		t.Fatalf("layers = %+v", cfg.Layers)
	}
	if cfg.Stress.Bodies != 42 || cfg.Stress.Ticks != 600 {
		t.Fatalf("stress = %+v", cfg.Stress)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error")
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		errs int
	}{
		{"valid", "[physics]\nepsilon = 1e-4\n", 0},
		{"bad_timestep", "[physics]\nfixed_timestep = 0.0\n", 1},
		{"several", "[physics]\nfixed_timestep = -1.0\nsolver_iterations = 0\n[logging]\nformat = \"xml\"\n", 3},
		{"multi_bit_ground_layer", "[ground_plane]\nlayer = 6\n", 1},
		{"bad_profile", "[stress]\nprofile = \"block\"\n", 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Parse([]byte(c.doc))
			if got := len(multierr.Errors(err)); got != c.errs {
				t.Fatalf("errors = %d (%v), want %d", got, err, c.errs)
			}
		})
	}
}

func TestParseRejectsBadToml(t *testing.T) {
	_, err := Parse([]byte("[physics\n"))
	if err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		log, err := NewLogger(LoggingConfig{Level: "not-a-level", Format: format})
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		if !log.Core().Enabled(0) || log.Core().Enabled(-1) {
			t.Fatalf("%s: want the info level fallback", format)
		}
	}
}
