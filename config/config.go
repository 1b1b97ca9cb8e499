package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Physics     PhysicsConfig     `toml:"physics"`
	Controller  ControllerConfig  `toml:"controller"`
	GroundPlane GroundPlaneConfig `toml:"ground_plane"`
	Layers      LayersConfig      `toml:"layers"`
	Logging     LoggingConfig     `toml:"logging"`
	Stress      StressConfig      `toml:"stress"`
}

type PhysicsConfig struct {
	FixedTimestep     float64    `toml:"fixed_timestep"` // seconds
	Gravity           [3]float64 `toml:"gravity"`
	Epsilon           float64    `toml:"epsilon"`
	SolverIterations  int        `toml:"solver_iterations"`
	MaxConvexVertices int        `toml:"max_convex_vertices"`
	DebugThreadCheck  bool       `toml:"debug_thread_check"`
}

type ControllerConfig struct {
	GravityScale        float64 `toml:"gravity_scale"`
	GroundProbeDistance float64 `toml:"ground_probe_distance"`
	MinMoveDistance     float64 `toml:"min_move_distance"`
	ContactOffset       float64 `toml:"contact_offset"`
}

type GroundPlaneConfig struct {
	Enabled     bool    `toml:"enabled"`
	Height      float64 `toml:"height"`
	Friction    float64 `toml:"friction"`
	Restitution float64 `toml:"restitution"`
	Layer       uint32  `toml:"layer"`
}

type LayersConfig struct {
	// Path is a YAML layer matrix file. Empty keeps the all-collide default.
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type StressConfig struct {
	Bodies      int    `toml:"bodies"`
	Statics     int    `toml:"statics"`
	Controllers int    `toml:"controllers"`
	Joints      int    `toml:"joints"`
	Ticks       int    `toml:"ticks"`
	Script      string `toml:"script"`
	Profile     string `toml:"profile"` // "", "cpu", "mem", "trace"
	ProfilePath string `toml:"profile_path"`
	Seed        int64  `toml:"seed"`
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Physics: PhysicsConfig{
			FixedTimestep:     1.0 / 60.0,
			Gravity:           [3]float64{0, -9.81, 0},
			Epsilon:           1e-5,
			SolverIterations:  20,
			MaxConvexVertices: 64,
		},
		Controller: ControllerConfig{
			GravityScale:        1,
			GroundProbeDistance: 0.1,
			MinMoveDistance:     1e-4,
			ContactOffset:       0.02,
		},
		GroundPlane: GroundPlaneConfig{
			Enabled:  true,
			Friction: 0.8,
			Layer:    1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Stress: StressConfig{
			Bodies:      500,
			Statics:     50,
			Controllers: 10,
			Joints:      20,
			Ticks:       600,
			ProfilePath: ".",
			Seed:        1,
		},
	}
}

var errNotPositive = errors.New("must be positive")

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	positive := func(name string, v float64) {
		if v <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s: %w", name, errNotPositive))
		}
	}
	positive("physics.fixed_timestep", c.Physics.FixedTimestep)
	positive("physics.epsilon", c.Physics.Epsilon)
	positive("controller.ground_probe_distance", c.Controller.GroundProbeDistance)
	positive("controller.min_move_distance", c.Controller.MinMoveDistance)
	if c.Physics.SolverIterations < 1 {
		err = multierr.Append(err, fmt.Errorf("physics.solver_iterations: %w", errNotPositive))
	}
	if c.Physics.MaxConvexVertices < 4 {
		err = multierr.Append(err, fmt.Errorf("physics.max_convex_vertices: need at least 4, got %d", c.Physics.MaxConvexVertices))
	}
	if c.Controller.ContactOffset < 0 {
		err = multierr.Append(err, fmt.Errorf("controller.contact_offset: must not be negative"))
	}
	if c.GroundPlane.Layer != 0 && c.GroundPlane.Layer&(c.GroundPlane.Layer-1) != 0 {
		err = multierr.Append(err, fmt.Errorf("ground_plane.layer: %#x has more than one bit set", c.GroundPlane.Layer))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	switch strings.ToLower(c.Stress.Profile) {
	case "", "cpu", "mem", "trace":
	default:
		err = multierr.Append(err, fmt.Errorf("stress.profile: unknown mode %q", c.Stress.Profile))
	}
	if c.Stress.Bodies < 0 || c.Stress.Statics < 0 || c.Stress.Controllers < 0 || c.Stress.Joints < 0 || c.Stress.Ticks < 0 {
		err = multierr.Append(err, fmt.Errorf("stress: counts must not be negative"))
	}
	return err
}

// NewLogger builds a zap logger from the logging section. Unknown levels fall
// back to info.
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
