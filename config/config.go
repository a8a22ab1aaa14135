// Package config provides configuration loading and access for the simulation host.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all host and simulation configuration parameters.
type Config struct {
	World      WorldConfig          `yaml:"world"`
	Capacity   CapacityConfig       `yaml:"capacity"`
	Simulation SimulationParameters `yaml:"simulation"`
	Execution  ExecutionParameters  `yaml:"execution"`
	Worker     WorkerConfig         `yaml:"worker"`
	Access     AccessConfig         `yaml:"access"`
	Telemetry  TelemetryConfig      `yaml:"telemetry"`
	Viewer     ViewerConfig         `yaml:"viewer"`
	Server     ServerConfig         `yaml:"server"`
	Scenario   ScenarioConfig       `yaml:"scenario"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// WorldConfig holds the toroidal world dimensions.
type WorldConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CapacityConfig holds the transfer buffer ceilings.
// A request exceeding any of them is an error, never a truncation.
type CapacityConfig struct {
	MaxClusters   int `yaml:"max_clusters"`
	MaxCells      int `yaml:"max_cells"`
	MaxParticles  int `yaml:"max_particles"`
	MaxTokens     int `yaml:"max_tokens"`
	MetadataBytes int `yaml:"metadata_bytes"`
}

// SimulationParameters holds the physics parameters used by the kernel and the converter.
type SimulationParameters struct {
	CellMinDistance     float64 `yaml:"cell_min_distance"`     // Closer cells of different clusters are destroyed
	CellMaxDistance     float64 `yaml:"cell_max_distance"`     // Upper bound for connected cell distance
	CellContactDistance float64 `yaml:"cell_contact_distance"` // Cells closer than this interact
	CellMaxForce        float64 `yaml:"cell_max_force"`        // Centripetal acceleration that tears a cell off
	CellMinEnergy       float64 `yaml:"cell_min_energy"`       // Cells below this energy decay
	CellDefaultEnergy   float64 `yaml:"cell_default_energy"`   // Energy of cells added without one
	CellFusionVelocity  float64 `yaml:"cell_fusion_velocity"`  // Closing speed above which clusters fuse
	CellMaxConnections  int     `yaml:"cell_max_connections"`  // Default for cells added without one
	ActionRadius        float64 `yaml:"action_radius"`         // Reach of a user drag action
	ActionStrength      float64 `yaml:"action_strength"`       // Velocity per unit of drag
}

// ExecutionParameters holds parameters of the simulation loop itself.
type ExecutionParameters struct {
	StepsPerIteration int  `yaml:"steps_per_iteration"`
	ImageGlow         bool `yaml:"image_glow"`
}

// WorkerConfig holds job worker settings.
type WorkerConfig struct {
	TimestepsPerSecond int `yaml:"timesteps_per_second"`
	ParallelThreshold  int `yaml:"parallel_threshold"`
}

// AccessConfig holds access facade settings.
type AccessConfig struct {
	ConservativeRegion bool `yaml:"conservative_region"` // Always update the whole world
	EventBuffer        int  `yaml:"event_buffer"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow    int     `yaml:"perf_window"`
	StatsInterval float64 `yaml:"stats_interval"` // Seconds between monitor requests
}

// ViewerConfig holds display settings for graphical mode.
type ViewerConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// ServerConfig holds the stats streaming server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Empty disables the server
}

// ScenarioConfig holds the initial population parameters.
type ScenarioConfig struct {
	Clusters      int     `yaml:"clusters"`
	Particles     int     `yaml:"particles"`
	ClusterWidth  int     `yaml:"cluster_width"`
	ClusterHeight int     `yaml:"cluster_height"`
	MaxSpeed      float64 `yaml:"max_speed"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	StatsInterval time.Duration
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

func (c *Config) validate() error {
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world size must be positive, got %dx%d", c.World.Width, c.World.Height)
	}
	capacity := c.Capacity
	if capacity.MaxClusters <= 0 || capacity.MaxCells <= 0 || capacity.MaxParticles <= 0 ||
		capacity.MaxTokens < 0 || capacity.MetadataBytes < 0 {
		return fmt.Errorf("invalid capacity %+v", capacity)
	}
	if c.Simulation.CellMinDistance >= c.Simulation.CellContactDistance {
		return fmt.Errorf("cell_min_distance (%v) must be below cell_contact_distance (%v)",
			c.Simulation.CellMinDistance, c.Simulation.CellContactDistance)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	if c.Execution.StepsPerIteration < 1 {
		c.Execution.StepsPerIteration = 1
	}
	if c.Access.EventBuffer < 1 {
		c.Access.EventBuffer = 1
	}
	c.Derived.StatsInterval = time.Duration(c.Telemetry.StatsInterval * float64(time.Second))
	if c.Derived.StatsInterval <= 0 {
		c.Derived.StatsInterval = time.Second
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
