package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"satharness/internal/fuzz"
	"satharness/internal/oracle"
	"satharness/internal/solverflags"
)

// DefaultConfigFile is the file --config falls back to.
const DefaultConfigFile = "satharness.yaml"

// Config holds all satharness configuration.
type Config struct {
	// Solver under test
	Solver SolverConfig `yaml:"solver"`

	// Independent reference for UNSAT claims
	Reference ReferenceConfig `yaml:"reference"`

	// Proof checker used with --drup
	Proof ProofConfig `yaml:"proof"`

	// Resource limits for child processes
	Limits LimitsConfig `yaml:"limits"`

	// Fuzz campaign
	Fuzz FuzzConfig `yaml:"fuzz"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// SolverConfig configures the solver under test.
type SolverConfig struct {
	Path         string `yaml:"path"`
	ExtraOptions string `yaml:"extra_options"` // split shell-style
	Threads      int    `yaml:"threads"`
	Verbose      bool   `yaml:"verbose"`

	// Flag spellings the harness relies on (debug-lib, quiet, threads...)
	Flags solverflags.Fixed `yaml:"flags"`

	// Space is the configuration space fuzz runs sample from. Nil means the
	// built-in space.
	Space *solverflags.Space `yaml:"space,omitempty"`

	// WorkDir holds per-run debug-lib directories; empty means the system
	// temp directory.
	WorkDir string `yaml:"work_dir"`
}

// ReferenceConfig configures the differential oracle.
type ReferenceConfig struct {
	Backend    string   `yaml:"backend"` // external, gini, gophersat
	Path       string   `yaml:"path"`
	Args       []string `yaml:"args"`
	Budget     string   `yaml:"budget"`
	CheckModel bool     `yaml:"check_model"`
	// CheckUnsat turns UNSAT verification on for check and regress.
	CheckUnsat bool `yaml:"check_unsat"`
}

// ProofConfig configures the proof checker.
type ProofConfig struct {
	Checker string   `yaml:"checker"`
	Args    []string `yaml:"args"`
	Timeout string   `yaml:"timeout"`
}

// FuzzConfig configures fuzz campaigns.
type FuzzConfig struct {
	GeneratorDir        string           `yaml:"generator_dir"`
	WorkDir             string           `yaml:"work_dir"`
	Prefix              string           `yaml:"prefix"`
	MaxCheckpoints      int              `yaml:"max_checkpoints"`
	HighRiskProbability float64          `yaml:"high_risk_probability"`
	Catalog             []fuzz.Generator `yaml:"catalog"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Solver: SolverConfig{
			Path:    "cryptominisat5",
			Threads: 1,
			Flags:   solverflags.DefaultFixed(),
		},

		Reference: ReferenceConfig{
			Backend:    oracle.BackendGini,
			Path:       "lingeling",
			Args:       []string{"-f"},
			Budget:     "40s",
			CheckModel: true,
			CheckUnsat: true,
		},

		Proof: ProofConfig{
			Checker: "drat-trim",
			Timeout: "300s",
		},

		Limits: DefaultLimits(),

		Fuzz: FuzzConfig{
			GeneratorDir:        ".",
			WorkDir:             ".",
			Prefix:              fuzz.DefaultPrefix,
			MaxCheckpoints:      fuzz.DefaultMaxCheckpoints,
			HighRiskProbability: solverflags.DefaultHighRiskProbability,
			Catalog:             DefaultCatalog(),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultCatalog is the in-process generator catalog. It lets a campaign
// run with no generator binaries installed.
func DefaultCatalog() []fuzz.Generator {
	return []fuzz.Generator{
		{Name: "rand3cnf", Arity: fuzz.ArityBuiltin, Builtin: fuzz.BuiltinRand3Cnf, N: 60, M: 255},
		{Name: "hardrand3cnf", Arity: fuzz.ArityBuiltin, Builtin: fuzz.BuiltinHardRand3Cnf, N: 50},
		{Name: "php", Arity: fuzz.ArityBuiltin, Builtin: fuzz.BuiltinPhp, N: 6, M: 5},
		{Name: "bincycle", Arity: fuzz.ArityBuiltin, Builtin: fuzz.BuiltinBinCycle, N: 40},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("SATHARNESS_SOLVER"); path != "" {
		c.Solver.Path = path
	}
	// A reference binary from the environment implies the external backend.
	if path := os.Getenv("SATHARNESS_REFERENCE"); path != "" {
		c.Reference.Path = path
		c.Reference.Backend = oracle.BackendExternal
	}
	if path := os.Getenv("DRAT_TRIM_PATH"); path != "" {
		c.Proof.Checker = path
	}
	if dir := os.Getenv("SATHARNESS_GENERATOR_DIR"); dir != "" {
		c.Fuzz.GeneratorDir = dir
	}
}

// GetReferenceBudget returns the oracle wall-clock budget as a duration.
func (c *Config) GetReferenceBudget() time.Duration {
	return parseDuration(c.Reference.Budget, 40*time.Second)
}

// GetProofTimeout returns the proof checker timeout as a duration.
func (c *Config) GetProofTimeout() time.Duration {
	return parseDuration(c.Proof.Timeout, 300*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ValidBackends lists the supported reference backends.
var ValidBackends = []string{oracle.BackendExternal, oracle.BackendGini, oracle.BackendGophersat}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Solver.Path == "" {
		return fmt.Errorf("solver path not configured (set solver.path, --exec or SATHARNESS_SOLVER)")
	}
	if c.Solver.Threads < 1 {
		return fmt.Errorf("solver threads must be >= 1, got %d", c.Solver.Threads)
	}

	validBackend := false
	for _, b := range ValidBackends {
		if c.Reference.Backend == b {
			validBackend = true
			break
		}
	}
	if !validBackend {
		return fmt.Errorf("invalid reference backend: %s (valid: %v)", c.Reference.Backend, ValidBackends)
	}
	if c.Reference.Backend == oracle.BackendExternal && c.Reference.Path == "" {
		return fmt.Errorf("external reference backend needs reference.path")
	}

	if err := c.Limits.Validate(); err != nil {
		return err
	}

	if c.Fuzz.MaxCheckpoints < 0 {
		return fmt.Errorf("fuzz.max_checkpoints must be >= 0")
	}
	if c.Fuzz.HighRiskProbability < 0 || c.Fuzz.HighRiskProbability > 1 {
		return fmt.Errorf("fuzz.high_risk_probability must be within [0, 1]")
	}
	for _, g := range c.Fuzz.Catalog {
		if err := g.Validate(); err != nil {
			return err
		}
	}
	if c.Solver.Space != nil {
		if err := c.Solver.Space.Validate(); err != nil {
			return fmt.Errorf("solver.space: %w", err)
		}
	}
	return nil
}

// SolverSpace returns the configured space with the fuzz high-risk
// probability applied.
func (c *Config) SolverSpace() solverflags.Space {
	space := solverflags.DefaultSpace()
	if c.Solver.Space != nil {
		space = *c.Solver.Space
	}
	space.HighRiskProbability = c.Fuzz.HighRiskProbability
	return space
}
