package config

import (
	"fmt"
	"time"
)

// LimitsConfig bounds the child processes a run spawns.
type LimitsConfig struct {
	CPUTime          string `yaml:"cpu_time"`          // OS-enforced CPU cap of the solver
	MemoryMB         int    `yaml:"memory_mb"`         // address-space cap, 0 = none
	WallClock        string `yaml:"wall_clock"`        // divided by solver threads
	GeneratorTimeout string `yaml:"generator_timeout"` // per generator call
	MaxOutputBytes   int64  `yaml:"max_output_bytes"`  // captured solver output
}

// DefaultLimits returns the limits the harness has always run with.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		CPUTime:          "300s",
		WallClock:        "40s",
		GeneratorTimeout: "60s",
		MaxOutputBytes:   64 * 1024 * 1024,
	}
}

// Validate checks that the limits parse and are in range.
func (l LimitsConfig) Validate() error {
	for name, s := range map[string]string{
		"cpu_time":          l.CPUTime,
		"wall_clock":        l.WallClock,
		"generator_timeout": l.GeneratorTimeout,
	} {
		if s == "" {
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("limits.%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("limits.%s must not be negative", name)
		}
	}
	if l.MemoryMB < 0 {
		return fmt.Errorf("limits.memory_mb must be >= 0")
	}
	if l.MaxOutputBytes < 0 {
		return fmt.Errorf("limits.max_output_bytes must be >= 0")
	}
	return nil
}

// GetCPUTime returns the solver CPU cap.
func (l LimitsConfig) GetCPUTime() time.Duration {
	return parseDuration(l.CPUTime, 300*time.Second)
}

// GetWallClock returns the time-limited run budget.
func (l LimitsConfig) GetWallClock() time.Duration {
	return parseDuration(l.WallClock, 40*time.Second)
}

// GetGeneratorTimeout returns the generator call timeout.
func (l LimitsConfig) GetGeneratorTimeout() time.Duration {
	return parseDuration(l.GeneratorTimeout, 60*time.Second)
}

// MemoryBytes returns the memory cap in bytes.
func (l LimitsConfig) MemoryBytes() int64 {
	return int64(l.MemoryMB) * 1024 * 1024
}
