package config

import "satharness/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`      // debug, info, warn, error
	Format     string          `yaml:"format"`     // console, json
	Categories map[string]bool `yaml:"categories"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Options converts the section into logger options. verbose raises the
// level to debug.
func (c *LoggingConfig) Options(verbose bool) logging.Options {
	opts := logging.Options{Level: c.Level, Format: c.Format}
	if verbose {
		opts.Level = "debug"
	}
	for _, cat := range logging.Categories {
		if !c.IsCategoryEnabled(string(cat)) {
			opts.Disabled = append(opts.Disabled, cat)
		}
	}
	return opts
}
