// Package logging provides categorized structured logging for satharness.
// Every category is a named zap logger derived from one root; before
// Initialize is called every logger is a no-op.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config resolution
	CategoryRun     Category = "run"     // Run controller: one instance end to end
	CategoryParse   Category = "parse"   // Solver transcript parsing
	CategoryVerify  Category = "verify"  // Assignment checking
	CategoryReplay  Category = "replay"  // Checkpoint segment replay
	CategoryOracle  Category = "oracle"  // Reference solver cross-checks
	CategoryProof   Category = "proof"   // Proof checker invocations
	CategoryFuzz    Category = "fuzz"    // Fuzz campaign loop, generators
	CategoryRegress Category = "regress" // Regression and stored-solution suites
	CategoryTactile Category = "tactile" // Child process execution
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryBoot, CategoryRun, CategoryParse, CategoryVerify, CategoryReplay,
	CategoryOracle, CategoryProof, CategoryFuzz, CategoryRegress, CategoryTactile,
}

// Options configures the root logger.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	// Disabled categories are replaced by no-op loggers.
	Disabled []Category
}

// Logger is a category-scoped logger with printf-style methods.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	root     = zap.NewNop()
	loggers  = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
)

// Initialize builds the root logger from opts and resets every category.
// Should be called once at startup, after configuration is resolved.
func Initialize(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Sampling = nil
	cfg.OutputPaths = []string{"stderr"}
	switch opts.Format {
	case "", "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	case "json":
		cfg.Encoding = "json"
	default:
		return fmt.Errorf("unknown log format %q", opts.Format)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	Use(l, opts.Disabled...)
	return nil
}

// Use installs l as the root logger. Tests use it with zaptest/observer
// cores; the command layer uses it with the logger built from flags.
func Use(l *zap.Logger, off ...Category) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
	for _, c := range off {
		disabled[c] = true
	}
}

// Root returns the root zap logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered entries (call at shutdown)
func Sync() {
	_ = Root().Sync()
}

// ParseLevel maps a config level name onto a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return !disabled[category]
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	base := root
	if disabled[category] {
		base = zap.NewNop()
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying additional key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Category returns the category the logger writes to.
func (l *Logger) Category() Category { return l.category }

// =============================================================================
// CAMPAIGN SCOPE - every line of one campaign carries its id
// =============================================================================

// WithCampaign creates a campaign-scoped logger for correlating iterations.
func WithCampaign(category Category, campaignID string) *Logger {
	return Get(category).With("campaign", campaignID)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// BootWarn logs a warning to the boot category
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }

// Run logs to the run category
func Run(format string, args ...interface{}) { Get(CategoryRun).Info(format, args...) }

// RunDebug logs debug to the run category
func RunDebug(format string, args ...interface{}) { Get(CategoryRun).Debug(format, args...) }

// RunWarn logs a warning to the run category
func RunWarn(format string, args ...interface{}) { Get(CategoryRun).Warn(format, args...) }

// ParseDebug logs debug to the parse category
func ParseDebug(format string, args ...interface{}) { Get(CategoryParse).Debug(format, args...) }

// ParseWarn logs a warning to the parse category
func ParseWarn(format string, args ...interface{}) { Get(CategoryParse).Warn(format, args...) }

// VerifyDebug logs debug to the verify category
func VerifyDebug(format string, args ...interface{}) { Get(CategoryVerify).Debug(format, args...) }

// VerifyError logs an error to the verify category
func VerifyError(format string, args ...interface{}) { Get(CategoryVerify).Error(format, args...) }

// Replay logs to the replay category
func Replay(format string, args ...interface{}) { Get(CategoryReplay).Info(format, args...) }

// ReplayDebug logs debug to the replay category
func ReplayDebug(format string, args ...interface{}) { Get(CategoryReplay).Debug(format, args...) }

// Oracle logs to the oracle category
func Oracle(format string, args ...interface{}) { Get(CategoryOracle).Info(format, args...) }

// OracleDebug logs debug to the oracle category
func OracleDebug(format string, args ...interface{}) { Get(CategoryOracle).Debug(format, args...) }

// OracleWarn logs a warning to the oracle category
func OracleWarn(format string, args ...interface{}) { Get(CategoryOracle).Warn(format, args...) }

// Proof logs to the proof category
func Proof(format string, args ...interface{}) { Get(CategoryProof).Info(format, args...) }

// ProofDebug logs debug to the proof category
func ProofDebug(format string, args ...interface{}) { Get(CategoryProof).Debug(format, args...) }

// Fuzz logs to the fuzz category
func Fuzz(format string, args ...interface{}) { Get(CategoryFuzz).Info(format, args...) }

// FuzzDebug logs debug to the fuzz category
func FuzzDebug(format string, args ...interface{}) { Get(CategoryFuzz).Debug(format, args...) }

// FuzzWarn logs a warning to the fuzz category
func FuzzWarn(format string, args ...interface{}) { Get(CategoryFuzz).Warn(format, args...) }

// FuzzError logs an error to the fuzz category
func FuzzError(format string, args ...interface{}) { Get(CategoryFuzz).Error(format, args...) }

// Regress logs to the regress category
func Regress(format string, args ...interface{}) { Get(CategoryRegress).Info(format, args...) }

// RegressWarn logs a warning to the regress category
func RegressWarn(format string, args ...interface{}) { Get(CategoryRegress).Warn(format, args...) }

// Tactile logs to the tactile category
func Tactile(format string, args ...interface{}) { Get(CategoryTactile).Info(format, args...) }

// TactileDebug logs debug to the tactile category
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }

// TactileWarn logs a warning to the tactile category
func TactileWarn(format string, args ...interface{}) { Get(CategoryTactile).Warn(format, args...) }

// TactileError logs an error to the tactile category
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
