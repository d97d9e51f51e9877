// Package logging provides config-driven categorized logging for aiunit.
// Every category gets a named zap logger; categories can be switched off
// individually. Until Initialize is called all loggers are no-ops.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, flag and command wiring
	CategoryConfig   Category = "config"   // Config file, env and pyproject resolution
	CategoryCoverage Category = "coverage" // Coverage artifact parsing
	CategoryResolve  Category = "resolve"  // Test file resolution
	CategoryContext  Category = "context"  // Request assembly, style reference scan
	CategoryAPI      Category = "api"      // Generation service calls
	CategorySync     Category = "sync"     // Orchestrator loop and write-back
	CategoryWatch    Category = "watch"    // Coverage artifact watcher
)

// Settings controls how Initialize builds the underlying zap core.
type Settings struct {
	Level      string          // debug, info, warn, error
	Format     string          // console, json
	File       string          // empty means stderr
	Categories map[string]bool // missing categories are enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	base       = zap.NewNop()
	baseMu     sync.RWMutex
	loggers    = make(map[Category]*Logger)
	loggersMu  sync.RWMutex
	categories map[string]bool
	closeFile  func() error
)

// Initialize builds the shared zap logger from cfg.
// Should be called once at startup, before the first Get.
func Initialize(cfg Settings) error {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		parsed, err := zap.ParseAtomicLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("invalid log format %q (valid: console, json)", cfg.Format)
	}

	sink := zapcore.Lock(os.Stderr)
	var closer func() error
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sink = zapcore.AddSync(f)
		closer = f.Close
	}

	SetBase(zap.New(zapcore.NewCore(enc, sink, level)))

	loggersMu.Lock()
	categories = cfg.Categories
	closeFile = closer
	loggersMu.Unlock()
	return nil
}

// SetBase replaces the shared zap logger and drops cached category loggers.
// Tests use it with zaptest/observer.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	base = l
	baseMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Base returns the shared zap logger.
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	loggersMu.RLock()
	defer loggersMu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{
		category: category,
		sugar:    Base().Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// Category returns the category this logger writes to.
func (l *Logger) Category() Category {
	return l.category
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Flush flushes buffered entries and closes the log file, if any.
func Flush() error {
	err := Base().Sync()
	loggersMu.Lock()
	closer := closeFile
	closeFile = nil
	loggersMu.Unlock()
	if closer != nil {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	// Syncing stderr fails on some terminals; that is not worth reporting.
	if err != nil && strings.Contains(err.Error(), "/dev/stderr") {
		return nil
	}
	return err
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) {
	Get(CategoryBoot).Debug(format, args...)
}

// Config logs to the config category
func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

// ConfigDebug logs debug to the config category
func ConfigDebug(format string, args ...interface{}) {
	Get(CategoryConfig).Debug(format, args...)
}

// Coverage logs to the coverage category
func Coverage(format string, args ...interface{}) {
	Get(CategoryCoverage).Info(format, args...)
}

// CoverageDebug logs debug to the coverage category
func CoverageDebug(format string, args ...interface{}) {
	Get(CategoryCoverage).Debug(format, args...)
}

// CoverageWarn logs a warning to the coverage category
func CoverageWarn(format string, args ...interface{}) {
	Get(CategoryCoverage).Warn(format, args...)
}

// Resolve logs to the resolve category
func Resolve(format string, args ...interface{}) {
	Get(CategoryResolve).Info(format, args...)
}

// ResolveDebug logs debug to the resolve category
func ResolveDebug(format string, args ...interface{}) {
	Get(CategoryResolve).Debug(format, args...)
}

// Context logs to the context category
func Context(format string, args ...interface{}) {
	Get(CategoryContext).Info(format, args...)
}

// ContextDebug logs debug to the context category
func ContextDebug(format string, args ...interface{}) {
	Get(CategoryContext).Debug(format, args...)
}

// API logs to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Sync logs to the sync category
func Sync(format string, args ...interface{}) {
	Get(CategorySync).Info(format, args...)
}

// SyncDebug logs debug to the sync category
func SyncDebug(format string, args ...interface{}) {
	Get(CategorySync).Debug(format, args...)
}

// Watch logs to the watch category
func Watch(format string, args ...interface{}) {
	Get(CategoryWatch).Info(format, args...)
}

// WatchDebug logs debug to the watch category
func WatchDebug(format string, args ...interface{}) {
	Get(CategoryWatch).Debug(format, args...)
}
