package config

import "aiunit/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string          `yaml:"format" validate:"omitempty,oneof=console text json"`
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories"` // per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Categories that are not listed are enabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	enabled, exists := c.Categories[category]
	return !exists || enabled
}

// Settings converts the section for logging.Initialize. verbose forces
// debug level.
func (c *LoggingConfig) Settings(verbose bool) logging.Settings {
	level := c.Level
	if verbose {
		level = "debug"
	}
	return logging.Settings{
		Level:      level,
		Format:     c.Format,
		File:       c.File,
		Categories: c.Categories,
	}
}
