package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/logging"
	"aiunit/internal/resolve"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultFile is the config file looked up in the workspace.
	DefaultFile = ".aiunit.yaml"

	// DefaultCoverageFile is used when no layer names an artifact.
	DefaultCoverageFile = ".coverage"
)

// Config holds all aiunit configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	LLM      LLMConfig      `yaml:"llm"`
	Resolver ResolverConfig `yaml:"resolver"`
	Context  ContextConfig  `yaml:"context"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PathsConfig locates the project inputs. Empty values fall back to
// pyproject.toml when Auto is set.
type PathsConfig struct {
	Folders      []string `yaml:"folders" validate:"omitempty,dive,required"`
	TestsFolder  string   `yaml:"tests_folder"`
	CoverageFile string   `yaml:"coverage_file"`
	Auto         bool     `yaml:"auto"`
}

// ResolverConfig configures test file lookup.
type ResolverConfig struct {
	Conventions []string `yaml:"conventions" validate:"omitempty,dive,required"`
	SkipDirs    []string `yaml:"skip_dirs"`
}

// ContextConfig bounds what goes into a generation request.
type ContextConfig struct {
	StyleReference bool `yaml:"style_reference"`
	MaxStyleFiles  int  `yaml:"max_style_files" validate:"gte=0"`
	MaxStyleBytes  int  `yaml:"max_style_bytes" validate:"gte=0"`
	CacheSize      int  `yaml:"cache_size" validate:"gte=0"`
}

// SyncConfig controls the run itself.
type SyncConfig struct {
	DryRun          bool   `yaml:"dry_run"`
	CreateMissing   bool   `yaml:"create_missing"`
	StrictAmbiguity bool   `yaml:"strict_ambiguity"`
	FailOnError     bool   `yaml:"fail_on_error"`
	MetricsFile     string `yaml:"metrics_file"`
	WatchDebounce   string `yaml:"watch_debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Temperature: 0.2,
		},
		Resolver: ResolverConfig{
			Conventions: append([]string(nil), resolve.DefaultConventions...),
			SkipDirs:    append([]string(nil), resolve.DefaultSkipDirs...),
		},
		Context: ContextConfig{
			StyleReference: true,
			MaxStyleFiles:  assemble.DefaultMaxStyleFiles,
			MaxStyleBytes:  assemble.DefaultMaxStyleBytes,
			CacheSize:      assemble.DefaultCacheSize,
		},
		Sync: SyncConfig{
			WatchDebounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to it is loaded before env overrides are
// applied; variables already set in the environment win.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.ConfigDebug("no config file at %s, using defaults", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	logging.ConfigDebug("loaded config from %s (provider=%s)", path, cfg.LLM.Provider)
	return cfg, nil
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logging.Get(logging.CategoryConfig).Warn("ignoring unreadable %s: %v", path, err)
	}
}

// Save writes the configuration to a YAML file. The API key is never
// written.
func (c *Config) Save(path string) error {
	out := *c
	out.LLM.APIKey = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AIUNIT_PROVIDER"); v != "" {
		c.LLM.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("AIUNIT_MODEL"); v != "" {
		c.LLM.Model = v
	}

	keyVar, urlVar := "OPENAI_API_KEY", "OPENAI_BASE_URL"
	if c.LLM.Provider == "gemini" {
		keyVar, urlVar = "GEMINI_API_KEY", "GEMINI_BASE_URL"
	}
	if v := os.Getenv(keyVar); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(urlVar); v != "" {
		c.LLM.BaseURL = v
	}

	if v := os.Getenv("AIUNIT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors. A missing API key is not
// an error here; it only matters once a run reaches generation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, conv := range c.Resolver.Conventions {
		if !strings.Contains(conv, "{name}") {
			return fmt.Errorf("invalid config: %w: %q", resolve.ErrInvalidConvention, conv)
		}
	}
	if _, err := c.GetLLMTimeout(); err != nil {
		return err
	}
	if _, err := c.GetWatchDebounce(); err != nil {
		return err
	}
	return nil
}

// GetWatchDebounce returns the watch mode debounce window.
func (c *Config) GetWatchDebounce() (time.Duration, error) {
	if c.Sync.WatchDebounce == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Sync.WatchDebounce)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid config: sync.watch_debounce %q", c.Sync.WatchDebounce)
	}
	return d, nil
}

// ResolverOptions maps the resolver section.
func (c *Config) ResolverOptions() resolve.Options {
	return resolve.Options{
		Conventions: c.Resolver.Conventions,
		SkipDirs:    c.Resolver.SkipDirs,
	}
}

// AssemblerOptions maps the context section for a tests root.
func (c *Config) AssemblerOptions(testsRoot string) assemble.Options {
	return assemble.Options{
		TestsRoot:      testsRoot,
		StyleReference: c.Context.StyleReference,
		MaxStyleFiles:  c.Context.MaxStyleFiles,
		MaxStyleBytes:  c.Context.MaxStyleBytes,
		CacheSize:      c.Context.CacheSize,
		SkipDirs:       c.Resolver.SkipDirs,
	}
}
