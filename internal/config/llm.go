package config

import (
	"fmt"
	"time"

	"aiunit/internal/generate"
)

// LLMConfig configures the generation service.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"omitempty,oneof=openai gemini"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`

	// Timeout is a Go duration applied per call; empty means none.
	Timeout           string  `yaml:"timeout"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" validate:"gte=0"`
}

// GetLLMTimeout parses the per-call timeout. Empty yields zero.
func (c *Config) GetLLMTimeout() (time.Duration, error) {
	if c.LLM.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid config: llm.timeout %q", c.LLM.Timeout)
	}
	return d, nil
}

// GeneratorOptions maps the llm section onto generator options.
func (c *Config) GeneratorOptions() (generate.Options, error) {
	timeout, err := c.GetLLMTimeout()
	if err != nil {
		return generate.Options{}, err
	}
	return generate.Options{
		Provider:          c.LLM.Provider,
		Model:             c.LLM.Model,
		APIKey:            c.LLM.APIKey,
		BaseURL:           c.LLM.BaseURL,
		Temperature:       c.LLM.Temperature,
		MaxTokens:         c.LLM.MaxTokens,
		Timeout:           timeout,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
	}, nil
}
