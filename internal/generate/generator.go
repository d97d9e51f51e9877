// Package generate talks to the external code-generation service that
// rewrites a test file so it covers the missing lines.
package generate

import (
	"context"
	"errors"
	"time"

	"aiunit/internal/assemble"
)

var (
	// ErrMissingAPIKey is returned when the selected backend has no key.
	ErrMissingAPIKey = errors.New("generation service API key not configured")

	// ErrEmptyResponse is returned when the service answers with no code.
	ErrEmptyResponse = errors.New("generation service returned an empty response")

	// ErrUnknownProvider is returned for an unsupported backend name.
	ErrUnknownProvider = errors.New("unknown generation provider")
)

// Generator produces the full replacement text of a test file.
type Generator interface {
	Generate(ctx context.Context, req *assemble.UpdateRequest) (string, error)
}

// Func adapts a plain function to Generator.
type Func func(ctx context.Context, req *assemble.UpdateRequest) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
	return f(ctx, req)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Options selects and configures a backend. It is filled from config by
// the caller; nothing here reads the environment.
type Options struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int

	// Timeout bounds each call; zero means no per-call timeout.
	Timeout time.Duration
	// RequestsPerMinute paces calls; zero means unlimited.
	RequestsPerMinute float64
}

// Middleware decorates a Generator with a cross-cutting concern.
type Middleware func(Generator) Generator

// Wrap applies middlewares left to right: Wrap(g, A, B) is A(B(g)).
func Wrap(inner Generator, mws ...Middleware) Generator {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}
