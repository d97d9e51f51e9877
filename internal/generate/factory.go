package generate

import (
	"context"
	"fmt"
	"strings"
)

// New builds the configured backend wrapped with pacing and timeout.
func New(ctx context.Context, opts Options) (Generator, error) {
	var (
		backend Generator
		err     error
	)
	switch strings.ToLower(opts.Provider) {
	case "", ProviderOpenAI:
		backend, err = NewOpenAIGenerator(opts)
	case ProviderGemini:
		backend, err = NewGeminiGenerator(ctx, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(backend,
		RateLimit(opts.RequestsPerMinute),
		Timeout(opts.Timeout),
		RequireOutput(),
	), nil
}
