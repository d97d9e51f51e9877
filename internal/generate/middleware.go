package generate

import (
	"context"
	"fmt"
	"time"

	"aiunit/internal/assemble"
	"aiunit/internal/logging"

	"golang.org/x/time/rate"
)

// RateLimit paces calls to at most rpm per minute with no burst. A
// non-positive rpm disables it.
func RateLimit(rpm float64) Middleware {
	return func(next Generator) Generator {
		if rpm <= 0 {
			return next
		}
		limit := rate.Limit(rpm / 60)
		return &rateLimited{next: next, limiter: rate.NewLimiter(limit, 1)}
	}
}

type rateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

func (g *rateLimited) Generate(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	if waited := time.Since(start); waited > 10*time.Millisecond {
		logging.APIDebug("Rate limit: waited %v before %s", waited, req.SourcePath)
	}
	return g.next.Generate(ctx, req)
}

// Timeout bounds each call. A non-positive d disables it.
func Timeout(d time.Duration) Middleware {
	return func(next Generator) Generator {
		if d <= 0 {
			return next
		}
		return Func(func(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Generate(ctx, req)
		})
	}
}

// RequireOutput turns blank results into ErrEmptyResponse so every
// backend, including injected ones, obeys the same contract.
func RequireOutput() Middleware {
	return func(next Generator) Generator {
		return Func(func(ctx context.Context, req *assemble.UpdateRequest) (string, error) {
			out, err := next.Generate(ctx, req)
			if err != nil {
				return "", err
			}
			if ExtractCode(out) == "" {
				return "", ErrEmptyResponse
			}
			return out, nil
		})
	}
}
