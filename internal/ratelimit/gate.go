package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"qazna.org/authcore/internal/obs"
)

// Decision is the fail-open outcome of a Gate check. Err carries the backend
// failure when the request was let through without being counted.
type Decision struct {
	Result
	Err error
}

// Gate applies one limit and window to a Limiter and turns backend failures
// into allowed decisions.
type Gate struct {
	limiter Limiter
	limit   int
	window  time.Duration
	logger  *slog.Logger
	metrics *obs.Metrics
	sample  *rate.Sometimes
}

// NewGate wraps limiter. logger and metrics may be nil.
func NewGate(limiter Limiter, limit int, window time.Duration, logger *slog.Logger, metrics *obs.Metrics) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{
		limiter: limiter,
		limit:   limit,
		window:  window,
		logger:  logger,
		metrics: metrics,
		sample:  &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
}

// Limit returns the configured request budget per window.
func (g *Gate) Limit() int { return g.limit }

// Check counts one hit for key.
func (g *Gate) Check(ctx context.Context, key string) Decision {
	res, err := g.limiter.Hit(ctx, key, g.limit, g.window)
	if err != nil {
		g.metrics.RateLimitDecision("error")
		g.metrics.BackendFailure("ratelimit")
		g.sample.Do(func() {
			g.logger.WarnContext(ctx, "rate limiter unavailable, allowing request",
				slog.String("key", key), slog.Any("error", err))
		})
		start, seconds := Window(time.Now(), g.window)
		return Decision{
			Result: Result{Allowed: true, Limit: g.limit, Remaining: g.limit, Reset: start + seconds},
			Err:    err,
		}
	}
	if res.Allowed {
		g.metrics.RateLimitDecision("allowed")
	} else {
		g.metrics.RateLimitDecision("rejected")
	}
	return Decision{Result: res}
}
