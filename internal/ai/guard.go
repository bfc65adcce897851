package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type GuardConfig struct {
	// RequestsPerMinute of zero disables client side throttling.
	RequestsPerMinute int
	Burst             int
	// The breaker opens once MinRequests calls in an interval fail at
	// FailureRatio or more, and stays open for OpenTimeout.
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
}

type guardedProvider struct {
	next    IAIProvider
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// WithGuard wraps a chat provider with a circuit breaker and an optional
// rate limiter shared by all models of that provider.
func WithGuard(p IAIProvider, cfg GuardConfig) IAIProvider {
	if p == nil {
		return nil
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 3
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	g := &guardedProvider{next: p}
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		// Throttling is reported to the caller for fallback; it says nothing
		// about the health of the backend.
		IsSuccessful: func(err error) bool {
			return err == nil || IsRateLimit(err) || errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logutil.GetLogger(context.Background()).Warn("llm circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}
	return g
}

func (g *guardedProvider) Name() string {
	return g.next.Name()
}

func (g *guardedProvider) Chat(ctx context.Context, model string, req ChatRequest) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrRateLimited, g.next.Name(), err)
		}
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return g.next.Chat(ctx, model, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}
