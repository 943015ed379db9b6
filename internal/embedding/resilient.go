package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/synapse/pkg/utils"
)

// ErrProviderUnavailable is returned while the circuit breaker is open.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// ResilientConfig controls rate limiting of provider calls. RequestsPerMinute <= 0 disables the limiter.
type ResilientConfig struct {
	RequestsPerMinute int
}

// ResilientEmbedder wraps a provider with a token-bucket limiter and a circuit breaker so
// that a failing endpoint is not hammered once per chunk.
type ResilientEmbedder struct {
	inner   Embedder
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewResilientEmbedder wraps inner. logger may be nil.
func NewResilientEmbedder(inner Embedder, cfg ResilientConfig, logger *zap.Logger) *ResilientEmbedder {
	logger = utils.OrNop(logger)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding:" + inner.ModelName(),
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerMinute > 0 {
		burst := cfg.RequestsPerMinute / 10
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst)
	}

	return &ResilientEmbedder{inner: inner, breaker: breaker, limiter: limiter, logger: logger}
}

// Embed waits for the limiter, then calls the provider through the breaker.
func (r *ResilientEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.Embed(ctx, text)
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	return result.([]float32), nil
}

// EmbedBatch counts as a single request against both the limiter and the breaker.
func (r *ResilientEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, r.wrap(err)
	}
	return result.([][]float32), nil
}

func (r *ResilientEmbedder) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

// State reports the breaker state.
func (r *ResilientEmbedder) State() gobreaker.State {
	return r.breaker.State()
}

func (r *ResilientEmbedder) Dimensions() int   { return r.inner.Dimensions() }
func (r *ResilientEmbedder) ModelName() string { return r.inner.ModelName() }
func (r *ResilientEmbedder) Close() error      { return r.inner.Close() }
