package opinion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/auramd-consensus-server/internal/domain"
)

// ResilientSource wraps an opinion source with a circuit breaker and an
// optional shared opinion cache. A tripped breaker fails fast as source
// unavailability, which the orchestrator turns into a fallback opinion; the
// request never waits out a known-dead upstream.
type ResilientSource struct {
	source  domain.OpinionSource
	breaker *gobreaker.CircuitBreaker
	cache   *Cache
	logger  *logrus.Logger
}

// NewResilientSource wraps source with a circuit breaker. cache may be nil.
func NewResilientSource(source domain.OpinionSource, cache *Cache, logger *logrus.Logger) *ResilientSource {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source.Name(),
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"source": name,
				"from":   from.String(),
				"to":     to.String(),
			}).Warn("Opinion source circuit breaker state changed")
		},
	})

	return &ResilientSource{
		source:  source,
		breaker: breaker,
		cache:   cache,
		logger:  logger,
	}
}

// Name returns the wrapped source's identifier.
func (r *ResilientSource) Name() string {
	return r.source.Name()
}

// Produce serves from cache when possible, otherwise calls the wrapped
// source through the circuit breaker and caches a successful result.
func (r *ResilientSource) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	if r.cache != nil {
		if cached, found, err := r.cache.Get(ctx, r.source.Name(), cc); err == nil && found {
			return cached, nil
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.Produce(ctx, cc)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.SourceUnavailableError{
				SourceID: r.source.Name(),
				Err:      fmt.Errorf("circuit breaker open: %w", err),
			}
		}
		return nil, err
	}

	op := result.(*domain.RawOpinion)

	if r.cache != nil {
		if cacheErr := r.cache.Set(ctx, r.source.Name(), cc, op, 0); cacheErr != nil {
			// Cache errors never fail the request
			r.logger.WithError(cacheErr).WithField("source", r.source.Name()).Debug("Failed to cache opinion")
		}
	}

	return op, nil
}

// BreakerState returns the current circuit breaker state.
func (r *ResilientSource) BreakerState() gobreaker.State {
	return r.breaker.State()
}

// BreakerCounts returns the current circuit breaker counters.
func (r *ResilientSource) BreakerCounts() gobreaker.Counts {
	return r.breaker.Counts()
}
