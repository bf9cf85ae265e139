// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package gateway

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/metrics"
	"github.com/mapic/locsync/internal/models"
)

// BreakerClient wraps an API with a circuit breaker so a dead backend is
// failed fast instead of burning a full retry cycle per call. A rejected
// call surfaces gobreaker.ErrOpenState, which is not retryable.
type BreakerClient struct {
	api  API
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// NewBreakerClient wraps api. The breaker opens after a 60% failure rate
// over at least 5 requests, and probes recovery after 30 seconds.
func NewBreakerClient(api API) *BreakerClient {
	name := "location-backend"
	metrics.BreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("gateway: breaker state transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateFloat(to))
		},
	})

	return &BreakerClient{api: api, cb: cb, name: name}
}

// PushLocation forwards through the breaker.
func (b *BreakerClient) PushLocation(ctx context.Context, sample *models.LocationSample) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.api.PushLocation(ctx, sample)
	})
	return err
}

// FetchPeerLocations forwards through the breaker.
func (b *BreakerClient) FetchPeerLocations(ctx context.Context) ([]models.LocationSample, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return b.api.FetchPeerLocations(ctx)
	})
	if err != nil {
		return nil, err
	}
	samples, ok := result.([]models.LocationSample)
	if !ok {
		return nil, fmt.Errorf("breaker: unexpected result type %T", result)
	}
	return samples, nil
}

func stateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
