// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

// Package gateway is the HTTP client for the location backend. It owns the
// retry policy: bounded attempts with exponential backoff and positive
// jitter, a hard per-attempt deadline, and a retryability classification
// that never repeats permanent client errors.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
	"github.com/mapic/locsync/internal/metrics"
	"github.com/mapic/locsync/internal/models"
)

// jitterFraction is the maximum extra delay added on top of the computed
// backoff, as a fraction of that backoff. Jitter is always additive so the
// minimum spacing between attempts is preserved.
const jitterFraction = 0.3

// API is the remote surface the sync core depends on. The concrete Client
// satisfies it, as does the circuit-breaker wrapper.
type API interface {
	PushLocation(ctx context.Context, sample *models.LocationSample) error
	FetchPeerLocations(ctx context.Context) ([]models.LocationSample, error)
}

// Client talks to the location backend over HTTP with bearer auth.
type Client struct {
	cfg        config.APIConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// NewClient creates a backend client. The http.Client carries no timeout of
// its own; every attempt gets a context deadline instead so cancellation
// propagates.
func NewClient(cfg config.APIConfig) *Client {
	limit := rate.Inf
	if cfg.PushRateLimit > 0 {
		limit = rate.Limit(cfg.PushRateLimit)
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// PushLocation uploads one sample. The sample is sent verbatim; the backend
// is the source of truth for peer-visible state only after this succeeds.
func (c *Client) PushLocation(ctx context.Context, sample *models.LocationSample) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push rate limiter: %w", err)
	}
	body, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	_, err = c.doWithRetry(ctx, "push", func(attemptCtx context.Context) (json.RawMessage, error) {
		return c.roundTrip(attemptCtx, http.MethodPost, "/locations", body)
	})
	return err
}

// FetchPeerLocations retrieves the current peer snapshot.
func (c *Client) FetchPeerLocations(ctx context.Context) ([]models.LocationSample, error) {
	data, err := c.doWithRetry(ctx, "fetch", func(attemptCtx context.Context) (json.RawMessage, error) {
		return c.roundTrip(attemptCtx, http.MethodGet, "/locations", nil)
	})
	if err != nil {
		return nil, err
	}
	var samples []models.LocationSample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, &ParseError{Err: err}
	}
	return samples, nil
}

// doWithRetry runs fn up to 1+MaxRetries times. Between attempts it sleeps
// min(BaseDelay*2^attempt, MaxDelay) plus up to 30% additive jitter, and it
// stops early on permanent errors or caller cancellation.
func (c *Client) doWithRetry(ctx context.Context, operation string, fn func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	start := time.Now()
	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			logging.Debug().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("gateway: retrying after backoff")
			metrics.GatewayRetries.Inc()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		data, err := fn(attemptCtx)
		cancel()
		if err == nil {
			metrics.GatewayRequests.WithLabelValues(operation, "success").Inc()
			metrics.GatewayLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
			return data, nil
		}
		lastErr = err
		if !Retryable(err) {
			metrics.GatewayRequests.WithLabelValues(operation, "permanent_failure").Inc()
			return nil, err
		}
	}

	metrics.GatewayRequests.WithLabelValues(operation, "exhausted").Inc()
	return nil, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

// backoff returns the delay before retry number retry (zero-based).
func (c *Client) backoff(retry int) time.Duration {
	delay := time.Duration(float64(c.cfg.BaseDelay) * math.Pow(2, float64(retry)))
	if delay > c.cfg.MaxDelay {
		delay = c.cfg.MaxDelay
	}
	jitter := time.Duration(rand.Float64() * jitterFraction * float64(delay))
	return delay + jitter
}

// roundTrip performs one HTTP attempt and decodes the response envelope.
func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			httpErr.Message = env.Message
		}
		return nil, httpErr
	}

	// A bare 2xx with no body is a valid push acknowledgement.
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Err: err}
	}
	if !env.Success {
		return nil, &HTTPError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}
