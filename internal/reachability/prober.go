// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package reachability

import (
	"context"
	"net/http"
	"time"

	"github.com/mapic/locsync/internal/config"
	"github.com/mapic/locsync/internal/logging"
)

// Prober periodically issues a lightweight request against the probe URL and
// feeds the result into the monitor. It implements suture.Service so the
// supervision tree owns its lifecycle.
//
// A probe only reports end-to-end reachability; the link state comes from
// the host platform via Monitor.SetLink.
type Prober struct {
	monitor    ProbeSink
	cfg        config.ReachabilityConfig
	httpClient *http.Client
}

// ProbeSink is the subset of Monitor the prober needs.
type ProbeSink interface {
	SetReachability(r Reachability)
}

// NewProber creates a probe loop feeding monitor.
func NewProber(monitor ProbeSink, cfg config.ReachabilityConfig) *Prober {
	return &Prober{
		monitor: monitor,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout: cfg.ProbeTimeout,
		},
	}
}

// Serve implements suture.Service: probe immediately, then on every tick,
// until the context is canceled.
func (p *Prober) Serve(ctx context.Context) error {
	p.probe(ctx)

	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probe(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *Prober) String() string { return "reachability-prober" }

func (p *Prober) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.cfg.ProbeURL, nil)
	if err != nil {
		logging.Error().Err(err).Str("url", p.cfg.ProbeURL).Msg("reachability: invalid probe URL")
		return
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Debug().Err(err).Msg("reachability: probe failed")
		p.monitor.SetReachability(Unreachable)
		return
	}
	resp.Body.Close()
	// Any response proves the path works, even an error status.
	p.monitor.SetReachability(Reachable)
}
