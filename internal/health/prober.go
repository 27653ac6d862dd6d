// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health verifies post-start readiness of the managed service by
// polling its liveness endpoint. A probe never mutates anything; exhausting
// the poll budget is the only way it fails.
package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	probing "github.com/prometheus-community/pro-bing"

	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

const (
	// DefaultRetries is the number of probe attempts before giving up.
	DefaultRetries = 30
	// DefaultInterval is the fixed delay between probe attempts.
	DefaultInterval = 10 * time.Second
	// probeTimeout bounds one liveness request.
	probeTimeout = 5 * time.Second
)

// Prober polls a liveness endpoint.
type Prober struct {
	client *http.Client
	clock  clock.Clock
	logger *logging.Logger
}

// New creates a Prober.
func New(clk clock.Clock, logger *logging.Logger) *Prober {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Prober{
		client: &http.Client{Timeout: probeTimeout},
		clock:  clk,
		logger: logger,
	}
}

// Probe performs a single bounded-timeout request against the liveness
// endpoint. Any non-success response or transport error counts as unhealthy
// for that attempt.
func (p *Prober) Probe(ctx context.Context, rawURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.logger.Warn("Invalid health URL", "url", rawURL, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Health probe failed", "url", rawURL, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitHealthy polls up to retries times with the fixed interval between
// attempts, short-circuiting on the first success. Exhausting the budget is
// a health-check failure.
func (p *Prober) WaitHealthy(ctx context.Context, rawURL string, retries int, interval time.Duration) error {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if p.Probe(ctx, rawURL) {
				return nil
			}
			return fmt.Errorf("endpoint not healthy")
		},
		NotifyFunc: func(err error, attempt int) {
			p.logger.Warn("Health check attempt failed", "url", rawURL, "attempt", attempt, "of", retries)
		},
		Attempts: retries,
		Delay:    interval,
		Clock:    p.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return errors.Errorf(errors.KindHealthCheck,
			"service did not become healthy after %d probes of %s", retries, rawURL)
	}
	return nil
}

// Reachable performs an advisory ICMP reachability check against the health
// endpoint's host. It is logged only; an unreachable host never fails the
// run, since many deployments filter ICMP.
func (p *Prober) Reachable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return false
	}

	pinger, err := probing.NewPinger(u.Hostname())
	if err != nil {
		p.logger.Debug("Reachability check unavailable", "host", u.Hostname(), "error", err)
		return false
	}
	pinger.Count = 1
	pinger.Timeout = 1 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
