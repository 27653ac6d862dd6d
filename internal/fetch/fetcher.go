// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package fetch retrieves release bundles from the distributor. It writes
// only to the spool directory and never touches the live installation, so a
// fetch failure of any kind leaves the system exactly as it found it.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/kestrelworks/kestrelup/internal/brand"
	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

const (
	// DefaultAttempts is the maximum number of transfer attempts.
	DefaultAttempts = 3
	// DefaultDelay is the fixed delay between attempts.
	DefaultDelay = 5 * time.Second
	// DefaultAttemptTimeout bounds a single transfer.
	DefaultAttemptTimeout = 15 * time.Minute
)

// Artifact is a downloaded, not-yet-installed release bundle.
type Artifact struct {
	Version string
	URL     string
	Path    string
	Size    int64
	// Synthetic marks a dry-run artifact that has no backing file.
	Synthetic bool
}

// Config controls fetcher behavior. Zero-value durations and counts fall back
// to the package defaults.
type Config struct {
	BaseURL        string
	SpoolDir       string
	Attempts       int
	Delay          time.Duration
	AttemptTimeout time.Duration
	// MinSize overrides the bundle size threshold; zero means MinBundleSize.
	MinSize int64
	DryRun  bool
}

// Fetcher downloads and integrity-checks release bundles.
type Fetcher struct {
	cfg    Config
	client *http.Client
	clock  clock.Clock
	logger *logging.Logger
}

// New creates a Fetcher.
func New(cfg Config, clk clock.Clock, logger *logging.Logger) *Fetcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.MinSize <= 0 {
		cfg.MinSize = MinBundleSize
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Fetcher{
		cfg:    cfg,
		client: &http.Client{},
		clock:  clk,
		logger: logger,
	}
}

// Locator returns the deterministic download URL for a version token,
// following the distributor's fixed naming convention.
func (f *Fetcher) Locator(version string) string {
	return f.cfg.BaseURL + "/" + brand.BundleName(version)
}

// Fetch retrieves the bundle for version into the spool directory, retrying
// transport failures up to the attempt limit. The returned artifact has
// passed integrity verification. Partial output of a failed attempt never
// survives into the next one.
func (f *Fetcher) Fetch(ctx context.Context, version string) (*Artifact, error) {
	url := f.Locator(version)
	dest := filepath.Join(f.cfg.SpoolDir, brand.BundleName(version)+".tar.gz")

	if f.cfg.DryRun {
		f.logger.Info("Dry-run: would fetch release bundle", "url", url, "dest", dest)
		return &Artifact{Version: version, URL: url, Path: dest, Synthetic: true}, nil
	}

	if err := os.MkdirAll(f.cfg.SpoolDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.KindFetch, "cannot create spool directory")
	}

	var size int64
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			n, err := f.download(ctx, url, dest)
			if err != nil {
				// No residue of a failed attempt.
				os.Remove(dest)
				return err
			}
			size = n
			return nil
		},
		NotifyFunc: func(err error, attempt int) {
			f.logger.Warn("Transfer attempt failed", "url", url, "attempt", attempt, "error", err)
		},
		Attempts: f.cfg.Attempts,
		Delay:    f.cfg.Delay,
		Clock:    f.clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		return nil, errors.Wrapf(retry.LastError(err), errors.KindFetch,
			"transfer failed after %d attempts", f.cfg.Attempts)
	}

	artifact := &Artifact{Version: version, URL: url, Path: dest, Size: size}

	// Verification is the last check before success; it is not itself
	// retried. A corrupt download is deleted and reported as a fetch failure.
	if err := verifyWithMin(artifact, f.cfg.MinSize); err != nil {
		os.Remove(dest)
		return nil, err
	}

	f.logger.Info("Fetched release bundle", "url", url, "dest", dest, "bytes", size)
	return artifact, nil
}

func (f *Fetcher) download(ctx context.Context, url, dest string) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("empty response body")
	}
	return n, nil
}
