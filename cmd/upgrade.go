// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"github.com/juju/mutex/v2"

	"github.com/kestrelworks/kestrelup/internal/archive"
	"github.com/kestrelworks/kestrelup/internal/audit"
	"github.com/kestrelworks/kestrelup/internal/brand"
	"github.com/kestrelworks/kestrelup/internal/config"
	"github.com/kestrelworks/kestrelup/internal/fetch"
	"github.com/kestrelworks/kestrelup/internal/health"
	"github.com/kestrelworks/kestrelup/internal/logging"
	"github.com/kestrelworks/kestrelup/internal/service"
	"github.com/kestrelworks/kestrelup/internal/upgrade"
)

// UpgradeOptions carries the parsed invocation surface.
type UpgradeOptions struct {
	Version         string
	SettingsFile    string
	DryRun          bool
	KeepArtifact    bool
	SkipHealthCheck bool
	Verbose         bool
}

// RunUpgrade executes one upgrade of the managed service and returns the
// process exit code: zero only on full success.
func RunUpgrade(opts UpgradeOptions) int {
	settings, err := config.Load(opts.SettingsFile)
	if err != nil {
		Printer.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	settings.Version = opts.Version
	if opts.DryRun {
		settings.DryRun = true
	}
	if opts.KeepArtifact {
		settings.KeepArtifact = true
	}
	if opts.SkipHealthCheck {
		settings.SkipHealthCheck = true
	}

	if err := settings.Validate(); err != nil {
		Printer.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	level := "info"
	if opts.Verbose {
		level = "debug"
	}
	logFile := logging.InvocationLogFile(settings.LogDir, settings.Version, time.Now())
	logger := logging.New(logging.Config{Level: level, File: logFile, Console: true})
	defer logger.Close()

	logger.Info("Starting upgrade", "product", brand.Name, "version", settings.Version,
		"dry_run", settings.DryRun, "log_file", logFile)

	// One orchestrator per installation directory at a time. A second
	// invocation against the same directory fails fast instead of racing the
	// first on the same files.
	releaser, err := mutex.Acquire(mutex.Spec{
		Name:    lockName(settings.WorkDir),
		Clock:   clock.WallClock,
		Delay:   250 * time.Millisecond,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		Printer.Fprintf(os.Stderr, "Error: another upgrade appears to be running against %s: %v\n",
			settings.WorkDir, err)
		return 1
	}
	defer releaser.Release()

	aud, err := audit.Open(settings.LogDir, logger)
	if err != nil {
		Printer.Fprintf(os.Stderr, "Error: cannot open audit log: %v\n", err)
		return 1
	}
	defer aud.Close()

	prober := health.New(clock.WallClock, logger)
	if !settings.SkipHealthCheck && !prober.Reachable(settings.HealthURL) {
		// Advisory only; plenty of deployments filter ICMP.
		logger.Debug("Health endpoint host did not answer ICMP", "url", settings.HealthURL)
	}

	var controller service.Controller
	if settings.DryRun {
		controller = service.NewDryRun(logger)
	} else {
		controller = service.NewSystemd(brand.ServiceUnit, nil, clock.WallClock, logger)
	}

	fetcher := fetch.New(fetch.Config{
		BaseURL:  settings.BaseURL,
		SpoolDir: settings.SpoolDir,
		DryRun:   settings.DryRun,
	}, clock.WallClock, logger)

	store := archive.New(
		settings.ArchiveDir,
		filepath.Join(settings.WorkDir, archive.PointerFileName),
		clock.WallClock,
		logger,
	)

	orch := upgrade.New(settings, upgrade.Deps{
		Fetcher:   fetcher,
		Store:     store,
		Service:   controller,
		Prober:    prober,
		Installer: upgrade.NewInstaller(settings.WorkDir, logger),
		Audit:     aud,
		Logger:    logger,
	})

	outcome := orch.Run(context.Background(), upgrade.Request{
		Version:         settings.Version,
		DryRun:          settings.DryRun,
		KeepArtifact:    settings.KeepArtifact,
		SkipHealthCheck: settings.SkipHealthCheck,
	})

	switch outcome.Result {
	case upgrade.ResultSuccess:
		Printer.Printf("%s upgraded to version %s\n", brand.Name, outcome.Version)
	case upgrade.ResultAborted:
		Printer.Fprintf(os.Stderr, "Upgrade aborted before any change: %s\n", outcome.Reason)
	case upgrade.ResultRolledBack:
		Printer.Fprintf(os.Stderr, "Upgrade failed and was rolled back: %s\n", outcome.Reason)
	case upgrade.ResultFatal:
		Printer.Fprintf(os.Stderr, "FATAL: %s\nThe service may be in neither the old nor the new state. Operator intervention required.\n", outcome.Reason)
	}
	Printer.Printf("Log: %s\n", logFile)

	return outcome.ExitCode()
}

// lockName derives a machine-wide mutex name from the working directory so
// that upgrades of distinct installations do not serialize against each other.
func lockName(workDir string) string {
	h := fnv.New32a()
	h.Write([]byte(workDir))
	return fmt.Sprintf("%s-upgrade-%08x", brand.LowerName, h.Sum32())
}
