// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package upgrade contains the deterministic state machine that sequences
// fetch, stop, backup, install, start and verify, and drives rollback on
// failure. It owns all cross-component ordering and error decisions; the
// collaborators it calls perform exactly one kind of side effect each.
//
// The pipeline is deliberately single-threaded and synchronous: it mutates
// one service instance and serializes every side effect so that stop, backup,
// install, start and verify have a total order. Nothing here is safe to run
// concurrently with anything else in the pipeline.
package upgrade

import (
	"context"
	"os"
	"time"

	"github.com/kestrelworks/kestrelup/internal/archive"
	"github.com/kestrelworks/kestrelup/internal/audit"
	"github.com/kestrelworks/kestrelup/internal/config"
	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/fetch"
	"github.com/kestrelworks/kestrelup/internal/health"
	"github.com/kestrelworks/kestrelup/internal/logging"
	"github.com/kestrelworks/kestrelup/internal/service"
)

// ArtifactFetcher retrieves and integrity-checks a release bundle.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, version string) (*fetch.Artifact, error)
}

// ArchiveStore manages the bounded backup history used as rollback material.
type ArchiveStore interface {
	CreateBackup(sources []string) (*archive.BackupRecord, error)
	PruneToLimit(limit int) error
	Latest() (*archive.BackupRecord, error)
	Restore(record *archive.BackupRecord, destDir string) error
}

// HealthProber verifies post-start readiness.
type HealthProber interface {
	WaitHealthy(ctx context.Context, url string, retries int, interval time.Duration) error
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Fetcher   ArtifactFetcher
	Store     ArchiveStore
	Service   service.Controller
	Prober    HealthProber
	Installer *Installer
	Audit     *audit.Log
	Logger    *logging.Logger

	// HealthRetries and HealthInterval override the prober poll budget;
	// zero values use the package defaults.
	HealthRetries  int
	HealthInterval time.Duration
}

// Orchestrator runs one upgrade to completion.
type Orchestrator struct {
	settings *config.Settings
	deps     Deps
	state    State
}

// New creates an Orchestrator.
func New(settings *config.Settings, deps Deps) *Orchestrator {
	if deps.HealthRetries <= 0 {
		deps.HealthRetries = health.DefaultRetries
	}
	if deps.HealthInterval <= 0 {
		deps.HealthInterval = health.DefaultInterval
	}
	return &Orchestrator{settings: settings, deps: deps}
}

// runContext tracks what this run has changed, so rollback undoes exactly
// that and nothing more.
type runContext struct {
	req         Request
	installed   *InstalledRelease
	wasActive   bool
	artifact    *fetch.Artifact
	newFiles    []string
	backupTaken bool
}

// Run executes the pipeline. Fetch and verification happen before any
// mutation of the live service or filesystem, so a failure there aborts with
// zero system impact. Any failure at or after Stopping triggers rollback.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	log := o.deps.Logger
	aud := o.deps.Audit

	aud.Record(audit.Event{
		EventType: audit.EventRunStart,
		Success:   true,
		Message:   "upgrade run started",
		Details: map[string]any{
			"version":           req.Version,
			"dry_run":           req.DryRun,
			"keep_artifact":     req.KeepArtifact,
			"skip_health_check": req.SkipHealthCheck,
		},
	})

	rc := &runContext{req: req}

	// Init: observe, never mutate.
	o.setState(StateInit)
	installed, err := DetectInstalled(o.settings.WorkDir)
	if err != nil {
		return o.abort(errors.Wrap(err, errors.KindValidation, "cannot inspect working directory"))
	}
	rc.installed = installed
	if installed.Fresh() {
		log.Info("Fresh install: no prior release found", "work_dir", o.settings.WorkDir)
	} else {
		log.Info("Current release detected", "version", installed.Version, "files", len(installed.Files))
	}
	if active, err := o.deps.Service.IsActive(ctx); err == nil {
		rc.wasActive = active
	}

	// Fetching + Verifying: still zero system impact.
	o.setState(StateFetching)
	artifact, err := o.deps.Fetcher.Fetch(ctx, req.Version)
	if err != nil {
		aud.Step(audit.EventFetch, false, err.Error(), nil)
		return o.abort(err)
	}
	rc.artifact = artifact
	aud.Step(audit.EventFetch, true, "release bundle fetched", map[string]any{
		"url": artifact.URL, "bytes": artifact.Size,
	})

	o.setState(StateVerifying)
	aud.Step(audit.EventVerify, true, "artifact integrity verified", map[string]any{
		"path": artifact.Path,
	})

	// Stopping: first mutating step. From here on, failure means rollback.
	o.setState(StateStopping)
	if err := o.deps.Service.Stop(ctx); err != nil {
		aud.Step(audit.EventServiceStop, false, err.Error(), nil)
		return o.rollback(ctx, rc, err)
	}
	aud.Step(audit.EventServiceStop, true, "service stopped", nil)

	// Backing up.
	o.setState(StateBackingUp)
	if req.DryRun {
		log.Info("Dry-run: would back up installed files", "files", len(installed.Files))
	} else {
		if err := o.deps.Store.PruneToLimit(archive.RetentionLimit); err != nil {
			log.Warn("Pre-backup prune failed", "error", err)
		}
		backup, err := o.deps.Store.CreateBackup(installed.Files)
		if err != nil {
			aud.Step(audit.EventBackupCreate, false, err.Error(), nil)
			return o.rollback(ctx, rc, err)
		}
		rc.backupTaken = backup != nil
		if backup == nil {
			aud.Step(audit.EventBackupCreate, true, "nothing to back up (fresh install)", nil)
		} else {
			aud.Step(audit.EventBackupCreate, true, "backup created", map[string]any{
				"dir": backup.Path, "files": len(backup.Files),
			})
		}
		if err := o.deps.Store.PruneToLimit(archive.RetentionLimit); err != nil {
			log.Warn("Post-backup prune failed", "error", err)
		} else {
			aud.Step(audit.EventBackupPrune, true, "archive history pruned to limit", map[string]any{
				"limit": archive.RetentionLimit,
			})
		}
	}

	// Installing.
	o.setState(StateInstalling)
	if req.DryRun {
		log.Info("Dry-run: would extract bundle into working directory", "bundle", artifact.Path)
	} else {
		newFiles, err := o.deps.Installer.Extract(artifact)
		rc.newFiles = newFiles
		if err != nil {
			aud.Step(audit.EventInstall, false, err.Error(), nil)
			return o.rollback(ctx, rc, err)
		}
		aud.Step(audit.EventInstall, true, "bundle extracted", map[string]any{"files": len(newFiles)})
	}

	// Setting permissions.
	o.setState(StateSettingPermissions)
	if req.DryRun {
		log.Info("Dry-run: would apply ownership",
			"owner", o.settings.ServiceUser, "group", o.settings.ServiceGroup)
	} else {
		if err := o.deps.Installer.SetOwnership(rc.newFiles, o.settings.ServiceUser, o.settings.ServiceGroup); err != nil {
			aud.Step(audit.EventPermissions, false, err.Error(), nil)
			return o.rollback(ctx, rc, err)
		}
		aud.Step(audit.EventPermissions, true, "ownership applied", nil)
	}

	// Verifying install.
	o.setState(StateVerifyingInstall)
	if req.DryRun {
		log.Info("Dry-run: would verify version token in installed filename", "version", req.Version)
	} else {
		if err := o.deps.Installer.VerifyVersion(req.Version); err != nil {
			aud.Step(audit.EventVersionCheck, false, err.Error(), nil)
			return o.rollback(ctx, rc, err)
		}
		aud.Step(audit.EventVersionCheck, true, "installed version matches request", nil)
	}

	// Starting.
	o.setState(StateStarting)
	if err := o.deps.Service.Start(ctx); err != nil {
		aud.Step(audit.EventServiceStart, false, err.Error(), nil)
		return o.rollback(ctx, rc, err)
	}
	aud.Step(audit.EventServiceStart, true, "service started", nil)

	// Health checking.
	o.setState(StateHealthChecking)
	switch {
	case req.SkipHealthCheck:
		log.Warn("Health check skipped by request; treating as pass")
		aud.Warn(audit.EventHealthCheck, "health check skipped by request", nil)
	case req.DryRun:
		log.Info("Dry-run: would poll health endpoint", "url", o.settings.HealthURL)
	default:
		err := o.deps.Prober.WaitHealthy(ctx, o.settings.HealthURL, o.deps.HealthRetries, o.deps.HealthInterval)
		if err != nil {
			aud.Step(audit.EventHealthCheck, false, err.Error(), nil)
			return o.rollback(ctx, rc, err)
		}
		aud.Step(audit.EventHealthCheck, true, "service is healthy", nil)
	}

	o.cleanupArtifact(rc)
	o.setState(StateDone)
	aud.Step(audit.EventRunDone, true, "upgrade succeeded", map[string]any{"version": req.Version})
	return Outcome{Result: ResultSuccess, Version: req.Version}
}

// abort terminates a run that has not mutated anything. No rollback is
// needed; the system is exactly as it was.
func (o *Orchestrator) abort(cause error) Outcome {
	o.setState(StateDone)
	o.deps.Audit.Step(audit.EventRunDone, false, cause.Error(), map[string]any{
		"result": ResultAborted.String(),
	})
	return Outcome{Result: ResultAborted, Reason: cause.Error(), Err: cause}
}

func (o *Orchestrator) setState(s State) {
	o.state = s
	o.deps.Logger.Debug("State transition", "state", s.String())
}

func (o *Orchestrator) cleanupArtifact(rc *runContext) {
	if rc.artifact == nil || rc.artifact.Synthetic || rc.req.KeepArtifact {
		return
	}
	if err := os.Remove(rc.artifact.Path); err != nil && !os.IsNotExist(err) {
		o.deps.Logger.Warn("Could not remove downloaded bundle", "path", rc.artifact.Path, "error", err)
	}
}
