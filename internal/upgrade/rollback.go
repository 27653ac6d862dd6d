// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package upgrade

import (
	"context"

	"github.com/kestrelworks/kestrelup/internal/audit"
	"github.com/kestrelworks/kestrelup/internal/errors"
)

// rollback restores the prior working state after a failure at or after the
// Stopping step. It undoes only what this run changed: new files are removed,
// a backup taken by this run is restored, and the service is restarted if it
// was running before the run or a restore happened. A failure of restore or
// restart escalates to Fatal: the system may be in neither the old nor the
// new working state, and an operator has to intervene.
func (o *Orchestrator) rollback(ctx context.Context, rc *runContext, cause error) Outcome {
	log := o.deps.Logger
	aud := o.deps.Audit

	o.setState(StateRollingBack)
	log.Error("Upgrade step failed; rolling back", "cause", cause)
	aud.Record(audit.Event{
		EventType: audit.EventRollbackStart,
		Severity:  audit.SeverityError,
		Success:   true,
		Message:   "rolling back after failure",
		Details:   map[string]any{"cause": cause.Error()},
	})

	// Best-effort stop: the service may or may not be up depending on where
	// the pipeline failed. A stop failure here does not abort the rollback.
	if active, err := o.deps.Service.IsActive(ctx); err == nil && active {
		if err := o.deps.Service.Stop(ctx); err != nil {
			log.Warn("Best-effort stop during rollback failed", "error", err)
		}
	}

	// Clear partially-installed new-version files.
	if len(rc.newFiles) > 0 && !rc.req.DryRun {
		o.deps.Installer.Remove(rc.newFiles)
		log.Info("Removed partially-installed files", "count", len(rc.newFiles))
	}

	// Restore the backup this run created, via the latest pointer. A run
	// that failed before taking a backup has nothing to restore.
	if rc.backupTaken {
		latest, err := o.deps.Store.Latest()
		if err == nil && latest == nil {
			err = errors.New(errors.KindBackup, "latest-backup pointer is missing")
		}
		if err == nil {
			err = o.deps.Store.Restore(latest, o.settings.WorkDir)
		}
		if err != nil {
			aud.Fatal(audit.EventRestore, "restore failed: "+err.Error(), nil)
			return o.fatal(cause, errors.Wrap(err, errors.KindRollback, "could not restore backup"))
		}
		aud.Step(audit.EventRestore, true, "previous release restored", map[string]any{
			"dir": latest.Path,
		})
	} else {
		log.Info("No backup was taken this run; nothing to restore")
	}

	// Restart the prior version. On a fresh install that never ran there is
	// nothing to start.
	if rc.wasActive || rc.backupTaken {
		if err := o.deps.Service.Start(ctx); err != nil {
			aud.Fatal(audit.EventRollbackDone, "restart failed: "+err.Error(), nil)
			return o.fatal(cause, errors.Wrap(err, errors.KindRollback, "could not restart prior version"))
		}
		aud.Step(audit.EventServiceStart, true, "prior version restarted", nil)
	}

	o.cleanupArtifact(rc)
	o.setState(StateDone)
	aud.Step(audit.EventRollbackDone, true, "rollback complete", map[string]any{
		"cause": cause.Error(),
	})
	return Outcome{
		Result:  ResultRolledBack,
		Version: rc.installed.Version,
		Reason:  cause.Error(),
		Err:     cause,
	}
}

// fatal reports an unrecoverable state. It is never downgraded and is
// surfaced with maximum severity.
func (o *Orchestrator) fatal(cause, rollbackErr error) Outcome {
	o.setState(StateDone)
	o.deps.Logger.Error("ROLLBACK FAILED: system requires operator intervention",
		"cause", cause, "rollback_error", rollbackErr)
	o.deps.Audit.Fatal(audit.EventRunDone, "rollback failed; operator intervention required", map[string]any{
		"cause":          cause.Error(),
		"rollback_error": rollbackErr.Error(),
	})
	return Outcome{
		Result: ResultFatal,
		Reason: rollbackErr.Error(),
		Err:    rollbackErr,
	}
}
