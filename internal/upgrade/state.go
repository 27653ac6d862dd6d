// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package upgrade

// State identifies where the orchestrator is in the upgrade pipeline.
// Everything before StateStopping is free of side effects on the live
// system; any failure at or after StateStopping triggers rollback.
type State int

const (
	StateInit State = iota
	StateFetching
	StateVerifying
	StateStopping
	StateBackingUp
	StateInstalling
	StateSettingPermissions
	StateVerifyingInstall
	StateStarting
	StateHealthChecking
	StateRollingBack
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFetching:
		return "fetching"
	case StateVerifying:
		return "verifying"
	case StateStopping:
		return "stopping"
	case StateBackingUp:
		return "backing_up"
	case StateInstalling:
		return "installing"
	case StateSettingPermissions:
		return "setting_permissions"
	case StateVerifyingInstall:
		return "verifying_install"
	case StateStarting:
		return "starting"
	case StateHealthChecking:
		return "health_checking"
	case StateRollingBack:
		return "rolling_back"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// mutating reports whether the state is at or after the first step that
// touches the live system.
func (s State) mutating() bool {
	return s >= StateStopping && s <= StateHealthChecking
}

// Result classifies the terminal outcome of a run.
type Result int

const (
	// ResultSuccess means the new version is installed, running and verified.
	ResultSuccess Result = iota
	// ResultAborted means a failure before any mutation; the system is
	// untouched and no rollback was needed.
	ResultAborted
	// ResultRolledBack means a step failed after mutation began and the
	// prior working state was restored.
	ResultRolledBack
	// ResultFatal means recovery itself failed; the system may be in neither
	// the old nor the new working state and needs operator intervention.
	ResultFatal
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultAborted:
		return "aborted"
	case ResultRolledBack:
		return "rolled_back"
	case ResultFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of one upgrade run.
type Outcome struct {
	Result  Result
	Version string
	Reason  string
	Err     error
}

// ExitCode maps the outcome to the process exit status: zero only on full
// success.
func (o Outcome) ExitCode() int {
	if o.Result == ResultSuccess {
		return 0
	}
	return 1
}
