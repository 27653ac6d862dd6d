// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package upgrade

import (
	"path/filepath"

	"github.com/kestrelworks/kestrelup/internal/brand"
)

// Request is the immutable description of one upgrade invocation.
type Request struct {
	// Version is the validated numeric release token.
	Version string
	// DryRun performs all decision logic and logging without any mutation.
	DryRun bool
	// KeepArtifact retains the downloaded bundle after a successful install.
	KeepArtifact bool
	// SkipHealthCheck treats the post-start health check as an unconditional
	// pass. The deviation is logged as a warning.
	SkipHealthCheck bool
}

// InstalledRelease describes the currently deployed artifact. It is read
// from the filesystem at orchestration start and is stale the instant
// installation begins.
type InstalledRelease struct {
	// Version is the release token parsed from the installed jar name, or
	// empty for a fresh install.
	Version string
	// Files are the installed primary files under the working directory.
	Files []string
}

// Fresh reports whether no prior release is installed.
func (r *InstalledRelease) Fresh() bool {
	return len(r.Files) == 0
}

// DetectInstalled scans the working directory for the installed primary jar.
// A fresh install (no match) is not an error.
func DetectInstalled(workDir string) (*InstalledRelease, error) {
	matches, err := filepath.Glob(filepath.Join(workDir, brand.JarGlob()))
	if err != nil {
		return nil, err
	}

	rel := &InstalledRelease{Files: matches}
	if len(matches) > 0 {
		rel.Version = versionFromJar(filepath.Base(matches[0]))
	}
	return rel, nil
}

// versionFromJar extracts the numeric version token from an installed jar
// name of the form <product>-1.<version>.0-01*.jar. It returns "" when the
// name does not follow the convention.
func versionFromJar(name string) string {
	prefix := brand.LowerName + "-1."
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return ""
	}
	rest := name[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return rest[:i]
		}
	}
	return rest
}
