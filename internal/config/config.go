// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config builds the single Settings value threaded through every
// component. Paths, flags and endpoints are resolved once at invocation start;
// nothing downstream reads the environment or global state.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kestrelworks/kestrelup/internal/brand"
	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/install"
)

// Settings carries everything one upgrade run needs. It is immutable after
// Load returns.
type Settings struct {
	// Version is the numeric release token the run targets.
	Version string `yaml:"version,omitempty"`

	// Behavioral flags.
	DryRun          bool `yaml:"dry_run"`
	KeepArtifact    bool `yaml:"keep_artifact"`
	SkipHealthCheck bool `yaml:"skip_health_check"`

	// Filesystem layout.
	WorkDir    string `yaml:"work_dir"`
	ArchiveDir string `yaml:"archive_dir"`
	SpoolDir   string `yaml:"spool_dir"`
	LogDir     string `yaml:"log_dir"`

	// Endpoints.
	BaseURL   string `yaml:"base_url"`
	HealthURL string `yaml:"health_url"`

	// Ownership of installed files.
	ServiceUser  string `yaml:"service_user"`
	ServiceGroup string `yaml:"service_group"`
}

// Load resolves settings in precedence order: environment overrides, then the
// optional YAML settings file, then built-in defaults. Flags are applied by
// the caller afterwards.
func Load(settingsFile string) (*Settings, error) {
	s := &Settings{}

	if settingsFile != "" {
		data, err := os.ReadFile(settingsFile)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "cannot read settings file %s", settingsFile)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, errors.Wrapf(err, errors.KindValidation, "cannot parse settings file %s", settingsFile)
		}
	}

	// The install getters resolve env-or-default; the file value survives only
	// when it is set and the environment is silent.
	resolve(&s.WorkDir, "_WORK_DIR", install.GetWorkDir)
	resolve(&s.ArchiveDir, "_ARCHIVE_DIR", install.GetArchiveDir)
	resolve(&s.SpoolDir, "_SPOOL_DIR", install.GetSpoolDir)
	resolve(&s.LogDir, "_LOG_DIR", install.GetLogDir)
	resolve(&s.BaseURL, "_BASE_URL", install.GetBaseURL)
	resolve(&s.HealthURL, "_HEALTH_URL", install.GetHealthURL)
	resolve(&s.ServiceUser, "_SERVICE_USER", install.GetServiceUser)
	resolve(&s.ServiceGroup, "_SERVICE_GROUP", install.GetServiceGroup)

	return s, nil
}

// Validate checks the settings before any component runs. A failure here means
// nothing on the system has been touched.
func (s *Settings) Validate() error {
	if s.Version == "" {
		return errors.New(errors.KindValidation, "target version is required")
	}
	n, err := strconv.Atoi(s.Version)
	if err != nil || n <= 0 {
		return errors.Errorf(errors.KindValidation, "target version %q must be a positive integer", s.Version)
	}
	if s.WorkDir == "" {
		return errors.New(errors.KindValidation, "working directory is required")
	}
	if s.ArchiveDir == "" {
		return errors.New(errors.KindValidation, "archive directory is required")
	}
	return nil
}

func resolve(field *string, envSuffix string, get func() string) {
	if os.Getenv(brand.ConfigEnvPrefix+envSuffix) != "" || *field == "" {
		*field = get()
	}
}
