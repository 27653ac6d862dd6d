// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/kestrelup/internal/brand"
	"github.com/kestrelworks/kestrelup/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, brand.DefaultWorkDir, s.WorkDir)
	assert.Equal(t, brand.DefaultArchiveDir, s.ArchiveDir)
	assert.Equal(t, brand.DefaultSpoolDir, s.SpoolDir)
	assert.Equal(t, brand.DefaultLogDir, s.LogDir)
	assert.Equal(t, brand.DefaultBaseURL, s.BaseURL)
	assert.Equal(t, brand.DefaultHealthURL, s.HealthURL)
	assert.Equal(t, brand.DefaultServiceUser, s.ServiceUser)
	assert.Equal(t, brand.DefaultServiceGroup, s.ServiceGroup)
	assert.False(t, s.DryRun)
}

func TestLoadSettingsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
work_dir: /srv/kestrel
base_url: https://mirror.example.com/releases
keep_artifact: true
`), 0o644))

	s, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "/srv/kestrel", s.WorkDir)
	assert.Equal(t, "https://mirror.example.com/releases", s.BaseURL)
	assert.True(t, s.KeepArtifact)

	// Unset fields still fall back to defaults.
	assert.Equal(t, brand.DefaultArchiveDir, s.ArchiveDir)
	assert.Equal(t, brand.DefaultHealthURL, s.HealthURL)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_WORK_DIR", "/env/kestrel")

	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte("work_dir: /file/kestrel\n"), 0o644))

	s, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/env/kestrel", s.WorkDir)
}

func TestEnvironmentOverridesDefault(t *testing.T) {
	t.Setenv(brand.ConfigEnvPrefix+"_BASE_URL", "http://127.0.0.1:9999/dist")

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/dist", s.BaseURL)
}

func TestLoadRejectsBadFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	file := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(file, []byte("work_dir: [unclosed\n"), 0o644))
	_, err = Load(file)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		return &Settings{
			Version:    "191",
			WorkDir:    "/opt/kestrel",
			ArchiveDir: "/opt/kestrel/archive",
		}
	}

	assert.NoError(t, base().Validate())

	s := base()
	s.Version = ""
	assert.Error(t, s.Validate())

	s = base()
	s.Version = "191beta"
	assert.Error(t, s.Validate())

	s = base()
	s.Version = "-3"
	assert.Error(t, s.Validate())

	s = base()
	s.WorkDir = ""
	assert.Error(t, s.Validate())

	s = base()
	s.ArchiveDir = ""
	assert.Error(t, s.Validate())

	s = base()
	s.Version = "0"
	err := s.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))
}
