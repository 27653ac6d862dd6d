// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package install resolves the directories and identities the upgrader
// operates on. Every value has a fixed default from brand.json and an
// environment override so deployments can relocate the installation.
package install

import (
	"os"

	"github.com/kestrelworks/kestrelup/internal/brand"
)

// GetWorkDir returns the live installation directory.
// Priority: KESTRELUP_WORK_DIR > DefaultWorkDir
func GetWorkDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_WORK_DIR"); dir != "" {
		return dir
	}
	return brand.DefaultWorkDir
}

// GetArchiveDir returns the backup archive root.
// Priority: KESTRELUP_ARCHIVE_DIR > DefaultArchiveDir
func GetArchiveDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_ARCHIVE_DIR"); dir != "" {
		return dir
	}
	return brand.DefaultArchiveDir
}

// GetSpoolDir returns the download spool directory. Fetched bundles land here,
// never in the working directory.
// Priority: KESTRELUP_SPOOL_DIR > DefaultSpoolDir
func GetSpoolDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_SPOOL_DIR"); dir != "" {
		return dir
	}
	return brand.DefaultSpoolDir
}

// GetLogDir returns the log directory.
// Priority: KESTRELUP_LOG_DIR > DefaultLogDir
func GetLogDir() string {
	if dir := os.Getenv(brand.ConfigEnvPrefix + "_LOG_DIR"); dir != "" {
		return dir
	}
	return brand.DefaultLogDir
}

// GetBaseURL returns the distributor base URL releases are fetched from.
// Priority: KESTRELUP_BASE_URL > DefaultBaseURL
func GetBaseURL() string {
	if url := os.Getenv(brand.ConfigEnvPrefix + "_BASE_URL"); url != "" {
		return url
	}
	return brand.DefaultBaseURL
}

// GetHealthURL returns the liveness endpoint polled after a restart.
// Priority: KESTRELUP_HEALTH_URL > DefaultHealthURL
func GetHealthURL() string {
	if url := os.Getenv(brand.ConfigEnvPrefix + "_HEALTH_URL"); url != "" {
		return url
	}
	return brand.DefaultHealthURL
}

// GetServiceUser returns the unix user that owns the installed files.
// Priority: KESTRELUP_SERVICE_USER > DefaultServiceUser
func GetServiceUser() string {
	if u := os.Getenv(brand.ConfigEnvPrefix + "_SERVICE_USER"); u != "" {
		return u
	}
	return brand.DefaultServiceUser
}

// GetServiceGroup returns the unix group that owns the installed files.
// Priority: KESTRELUP_SERVICE_GROUP > DefaultServiceGroup
func GetServiceGroup() string {
	if g := os.Getenv(brand.ConfigEnvPrefix + "_SERVICE_GROUP"); g != "" {
		return g
	}
	return brand.DefaultServiceGroup
}
