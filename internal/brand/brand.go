// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand provides centralized branding and naming constants for the
// upgrader. The upstream distributor's artifact naming convention lives here
// because it is an external contract, not per-invocation configuration.
//
// The brand identity is loaded from brand.json at compile time via go:embed so
// that other tools (packaging scripts, docs generators) can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information.
type Brand struct {
	Name                string `json:"name"`
	LowerName           string `json:"lowerName"`
	Vendor              string `json:"vendor"`
	Description         string `json:"description"`
	ConfigEnvPrefix     string `json:"configEnvPrefix"`
	BinaryName          string `json:"binaryName"`
	ServiceUnit         string `json:"serviceUnit"`
	DefaultWorkDir      string `json:"defaultWorkDir"`
	DefaultArchiveDir   string `json:"defaultArchiveDir"`
	DefaultSpoolDir     string `json:"defaultSpoolDir"`
	DefaultLogDir       string `json:"defaultLogDir"`
	DefaultBaseURL      string `json:"defaultBaseURL"`
	DefaultHealthURL    string `json:"defaultHealthURL"`
	DefaultServiceUser  string `json:"defaultServiceUser"`
	DefaultServiceGroup string `json:"defaultServiceGroup"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Vendor = b.Vendor
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	BinaryName = b.BinaryName
	ServiceUnit = b.ServiceUnit
	DefaultWorkDir = b.DefaultWorkDir
	DefaultArchiveDir = b.DefaultArchiveDir
	DefaultSpoolDir = b.DefaultSpoolDir
	DefaultLogDir = b.DefaultLogDir
	DefaultBaseURL = b.DefaultBaseURL
	DefaultHealthURL = b.DefaultHealthURL
	DefaultServiceUser = b.DefaultServiceUser
	DefaultServiceGroup = b.DefaultServiceGroup
}

// Exported variables for convenience.
var (
	Name                string
	LowerName           string
	Vendor              string
	Description         string
	ConfigEnvPrefix     string
	BinaryName          string
	ServiceUnit         string
	DefaultWorkDir      string
	DefaultArchiveDir   string
	DefaultSpoolDir     string
	DefaultLogDir       string
	DefaultBaseURL      string
	DefaultHealthURL    string
	DefaultServiceUser  string
	DefaultServiceGroup string
)

// Get returns the full brand identity.
func Get() Brand {
	return b
}

// BundleName returns the distributor's bundle name for a release version,
// following the fixed upstream convention <product>-1.<version>.0-01-bundle.
func BundleName(version string) string {
	return fmt.Sprintf("%s-1.%s.0-01-bundle", b.LowerName, version)
}

// JarPrefix returns the filename prefix of the installed primary jar for a
// release version. The installed file is <prefix>*.jar under the working
// directory.
func JarPrefix(version string) string {
	return fmt.Sprintf("%s-1.%s.0-01", b.LowerName, version)
}

// JarGlob returns a glob matching the installed primary jar of any version.
func JarGlob() string {
	return b.LowerName + "-1.*.jar"
}
