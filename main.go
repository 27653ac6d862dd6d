// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// kestrelup upgrades a Kestrel installation to a target release, with
// automatic rollback to the prior working state on any failure.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/kestrelworks/kestrelup/cmd"
	"github.com/kestrelworks/kestrelup/internal/brand"
)

func main() {
	fs := flag.NewFlagSet(brand.BinaryName, flag.ExitOnError)

	dryRun := fs.Bool("dry-run", false, "perform all decision logic and logging without any mutation")
	keepArtifact := fs.Bool("keep-artifact", false, "retain the downloaded bundle after a successful install")
	skipHealth := fs.Bool("skip-health-check", false, "treat the post-start health check as an unconditional pass")
	settingsFile := fs.String("settings", "", "optional YAML settings file (environment overrides it)")
	verbose := fs.Bool("verbose", false, "enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s — %s\n\n", brand.BinaryName, brand.Description)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [flags] <version>\n\n", brand.BinaryName)
		fmt.Fprintf(os.Stderr, "The version is the numeric release token, e.g. 191 for %s.\n\nFlags:\n",
			brand.BundleName("191"))
		fs.PrintDefaults()
	}

	fs.Parse(os.Args[1:])

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	os.Exit(cmd.RunUpgrade(cmd.UpgradeOptions{
		Version:         fs.Arg(0),
		SettingsFile:    *settingsFile,
		DryRun:          *dryRun,
		KeepArtifact:    *keepArtifact,
		SkipHealthCheck: *skipHealth,
		Verbose:         *verbose,
	}))
}
