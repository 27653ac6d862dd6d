// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package upgrade

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kestrelworks/kestrelup/internal/brand"
	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/fetch"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

// Installer extracts a fetched bundle into the working directory and applies
// ownership. It records what it writes so a rollback can remove exactly the
// files this run introduced.
type Installer struct {
	workDir string
	logger  *logging.Logger

	// chown applies ownership to one installed file. Overridable for tests,
	// which cannot chown to arbitrary users.
	chown func(path string, uid, gid int) error
}

// NewInstaller creates an Installer for the working directory.
func NewInstaller(workDir string, logger *logging.Logger) *Installer {
	return &Installer{
		workDir: workDir,
		logger:  logger,
		chown:   os.Chown,
	}
}

// Extract unpacks every regular file of the bundle directly into the working
// directory, per the flat filesystem layout contract. It returns the paths it
// created.
func (i *Installer) Extract(artifact *fetch.Artifact) ([]string, error) {
	f, err := os.Open(artifact.Path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInstall, "cannot open bundle")
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInstall, "bundle is not a valid gzip container")
	}
	defer zr.Close()

	var installed []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return installed, errors.Wrap(err, errors.KindInstall, "bundle extraction failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(hdr.Name)
		if name == "." || name == "/" || strings.HasPrefix(name, "..") {
			continue
		}
		dest := filepath.Join(i.workDir, name)
		if err := writeFile(tr, dest, os.FileMode(hdr.Mode).Perm()); err != nil {
			return installed, errors.Wrapf(err, errors.KindInstall, "cannot write %s", dest)
		}
		installed = append(installed, dest)
		i.logger.Debug("Extracted file", "path", dest, "bytes", hdr.Size)
	}

	if len(installed) == 0 {
		return nil, errors.New(errors.KindInstall, "bundle contained no files")
	}
	i.logger.Info("Installed new release files", "count", len(installed))
	return installed, nil
}

// SetOwnership chowns the installed files to the service user and group.
func (i *Installer) SetOwnership(paths []string, owner, group string) error {
	uid, gid, err := resolveOwner(owner, group)
	if err != nil {
		return errors.Wrapf(err, errors.KindInstall, "cannot resolve owner %s:%s", owner, group)
	}
	for _, p := range paths {
		if err := i.chown(p, uid, gid); err != nil {
			return errors.Wrapf(err, errors.KindInstall, "cannot chown %s to %s:%s", p, owner, group)
		}
	}
	i.logger.Info("Applied ownership", "owner", owner, "group", group, "files", len(paths))
	return nil
}

// VerifyVersion checks that the version token appears in the installed
// primary jar's filename. A mismatch is an installation failure, not a
// warning.
func (i *Installer) VerifyVersion(version string) error {
	wantPrefix := brand.JarPrefix(version)
	matches, err := filepath.Glob(filepath.Join(i.workDir, wantPrefix+"*.jar"))
	if err != nil {
		return errors.Wrap(err, errors.KindInstall, "version verification failed")
	}
	if len(matches) == 0 {
		return errors.Errorf(errors.KindInstall,
			"installed files do not contain version %s (expected %s*.jar)", version, wantPrefix)
	}
	i.logger.Info("Version verified in installed filename", "jar", filepath.Base(matches[0]))
	return nil
}

// Remove deletes the given installed paths, best-effort. Used by rollback to
// clear partially-installed new-version files.
func (i *Installer) Remove(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			i.logger.Warn("Could not remove partially-installed file", "path", p, "error", err)
		}
	}
}

func writeFile(r io.Reader, dest string, mode os.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func resolveOwner(owner, group string) (int, int, error) {
	u, err := user.Lookup(owner)
	if err != nil {
		return 0, 0, err
	}
	g, err := user.LookupGroup(group)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, 0, err
	}
	return uid, gid, nil
}
