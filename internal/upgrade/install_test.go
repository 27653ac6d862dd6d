// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package upgrade

import (
	"archive/tar"
	"compress/gzip"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/fetch"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

func newTestInstaller(t *testing.T) (*Installer, string) {
	t.Helper()
	workDir := t.TempDir()
	ins := NewInstaller(workDir, logging.New(logging.Config{Level: "error"}))
	ins.chown = func(path string, uid, gid int) error { return nil }
	return ins, workDir
}

func TestExtractFlattensEntries(t *testing.T) {
	ins, workDir := newTestInstaller(t)

	// Bundles ship files under a versioned directory; installation is flat.
	path := filepath.Join(t.TempDir(), "bundle.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "kestrel-1.191/", Mode: 0o755, Typeflag: tar.TypeDir,
	}))
	body := []byte("jar bytes")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "kestrel-1.191/kestrel-1.191.0-01.jar", Mode: 0o644,
		Size: int64(len(body)), Typeflag: tar.TypeReg,
	}))
	_, err = tw.Write(body)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	installed, err := ins.Extract(&fetch.Artifact{Path: path})
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, filepath.Join(workDir, "kestrel-1.191.0-01.jar"), installed[0])

	got, err := os.ReadFile(installed[0])
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestExtractEmptyBundleFails(t *testing.T) {
	ins, _ := newTestInstaller(t)

	path := filepath.Join(t.TempDir(), "empty.tar.gz")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	tw := tar.NewWriter(zw)
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = ins.Extract(&fetch.Artifact{Path: path})
	require.Error(t, err)
	assert.Equal(t, errors.KindInstall, errors.GetKind(err))
}

func TestExtractRejectsNonGzip(t *testing.T) {
	ins, _ := newTestInstaller(t)

	path := filepath.Join(t.TempDir(), "junk.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not a gzip stream"), 0o644))

	_, err := ins.Extract(&fetch.Artifact{Path: path})
	require.Error(t, err)
	assert.Equal(t, errors.KindInstall, errors.GetKind(err))
}

func TestSetOwnershipAppliesToEveryFile(t *testing.T) {
	ins, workDir := newTestInstaller(t)

	var chowned []string
	ins.chown = func(path string, uid, gid int) error {
		chowned = append(chowned, path)
		return nil
	}

	u, err := user.Current()
	require.NoError(t, err)
	g, err := user.LookupGroupId(u.Gid)
	require.NoError(t, err)

	paths := []string{
		filepath.Join(workDir, "a.jar"),
		filepath.Join(workDir, "b.jar"),
	}
	require.NoError(t, ins.SetOwnership(paths, u.Username, g.Name))
	assert.Equal(t, paths, chowned)
}

func TestSetOwnershipUnknownUser(t *testing.T) {
	ins, _ := newTestInstaller(t)
	err := ins.SetOwnership(nil, "no-such-user-zz", "no-such-group-zz")
	require.Error(t, err)
	assert.Equal(t, errors.KindInstall, errors.GetKind(err))
}

func TestVerifyVersion(t *testing.T) {
	ins, workDir := newTestInstaller(t)
	require.NoError(t, os.WriteFile(
		filepath.Join(workDir, "kestrel-1.191.0-01.jar"), []byte("x"), 0o644))

	assert.NoError(t, ins.VerifyVersion("191"))

	err := ins.VerifyVersion("192")
	require.Error(t, err)
	assert.Equal(t, errors.KindInstall, errors.GetKind(err))
}

func TestRemoveIsBestEffort(t *testing.T) {
	ins, workDir := newTestInstaller(t)

	p := filepath.Join(workDir, "kestrel-1.192.0-01.jar")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	// A missing path does not stop removal of the rest.
	ins.Remove([]string{filepath.Join(workDir, "absent.jar"), p})
	_, err := os.Stat(p)
	assert.True(t, os.IsNotExist(err))
}
