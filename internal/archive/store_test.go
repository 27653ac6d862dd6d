// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package archive

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/kestrelup/internal/logging"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	workDir := t.TempDir()
	root := t.TempDir()
	pointer := filepath.Join(workDir, PointerFileName)
	logger := logging.New(logging.Config{Level: "error"})
	return New(root, pointer, nil, logger), workDir, root
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("content of "+name), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func listNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCreateBackupEmptyIsNoOp(t *testing.T) {
	store, _, root := newTestStore(t)

	record, err := store.CreateBackup(nil)
	require.NoError(t, err)
	assert.Nil(t, record)

	// No backup directory and no pointer.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = store.Latest()
	require.NoError(t, err)
}

func TestCreateBackupMovesFilesAndWritesPointer(t *testing.T) {
	store, workDir, _ := newTestStore(t)
	sources := writeFiles(t, workDir, "kestrel-1.190.0-01.jar", "kestrel-1.190.0-01-config.jar")

	record, err := store.CreateBackup(sources)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Len(t, record.Files, 2)

	// Moved, not copied.
	for _, src := range sources {
		_, err := os.Stat(src)
		assert.True(t, os.IsNotExist(err), "source %s should be gone", src)
	}
	for _, dst := range record.Files {
		_, err := os.Stat(dst)
		assert.NoError(t, err)
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, record.Path, latest.Path)
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	store, workDir, _ := newTestStore(t)
	writeFiles(t, workDir, "kestrel-1.190.0-01.jar")

	before := listNames(t, workDir)

	sources := []string{filepath.Join(workDir, "kestrel-1.190.0-01.jar")}
	record, err := store.CreateBackup(sources)
	require.NoError(t, err)
	require.NotNil(t, record)

	latest, err := store.Latest()
	require.NoError(t, err)
	require.NoError(t, store.Restore(latest, workDir))

	after := listNames(t, workDir)
	assert.Equal(t, before, after)

	content, err := os.ReadFile(filepath.Join(workDir, "kestrel-1.190.0-01.jar"))
	require.NoError(t, err)
	assert.Equal(t, "content of kestrel-1.190.0-01.jar", string(content))
}

func TestRestoreMissingRecord(t *testing.T) {
	store, workDir, _ := newTestStore(t)

	err := store.Restore(nil, workDir)
	assert.Error(t, err)

	err = store.Restore(&BackupRecord{Path: filepath.Join(workDir, "nope")}, workDir)
	assert.Error(t, err)
}

func TestLatestWithoutPointer(t *testing.T) {
	store, _, _ := newTestStore(t)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestPruneToLimit(t *testing.T) {
	store, _, root := newTestStore(t)

	// Six pre-existing backups, oldest first by name.
	for _, name := range []string{
		"backup_20250101-000000",
		"backup_20250102-000000",
		"backup_20250103-000000",
		"backup_20250104-000000",
		"backup_20250105-000000",
		"backup_20250106-000000",
	} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}

	require.NoError(t, store.PruneToLimit(RetentionLimit))
	assert.Len(t, listNames(t, root), RetentionLimit)
	assert.NotContains(t, listNames(t, root), "backup_20250101-000000")
}

func TestPruneCountsEveryEntry(t *testing.T) {
	store, _, root := newTestStore(t)

	// Operator-placed entries under the root are counted and evicted like
	// any other; there is no exemption.
	require.NoError(t, os.Mkdir(filepath.Join(root, "aaa_manual_backup"), 0o755))
	for _, name := range []string{
		"backup_20250101-000000",
		"backup_20250102-000000",
		"backup_20250103-000000",
		"backup_20250104-000000",
		"backup_20250105-000000",
	} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}

	require.NoError(t, store.PruneToLimit(RetentionLimit))
	names := listNames(t, root)
	assert.Len(t, names, RetentionLimit)
	assert.NotContains(t, names, "aaa_manual_backup")
}

func TestSixPriorBackupsPlusNewLeavesFive(t *testing.T) {
	store, workDir, root := newTestStore(t)

	for _, name := range []string{
		"backup_20250101-000000",
		"backup_20250102-000000",
		"backup_20250103-000000",
		"backup_20250104-000000",
		"backup_20250105-000000",
		"backup_20250106-000000",
	} {
		require.NoError(t, os.Mkdir(filepath.Join(root, name), 0o755))
	}

	// The orchestrator prunes before and after each new backup.
	require.NoError(t, store.PruneToLimit(RetentionLimit))
	sources := writeFiles(t, workDir, "kestrel-1.191.0-01.jar")
	record, err := store.CreateBackup(sources)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NoError(t, store.PruneToLimit(RetentionLimit))

	names := listNames(t, root)
	assert.Len(t, names, RetentionLimit)
	assert.Contains(t, names, filepath.Base(record.Path))
}

func TestCreateBackupAbortsOnMoveFailure(t *testing.T) {
	store, workDir, root := newTestStore(t)

	good := writeFiles(t, workDir, "kestrel-1.190.0-01.jar")
	missing := filepath.Join(workDir, "does-not-exist.jar")

	_, err := store.CreateBackup(append(good, missing))
	require.Error(t, err)

	// The half-created record exists (already-moved files stay moved) but
	// the pointer was never written, so it can never be used for rollback.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Nil(t, latest)
}
