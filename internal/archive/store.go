// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package archive manages the bounded history of prior installed releases
// used as rollback material. A backup is complete-or-absent: the latest
// pointer is written only after every file of the record has been moved, so
// a record the pointer names is always valid rollback material.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/juju/clock"

	"github.com/kestrelworks/kestrelup/internal/errors"
	"github.com/kestrelworks/kestrelup/internal/logging"
)

const (
	// RetentionLimit is the maximum number of entries kept under the
	// archive root.
	RetentionLimit = 5
	// PointerFileName is the latest-backup pointer file, kept under the
	// working directory per the filesystem layout contract.
	PointerFileName = ".latest_backup"
	// backupPrefix names backup directories; the timestamp suffix makes
	// lexical order equal chronological order.
	backupPrefix = "backup_"
	// timestampFormat is chosen so that lexical order is chronological.
	timestampFormat = "20060102-150405"
)

// BackupRecord is an immutable, timestamped snapshot of previously installed
// files.
type BackupRecord struct {
	Path      string
	Timestamp time.Time
	Files     []string
}

// Store manages backups under one archive root. The latest pointer lives
// under the working directory, per the filesystem layout contract.
type Store struct {
	root        string
	pointerPath string
	clock       clock.Clock
	logger      *logging.Logger
}

// New creates a Store for the given archive root and pointer file path.
func New(root, pointerPath string, clk clock.Clock, logger *logging.Logger) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{
		root:        root,
		pointerPath: pointerPath,
		clock:       clk,
		logger:      logger,
	}
}

// CreateBackup moves the given source files into a new timestamped backup
// directory. An empty source set is a no-op success: a fresh install has
// nothing prior to protect. On a mid-backup move failure the operation aborts
// and already-moved files stay where they are; the pointer is not updated, so
// the half-created record is never used for rollback.
func (s *Store) CreateBackup(sources []string) (*BackupRecord, error) {
	if len(sources) == 0 {
		s.logger.Info("No installed files to back up; skipping backup")
		return nil, nil
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.KindBackup, "cannot create archive root")
	}

	now := s.clock.Now()
	dir := filepath.Join(s.root, backupPrefix+now.Format(timestampFormat))
	for i := 1; ; i++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = filepath.Join(s.root, fmt.Sprintf("%s%s_%d", backupPrefix, now.Format(timestampFormat), i))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.KindBackup, "cannot create backup directory")
	}

	record := &BackupRecord{Path: dir, Timestamp: now}
	for _, src := range sources {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return nil, errors.Wrapf(err, errors.KindBackup, "backup aborted moving %s", src)
		}
		record.Files = append(record.Files, dst)
	}

	// The record is fully populated; only now does it become the latest.
	if err := os.WriteFile(s.pointerPath, []byte(dir), 0o644); err != nil {
		return nil, errors.Wrap(err, errors.KindBackup, "cannot write latest-backup pointer")
	}

	s.logger.Info("Created backup", "dir", dir, "files", len(record.Files))
	return record, nil
}

// PruneToLimit deletes the oldest entries under the archive root until the
// count equals limit. Every entry in the root is counted, script-created or
// not; there is no exemption for operator-placed files.
func (s *Store) PruneToLimit(limit int) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, errors.KindBackup, "cannot read archive root")
	}
	if len(entries) <= limit {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names[:len(names)-limit] {
		victim := filepath.Join(s.root, name)
		if err := os.RemoveAll(victim); err != nil {
			return errors.Wrapf(err, errors.KindBackup, "cannot prune %s", victim)
		}
		s.logger.Info("Pruned old backup", "dir", victim)
	}
	return nil
}

// Latest returns the record named by the latest-backup pointer, or nil when
// no pointer exists.
func (s *Store) Latest() (*BackupRecord, error) {
	data, err := os.ReadFile(s.pointerPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.KindBackup, "cannot read latest-backup pointer")
	}

	dir := string(data)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindBackup, "latest backup %s is not readable", dir)
	}

	record := &BackupRecord{Path: dir}
	for _, e := range entries {
		record.Files = append(record.Files, filepath.Join(dir, e.Name()))
	}
	return record, nil
}

// Restore moves every file of the record back into destDir. A failed restore
// is reported, never silently ignored: the caller escalates it to a fatal
// outcome requiring operator intervention.
func (s *Store) Restore(record *BackupRecord, destDir string) error {
	if record == nil {
		return errors.New(errors.KindBackup, "no backup record to restore")
	}
	if _, err := os.Stat(record.Path); err != nil {
		return errors.Wrapf(err, errors.KindBackup, "backup directory %s is missing", record.Path)
	}

	for _, src := range record.Files {
		dst := filepath.Join(destDir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return errors.Wrapf(err, errors.KindBackup, "restore failed moving %s", src)
		}
	}

	s.logger.Info("Restored backup", "dir", record.Path, "files", len(record.Files))
	return nil
}

// moveFile renames src to dst, falling back to copy-and-remove when the
// archive root lives on a different filesystem than the working directory.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
