// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package fetch

import (
	"compress/gzip"
	"io"
	"os"

	"github.com/kestrelworks/kestrelup/internal/errors"
)

// MinBundleSize is the coarse sanity threshold for a complete bundle. A
// truncated transfer or an HTML error page saved as the bundle is far below
// this; a real release is well above it.
const MinBundleSize = 50 * 1024 * 1024

// Verify checks artifact integrity against the production size threshold.
// All checks must hold; the first failure short-circuits and names the check
// that failed:
//  1. the file exists and is non-empty
//  2. the file meets the minimum size threshold
//  3. the file is a structurally valid gzip container (decompression
//     self-test, not a full extraction)
func Verify(a *Artifact) error {
	return verifyWithMin(a, MinBundleSize)
}

func verifyWithMin(a *Artifact, minSize int64) error {
	info, err := os.Stat(a.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindFetch, "integrity check 'exists' failed for %s", a.Path)
	}
	if info.Size() == 0 {
		return errors.Errorf(errors.KindFetch, "integrity check 'non-empty' failed for %s", a.Path)
	}
	if info.Size() < minSize {
		return errors.Errorf(errors.KindFetch,
			"integrity check 'min-size' failed for %s: %d bytes < %d", a.Path, info.Size(), minSize)
	}

	f, err := os.Open(a.Path)
	if err != nil {
		return errors.Wrapf(err, errors.KindFetch, "integrity check 'gzip' failed for %s", a.Path)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, errors.KindFetch, "integrity check 'gzip' failed for %s", a.Path)
	}
	defer zr.Close()

	if _, err := io.Copy(io.Discard, zr); err != nil {
		return errors.Wrapf(err, errors.KindFetch, "integrity check 'gzip' failed for %s", a.Path)
	}

	a.Size = info.Size()
	return nil
}
