package dexcache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/meigma/dexcache/internal/archive"
	"github.com/meigma/dexcache/internal/checksum"
	"github.com/meigma/dexcache/internal/lock"
)

const (
	writeBufferSize = 16 << 10
	readOnlyPerm    = 0o444
)

// extractAll clears the cache directory and extracts every secondary segment
// of the archive, in index order. It returns either every artifact or an
// error; no partial list is returned.
func (e *Extractor) extractAll(ctx context.Context) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.purge()

	r, err := archive.Open(e.archivePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := r.Close(); closeErr != nil {
			e.log().Warn("failed to close archive", "archive", e.archivePath, "error", closeErr)
		}
	}()

	var artifacts []Artifact
	for i := FirstSecondaryIndex; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, ok := r.Lookup(SegmentName(i))
		if !ok {
			break
		}

		a := newArtifact(e.cacheDir, e.archiveBase, i)
		e.log().Info("extraction needed", "index", i, "path", a.Path)
		if err := e.extractWithRetry(entry, &a); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// extractWithRetry extracts entry into a, trying up to maxAttempts times.
// A failed attempt removes whatever it left at the artifact path.
func (e *Extractor) extractWithRetry(entry *zip.File, a *Artifact) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		e.reportProgress(ProgressEvent{Stage: StageExtracting, Index: a.Index, Path: a.Path, Attempt: attempt})

		lastErr = e.extractOnce(entry, a)
		if lastErr == nil {
			e.log().Info("extraction succeeded",
				"index", a.Index, "path", a.Path, "attempt", attempt, "crc", a.Checksum)
			return nil
		}

		e.log().Warn("extraction failed", "index", a.Index, "path", a.Path, "attempt", attempt, "error", lastErr)
		a.Checksum = checksum.NoValue
		a.ModTime = 0
		if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.log().Warn("failed to delete corrupted artifact", "path", a.Path, "error", err)
		}
	}
	return &ExtractionError{Index: a.Index, Path: a.Path, Attempts: e.maxAttempts, Err: lastErr}
}

// extractOnce writes the artifact and verifies it by computing its checksum.
func (e *Extractor) extractOnce(entry *zip.File, a *Artifact) error {
	if err := e.writeArtifact(entry, a.Path); err != nil {
		return err
	}
	sum, err := e.verify(a.Path)
	if err != nil {
		return fmt.Errorf("read checksum of %s: %w", a.Path, err)
	}
	mod, err := modTime(a.Path)
	if err != nil {
		return err
	}
	a.Checksum = sum
	a.ModTime = mod
	return nil
}

// writeArtifact wraps entry into a single-entry archive written to a temp
// file next to target, marks it read-only and renames it over target. The
// temp file is removed on every return path.
func (e *Extractor) writeArtifact(entry *zip.File, target string) error {
	tmp, err := os.CreateTemp(e.cacheDir, "tmp-"+e.archiveBase+ArtifactExt+"*"+ArtifactSuffix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			e.log().Warn("failed to delete temp file", "path", tmpPath, "error", err)
		}
	}()

	e.log().Debug("extracting", "entry", entry.Name, "tmp", tmpPath)
	bw := bufio.NewWriterSize(tmp, writeBufferSize)
	if err := archive.CopyEntry(bw, entry, ArtifactEntryName); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpPath, readOnlyPerm); err != nil {
		return fmt.Errorf("mark read-only %s (tmp of %s): %w", tmpPath, target, err)
	}
	e.log().Debug("renaming", "tmp", tmpPath, "path", target)
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, target, err)
	}
	return nil
}

// purge deletes everything in the cache directory except the lock file.
// Failures are logged; a leftover file is replaced by the rename of its
// artifact or ignored by validation.
func (e *Extractor) purge() {
	e.reportProgress(ProgressEvent{Stage: StagePurging, Path: e.cacheDir})

	entries, err := os.ReadDir(e.cacheDir)
	if err != nil {
		e.log().Warn("failed to list cache dir", "dir", e.cacheDir, "error", err)
		return
	}
	for _, de := range entries {
		if de.Name() == lock.FileName {
			continue
		}
		path := filepath.Join(e.cacheDir, de.Name())
		e.log().Info("deleting old file", "path", path)
		if err := removeAll(path); err != nil {
			e.log().Warn("failed to delete old file", "path", path, "error", err)
		}
	}
}

// removeAll removes path, clearing a read-only bit and retrying once on
// platforms that refuse to delete read-only files.
func removeAll(path string) error {
	err := os.RemoveAll(path)
	if err == nil {
		return nil
	}
	if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
		return err
	}
	return os.RemoveAll(path)
}
