package dexcache

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/meigma/dexcache/internal/checksum"
)

var errNoRecord = errors.New("no recorded checksum and modification time")

// modTime returns the modification time of path in Unix milliseconds.
func modTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fileTime(info), nil
}

// fileTime maps the unknown-time sentinel (-1) to -2 so an unknown time never
// equals an absent stored value.
func fileTime(info os.FileInfo) int64 {
	ms := info.ModTime().UnixMilli()
	if ms == checksum.NoValue {
		ms--
	}
	return ms
}

// archiveState is the timestamp and checksum of the archive, taken together.
type archiveState struct {
	timestamp int64
	checksum  int64
}

// snapshotArchive reads the current timestamp and checksum of the archive.
func (e *Extractor) snapshotArchive() (archiveState, error) {
	ts, err := modTime(e.archivePath)
	if err != nil {
		return archiveState{}, fmt.Errorf("stat archive: %w", err)
	}
	sum, err := checksum.Zip(e.archivePath)
	if err != nil {
		return archiveState{}, err
	}
	return archiveState{timestamp: ts, checksum: sum}, nil
}

// isStale reports whether the archive state cur differs from the one
// recorded in meta. An absent record is stale.
func (e *Extractor) isStale(ctx context.Context, meta metadata, cur archiveState) (bool, error) {
	storedTime, storedSum, ok, err := meta.archive(ctx)
	if err != nil {
		return true, fmt.Errorf("read archive record: %w", err)
	}
	if !ok {
		return true, nil
	}
	return storedTime != cur.timestamp || storedSum != cur.checksum, nil
}

// validateExisting checks every artifact recorded in meta against the files
// in the cache directory and returns them in index order. The first missing
// or mismatching artifact aborts with a *ValidationError.
func (e *Extractor) validateExisting(ctx context.Context, meta metadata) ([]Artifact, error) {
	e.log().Info("loading existing artifacts", "dir", e.cacheDir)

	count, err := meta.count(ctx)
	if err != nil {
		return nil, fmt.Errorf("read segment count: %w", err)
	}

	artifacts := make([]Artifact, 0, max(count-1, 0))
	for i := FirstSecondaryIndex; i <= count; i++ {
		a := newArtifact(e.cacheDir, e.archiveBase, i)
		e.reportProgress(ProgressEvent{Stage: StageValidating, Index: i, Path: a.Path, Done: len(artifacts)})

		info, err := os.Stat(a.Path)
		if err != nil {
			return nil, &ValidationError{Index: i, Path: a.Path, Reason: "missing artifact", Err: err}
		}
		if !info.Mode().IsRegular() {
			return nil, &ValidationError{Index: i, Path: a.Path, Reason: "not a regular file", Err: os.ErrInvalid}
		}
		a.ModTime = fileTime(info)

		sum, err := checksum.Zip(a.Path)
		if err != nil {
			return nil, &ValidationError{Index: i, Path: a.Path, Reason: "unreadable artifact", Err: err}
		}
		a.Checksum = sum

		wantSum, wantTime, ok, err := meta.segment(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("read record of segment %d: %w", i, err)
		}
		if !ok {
			return nil, &ValidationError{Index: i, Path: a.Path, Reason: "missing metadata", Err: errNoRecord}
		}
		if wantTime != a.ModTime {
			return nil, &ValidationError{
				Index: i, Path: a.Path, Reason: "modification time mismatch",
				Expected: wantTime, Actual: a.ModTime,
			}
		}
		if wantSum != a.Checksum {
			return nil, &ValidationError{
				Index: i, Path: a.Path, Reason: "checksum mismatch",
				Expected: wantSum, Actual: a.Checksum,
			}
		}

		e.log().Debug("artifact valid", "index", i, "path", a.Path)
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}
