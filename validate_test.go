package dexcache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/dexcache/internal/checksum"
	"github.com/meigma/dexcache/internal/testutil"
)

type fakeInfo struct {
	mod time.Time
}

func (fi fakeInfo) Name() string       { return "fake" }
func (fi fakeInfo) Size() int64        { return 0 }
func (fi fakeInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fakeInfo) ModTime() time.Time { return fi.mod }
func (fi fakeInfo) IsDir() bool        { return false }
func (fi fakeInfo) Sys() any           { return nil }

func TestFileTimeUnknownSentinel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(-2), fileTime(fakeInfo{mod: time.UnixMilli(-1)}))
	assert.Equal(t, int64(1710428966000), fileTime(fakeInfo{mod: time.UnixMilli(1710428966000)}))
	assert.Equal(t, int64(-5), fileTime(fakeInfo{mod: time.UnixMilli(-5)}))
}

func TestIsStale(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	e := f.open(t)
	ctx := context.Background()
	meta := metadata{store: f.store, prefix: testNamespace}
	snap, err := e.snapshotArchive()
	require.NoError(t, err)

	stale, err := e.isStale(ctx, meta, snap)
	require.NoError(t, err)
	assert.True(t, stale, "no record is stale")

	ts := snap.timestamp
	f.store.Set(testNamespace+keyTimestamp, ts)
	stale, err = e.isStale(ctx, meta, snap)
	require.NoError(t, err)
	assert.True(t, stale, "a record without checksum is stale")

	f.store.Set(testNamespace+keyChecksum, snap.checksum)
	stale, err = e.isStale(ctx, meta, snap)
	require.NoError(t, err)
	assert.False(t, stale)

	f.store.Set(testNamespace+keyTimestamp, ts+1)
	stale, err = e.isStale(ctx, meta, snap)
	require.NoError(t, err)
	assert.True(t, stale, "timestamp differs")

	f.store.Set(testNamespace+keyTimestamp, ts)
	f.store.Set(testNamespace+keyChecksum, snap.checksum+1)
	stale, err = e.isStale(ctx, meta, snap)
	require.NoError(t, err)
	assert.True(t, stale, "checksum differs")
}

func TestIsStaleReadError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	e := f.open(t)
	f.store.FailGets(true)

	snap, err := e.snapshotArchive()
	require.NoError(t, err)
	stale, err := e.isStale(context.Background(), metadata{store: f.store, prefix: testNamespace}, snap)
	require.ErrorIs(t, err, testutil.ErrInjected)
	assert.True(t, stale)
}

func TestValidateExistingEmptyRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 3)
	e := f.open(t)

	artifacts, err := e.validateExisting(context.Background(), metadata{store: f.store, prefix: testNamespace})
	require.NoError(t, err)
	assert.Empty(t, artifacts, "an absent count means no secondary segments")
}

func TestValidateExistingFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(t *testing.T, f *fixture, artifacts []Artifact)
		index  int
		reason string
	}{
		{
			name: "missing file",
			mutate: func(t *testing.T, _ *fixture, artifacts []Artifact) {
				require.NoError(t, os.Remove(artifacts[0].Path))
			},
			index:  2,
			reason: "missing artifact",
		},
		{
			name: "checksum mismatch",
			mutate: func(_ *testing.T, f *fixture, _ []Artifact) {
				f.store.Set(testNamespace+"dex.crc.3", 99)
			},
			index:  3,
			reason: "checksum mismatch",
		},
		{
			name: "time mismatch",
			mutate: func(_ *testing.T, f *fixture, artifacts []Artifact) {
				f.store.Set(testNamespace+"dex.time.2", artifacts[0].ModTime-1000)
			},
			index:  2,
			reason: "modification time mismatch",
		},
		{
			name: "count beyond artifacts",
			mutate: func(_ *testing.T, f *fixture, _ []Artifact) {
				f.store.Set(testNamespace+"dex.number", 4)
			},
			index:  4,
			reason: "missing artifact",
		},
		{
			name: "directory in place of artifact",
			mutate: func(t *testing.T, _ *fixture, artifacts []Artifact) {
				require.NoError(t, os.Chmod(artifacts[1].Path, 0o600))
				require.NoError(t, os.Remove(artifacts[1].Path))
				require.NoError(t, os.Mkdir(artifacts[1].Path, 0o700))
			},
			index:  3,
			reason: "not a regular file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, 3)
			e := f.open(t)
			ctx := context.Background()
			artifacts, err := e.Load(ctx, testNamespace, false)
			require.NoError(t, err)

			tt.mutate(t, f, artifacts)

			_, err = e.validateExisting(ctx, metadata{store: f.store, prefix: testNamespace})
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.index, verr.Index)
			assert.Equal(t, tt.reason, verr.Reason)
			assert.Equal(t, filepath.Join(f.cache, ArtifactName("app.apk", tt.index)), verr.Path)
		})
	}
}

func TestValidateExistingMissingRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 2)
	e := f.open(t)
	ctx := context.Background()

	// An artifact on disk whose per-index record was never written.
	artifacts, err := e.extractAll(ctx)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	f.store.Set(testNamespace+keyCount, 2)

	_, err = e.validateExisting(ctx, metadata{store: f.store, prefix: testNamespace})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing metadata", verr.Reason)
	require.ErrorIs(t, err, errNoRecord)
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Index: 3, Path: "/c/app.apk.classes3.zip", Reason: "checksum mismatch", Expected: 10, Actual: 11}
	assert.Equal(t, "dexcache: invalid artifact 3 (/c/app.apk.classes3.zip): checksum mismatch: expected 10, got 11", err.Error())

	wrapped := &ValidationError{Index: 2, Path: "p", Reason: "missing artifact", Err: os.ErrNotExist}
	assert.Equal(t, "dexcache: invalid artifact 2 (p): missing artifact: file does not exist", wrapped.Error())
	assert.ErrorIs(t, wrapped, os.ErrNotExist)
	assert.NotErrorIs(t, wrapped, ErrExtraction)
}

func TestExtractionErrorMessage(t *testing.T) {
	t.Parallel()

	err := &ExtractionError{Index: 2, Path: "p", Attempts: 3, Err: checksumErr}
	assert.Equal(t, "dexcache: could not extract segment 2 to p after 3 attempts: bad checksum", err.Error())
	assert.ErrorIs(t, err, ErrExtraction)
	assert.ErrorIs(t, err, checksumErr)
	assert.NotErrorIs(t, err, ErrValidation)
}

var checksumErr = errors.New("bad checksum")

func TestArtifactNaming(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "classes2.dex", SegmentName(2))
	assert.Equal(t, "classes17.dex", SegmentName(17))
	assert.Equal(t, "base.apk.classes2.zip", ArtifactName("base.apk", 2))

	a := newArtifact("/cache", "base.apk", 5)
	assert.Equal(t, filepath.Join("/cache", "base.apk.classes5.zip"), a.Path)
	assert.Equal(t, 5, a.Index)
	assert.Equal(t, checksum.NoValue, a.Checksum)

	assert.Equal(t, []string{"a", "b"}, Paths([]Artifact{{Path: "a"}, {Path: "b"}}))
	assert.Empty(t, Paths(nil))
}

func TestProgressStageString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "validating", StageValidating.String())
	assert.Equal(t, "purging", StagePurging.String())
	assert.Equal(t, "extracting", StageExtracting.String())
	assert.Equal(t, "persisting", StagePersisting.String())
	assert.Equal(t, "unknown", ProgressStage(200).String())
}
