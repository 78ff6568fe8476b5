package dexcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/meigma/dexcache/internal/checksum"
	"github.com/meigma/dexcache/internal/lock"
	"github.com/meigma/dexcache/store"
)

const defaultDirPerm = 0o700

// errStale marks a record that no longer describes the archive.
var errStale = errors.New("archive changed since last extraction")

type state uint8

const (
	stateLocked state = iota
	stateLoaded
	stateClosed
)

// Extractor extracts the secondary segments of one archive into one cache
// directory.
//
// An Extractor holds an exclusive lock on the cache directory from Open
// until Close. Other Extractors for the same directory, in this process or
// another, block in Open until then. An Extractor is safe for concurrent
// use, but its operations run one at a time.
type Extractor struct {
	archivePath string
	archiveBase string
	cacheDir    string
	store       store.Store
	lock        *lock.Lock

	mu    sync.Mutex
	state state

	logger              *slog.Logger
	progress            ProgressFunc
	maxAttempts         int
	dirPerm             os.FileMode
	tolerateStoreErrors bool

	// verify computes the checksum of a freshly written artifact.
	verify func(path string) (int64, error)
}

// Open prepares an Extractor for the archive at archivePath, caching into
// cacheDir and recording what it extracted in st.
//
// Open creates cacheDir if needed, checks that the archive is readable and
// then blocks until it holds the cache directory lock. There is no timeout;
// callers that need one must run Open in their own goroutine.
func Open(archivePath, cacheDir string, st store.Store, opts ...Option) (*Extractor, error) {
	if archivePath == "" {
		return nil, errors.New("dexcache: archive path is empty")
	}
	if cacheDir == "" {
		return nil, errors.New("dexcache: cache dir is empty")
	}
	if st == nil {
		return nil, errors.New("dexcache: store is nil")
	}

	e := &Extractor{
		archivePath: archivePath,
		archiveBase: filepath.Base(archivePath),
		cacheDir:    cacheDir,
		store:       st,
		maxAttempts: DefaultMaxAttempts,
		dirPerm:     defaultDirPerm,
		verify:      checksum.Zip,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.log().Info("opening extractor", "archive", archivePath, "dir", cacheDir)
	if err := os.MkdirAll(cacheDir, e.dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	snap, err := e.snapshotArchive()
	if err != nil {
		return nil, err
	}
	e.log().Debug("archive checksum", "archive", archivePath, "crc", snap.checksum)

	e.log().Info("blocking on lock", "path", filepath.Join(cacheDir, lock.FileName))
	l, err := lock.Acquire(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLock, err)
	}
	e.lock = l
	e.log().Info("lock acquired", "path", l.Path())
	return e, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (e *Extractor) log() *slog.Logger {
	if e.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.logger
}

// reportProgress sends a progress event if a callback is configured.
func (e *Extractor) reportProgress(ev ProgressEvent) {
	if e.progress == nil {
		return
	}
	e.progress(ev)
}

// Load returns the extracted secondary segments of the archive in index
// order, extracting them first when needed.
//
// Unless forceReload is set, Load first checks the record stored under
// namespace. If the archive is unchanged and every recorded artifact is
// intact, those artifacts are returned without touching the cache.
// Otherwise, or if any step of that check fails, the cache directory is
// cleared, every segment is extracted again and a complete new record is
// committed before the artifacts are returned.
//
// Load fails with ErrClosed after Close, with an *ExtractionError when a
// segment cannot be extracted, and with the store's error when the record
// cannot be committed (see WithTolerateStoreErrors).
func (e *Extractor) Load(ctx context.Context, namespace string, forceReload bool) ([]Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateClosed || !e.lock.Valid() {
		return nil, ErrClosed
	}

	e.log().Info("load", "archive", e.archivePath, "force", forceReload, "namespace", namespace)
	meta := metadata{store: e.store, prefix: namespace}

	snap, err := e.snapshotArchive()
	if err != nil {
		return nil, err
	}

	if !forceReload {
		artifacts, err := e.loadExisting(ctx, meta, snap)
		if err == nil {
			e.state = stateLoaded
			e.log().Info("load found artifacts", "count", len(artifacts))
			return artifacts, nil
		}
		if errors.Is(err, errStale) {
			e.log().Info("detected that extraction must be performed")
		} else {
			e.log().Warn("failed to reload existing artifacts, falling back to fresh extraction", "error", err)
		}
	} else {
		e.log().Info("forced extraction must be performed")
	}

	artifacts, err := e.extractAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.persist(ctx, meta, snap, artifacts); err != nil {
		if !e.tolerateStoreErrors {
			return nil, fmt.Errorf("store metadata: %w", err)
		}
		e.log().Warn("failed to store metadata, next load will extract again", "error", err)
	}

	e.state = stateLoaded
	e.log().Info("load found artifacts", "count", len(artifacts))
	return artifacts, nil
}

// loadExisting returns the recorded artifacts if the archive is unchanged
// and they all validate.
func (e *Extractor) loadExisting(ctx context.Context, meta metadata, snap archiveState) ([]Artifact, error) {
	stale, err := e.isStale(ctx, meta, snap)
	if err != nil {
		return nil, err
	}
	if stale {
		return nil, errStale
	}
	return e.validateExisting(ctx, meta)
}

// persist commits the record of a completed extraction pass. snap is the
// archive state the pass started from.
func (e *Extractor) persist(ctx context.Context, meta metadata, snap archiveState, artifacts []Artifact) error {
	e.reportProgress(ProgressEvent{Stage: StagePersisting, Done: len(artifacts)})

	return meta.writeAll(ctx, record{
		timestamp: snap.timestamp,
		checksum:  snap.checksum,
		artifacts: artifacts,
	})
}

// Close releases the cache directory lock. Every later call to Load or
// Close returns ErrClosed.
func (e *Extractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateClosed {
		return ErrClosed
	}
	e.state = stateClosed
	e.log().Info("releasing lock", "path", e.lock.Path())
	return e.lock.Release()
}
