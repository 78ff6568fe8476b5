// Command dexcache extracts the secondary segments of a container archive
// into a cache directory and prints the resulting artifacts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/meigma/dexcache"
	"github.com/meigma/dexcache/store/sqlite"
)

type config struct {
	archive     string
	cacheDir    string
	dbPath      string
	namespace   string
	force       bool
	verbose     bool
	maxAttempts int
	tolerate    bool
	busyTimeout time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "dexcache: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (config, error) {
	var cfg config
	fs := pflag.NewFlagSet("dexcache", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&cfg.archive, "archive", "a", "", "container archive to extract from (required)")
	fs.StringVarP(&cfg.cacheDir, "cache-dir", "d", "", "cache directory for extracted artifacts (required)")
	fs.StringVar(&cfg.dbPath, "db", "", "metadata database (default <cache-dir>.db)")
	fs.StringVarP(&cfg.namespace, "namespace", "n", "", "key prefix for the metadata record (default <archive name>:)")
	fs.BoolVarP(&cfg.force, "force", "f", false, "extract even if the cache is valid")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "log progress to stderr")
	fs.IntVar(&cfg.maxAttempts, "max-attempts", dexcache.DefaultMaxAttempts, "extraction attempts per segment")
	fs.BoolVar(&cfg.tolerate, "tolerate-store-errors", false, "return artifacts even if the metadata commit fails")
	fs.DurationVar(&cfg.busyTimeout, "busy-timeout", sqlite.DefaultBusyTimeout, "how long to wait for another process holding the database")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if cfg.archive == "" || cfg.cacheDir == "" {
		return config{}, errors.New("--archive and --cache-dir are required")
	}
	cfg.cacheDir = filepath.Clean(cfg.cacheDir)
	if cfg.dbPath == "" {
		cfg.dbPath = cfg.cacheDir + ".db"
	}
	if !fs.Changed("namespace") {
		cfg.namespace = filepath.Base(cfg.archive) + ":"
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg.verbose)

	if err := checkOutside(cfg.cacheDir, cfg.dbPath); err != nil {
		return err
	}

	st, err := sqlite.Open(cfg.dbPath, sqlite.WithBusyTimeout(cfg.busyTimeout))
	if err != nil {
		return err
	}
	defer st.Close()

	ex, err := dexcache.Open(cfg.archive, cfg.cacheDir, st,
		dexcache.WithLogger(logger),
		dexcache.WithMaxAttempts(cfg.maxAttempts),
		dexcache.WithTolerateStoreErrors(cfg.tolerate),
		dexcache.WithProgress(func(ev dexcache.ProgressEvent) {
			logger.Debug("progress", "stage", ev.Stage.String(), "index", ev.Index, "attempt", ev.Attempt)
		}),
	)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ex.Close(); closeErr != nil {
			logger.Warn("failed to release cache lock", "error", closeErr)
		}
	}()

	artifacts, err := ex.Load(ctx, cfg.namespace, cfg.force)
	if err != nil {
		return err
	}
	return printArtifacts(stdout, artifacts)
}

// checkOutside returns an error unless dbPath is provably outside cacheDir.
// Extraction clears the cache directory, database included.
func checkOutside(cacheDir, dbPath string) error {
	absCache, err := filepath.Abs(cacheDir)
	if err != nil {
		return fmt.Errorf("resolve cache dir: %w", err)
	}
	absDB, err := filepath.Abs(dbPath)
	if err != nil {
		return fmt.Errorf("resolve metadata database: %w", err)
	}
	rel, err := filepath.Rel(absCache, absDB)
	if err != nil {
		return fmt.Errorf("cannot place metadata database %s relative to cache directory %s: %w", dbPath, cacheDir, err)
	}
	if filepath.IsLocal(rel) || rel == "." {
		return fmt.Errorf("metadata database %s must be outside the cache directory", dbPath)
	}
	return nil
}

func printArtifacts(w io.Writer, artifacts []dexcache.Artifact) error {
	for _, a := range artifacts {
		info, err := os.Stat(a.Path)
		if err != nil {
			return err
		}
		dgst, err := a.Digest()
		if err != nil {
			return err
		}
		size := humanize.IBytes(uint64(max(info.Size(), 0))) //nolint:gosec // clamped above zero
		if _, err := fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", a.Index, a.Path, size, a.Checksum, dgst); err != nil {
			return err
		}
	}
	return nil
}
