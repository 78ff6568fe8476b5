// Package dexcache extracts the numbered payload segments of a zip container
// into an on-disk cache and keeps that cache valid across runs.
//
// A container such as an application package holds a primary payload
// classes.dex and secondary segments classes2.dex, classes3.dex and so on.
// Each secondary segment is copied into its own small archive
// ("<archive>.classes<N>.zip", holding a single classes.dex entry) in the
// cache directory. A [store.Store] records the archive timestamp and
// checksum and the checksum and modification time of every artifact, under a
// caller-chosen namespace prefix.
//
// # Usage
//
//	st, err := sqlite.Open("/var/cache/app/metadata.db")
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//
//	ex, err := dexcache.Open("/data/app/base.apk", "/var/cache/app/secondary", st)
//	if err != nil {
//	    return err
//	}
//	defer ex.Close()
//
//	artifacts, err := ex.Load(ctx, "base.apk:", false)
//
// The metadata database must not live inside the cache directory: every
// extraction pass deletes everything in it except the lock file.
//
// # Guarantees
//
// Open takes an exclusive advisory lock on a file in the cache directory and
// holds it until Close, so extractors for one directory never run
// concurrently, across processes included. Artifacts are written to a temp
// file, marked read-only and renamed into place; a crash leaves either no
// artifact or a complete one. The record is committed in one atomic write
// after all segments are extracted.
package dexcache
