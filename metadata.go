package dexcache

import (
	"context"
	"strconv"

	"github.com/meigma/dexcache/store"
)

// Key suffixes of the metadata record. Each is appended to the caller's
// namespace prefix.
const (
	keyTimestamp  = "timestamp"
	keyChecksum   = "crc"
	keyCount      = "dex.number"
	keySegmentCRC = "dex.crc."
	keySegmentMod = "dex.time."
)

// metadata reads and writes the record of one namespace.
type metadata struct {
	store  store.Store
	prefix string
}

func (m metadata) key(suffix string) string {
	return m.prefix + suffix
}

func (m metadata) segmentKey(suffix string, i int) string {
	return m.prefix + suffix + strconv.Itoa(i)
}

// readLong returns the value stored under the namespaced suffix.
func (m metadata) readLong(ctx context.Context, suffix string) (int64, bool, error) {
	return m.store.GetInt64(ctx, m.key(suffix))
}

// archive returns the stored archive timestamp and checksum. ok is false
// if either is absent.
func (m metadata) archive(ctx context.Context) (timestamp, sum int64, ok bool, err error) {
	timestamp, tsOK, err := m.readLong(ctx, keyTimestamp)
	if err != nil {
		return 0, 0, false, err
	}
	sum, sumOK, err := m.readLong(ctx, keyChecksum)
	if err != nil {
		return 0, 0, false, err
	}
	return timestamp, sum, tsOK && sumOK, nil
}

// count returns the stored segment count, defaulting to 1 (no secondary
// segments) when absent.
func (m metadata) count(ctx context.Context) (int, error) {
	n, ok, err := m.readLong(ctx, keyCount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return int(n), nil
}

// segment returns the stored checksum and modification time of segment i.
func (m metadata) segment(ctx context.Context, i int) (sum, modTime int64, ok bool, err error) {
	sum, sumOK, err := m.store.GetInt64(ctx, m.segmentKey(keySegmentCRC, i))
	if err != nil {
		return 0, 0, false, err
	}
	modTime, modOK, err := m.store.GetInt64(ctx, m.segmentKey(keySegmentMod, i))
	if err != nil {
		return 0, 0, false, err
	}
	return sum, modTime, sumOK && modOK, nil
}

// record is a complete metadata record written after an extraction pass.
type record struct {
	timestamp int64
	checksum  int64
	artifacts []Artifact
}

// writeAll commits every key of r in one atomic store write.
func (m metadata) writeAll(ctx context.Context, r record) error {
	values := make(map[string]int64, 3+2*len(r.artifacts))
	values[m.key(keyTimestamp)] = r.timestamp
	values[m.key(keyChecksum)] = r.checksum
	values[m.key(keyCount)] = int64(len(r.artifacts) + 1)
	for _, a := range r.artifacts {
		values[m.segmentKey(keySegmentCRC, a.Index)] = a.Checksum
		values[m.segmentKey(keySegmentMod, a.Index)] = a.ModTime
	}
	return m.store.Commit(ctx, values)
}
