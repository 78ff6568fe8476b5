// Package checksum computes integrity checksums of zip archives.
package checksum

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zip"
)

// NoValue is the sentinel stored when no checksum is known.
// Zip never returns it.
const NoValue int64 = -1

// Zip computes a checksum over every entry in the central directory of the
// zip archive at path.
//
// Each entry contributes a hash of its name, CRC-32, sizes, compression method
// and modification stamp. The per-entry hashes are summed, so the result does
// not depend on entry order. Entry content is covered through the CRC-32
// recorded by the archive writer.
func Zip(path string) (int64, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return NoValue, fmt.Errorf("checksum %s: %w", path, err)
	}
	defer r.Close()

	var sum uint64
	var buf [26]byte
	for _, f := range r.File {
		h := xxhash.New()
		_, _ = h.WriteString(f.Name) //nolint:errcheck // hash writes never fail
		binary.LittleEndian.PutUint32(buf[0:4], f.CRC32)
		binary.LittleEndian.PutUint64(buf[4:12], f.UncompressedSize64)
		binary.LittleEndian.PutUint64(buf[12:20], f.CompressedSize64)
		binary.LittleEndian.PutUint16(buf[20:22], f.Method)
		binary.LittleEndian.PutUint16(buf[22:24], f.ModifiedDate)
		binary.LittleEndian.PutUint16(buf[24:26], f.ModifiedTime)
		_, _ = h.Write(buf[:]) //nolint:errcheck // hash writes never fail
		sum += h.Sum64()
	}

	return adjust(int64(sum)), nil //nolint:gosec // wraparound is part of the checksum
}

// adjust moves a raw checksum off the NoValue sentinel.
func adjust(v int64) int64 {
	if v == NoValue {
		return v - 1
	}
	return v
}
