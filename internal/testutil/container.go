package testutil

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// ZipEntry describes one entry written by WriteZip.
type ZipEntry struct {
	Name     string
	Data     []byte
	Modified time.Time
	// Method is the zip compression method. Zero stores the entry uncompressed.
	Method uint16
}

// SegmentTime is the modification time given to generated segments.
var SegmentTime = time.Date(2024, time.March, 14, 15, 9, 26, 0, time.UTC)

// WriteZip writes entries, in order, to a new zip archive at path.
func WriteZip(tb testing.TB, path string, entries []ZipEntry) {
	tb.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: e.Method, Modified: e.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			tb.Fatalf("create zip entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			tb.Fatalf("write zip entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}

// SegmentData returns deterministic content for segment index i.
// Different seeds produce different content for the same index.
func SegmentData(i, seed int) []byte {
	return bytes.Repeat([]byte(fmt.Sprintf("dex\n035 segment=%d seed=%d\n", i, seed)), 64)
}

// WriteContainer writes a container archive at path holding the primary
// payload classes.dex, secondary segments classes2.dex through
// classes<segments>.dex, and an unrelated resource entry.
// It returns the content written for each secondary segment, keyed by index.
func WriteContainer(tb testing.TB, path string, segments, seed int) map[int][]byte {
	tb.Helper()

	entries := []ZipEntry{
		{Name: "AndroidManifest.xml", Data: []byte("<manifest/>"), Modified: SegmentTime, Method: zip.Deflate},
		{Name: "classes.dex", Data: SegmentData(1, seed), Modified: SegmentTime, Method: zip.Deflate},
	}
	contents := make(map[int][]byte, segments)
	for i := 2; i <= segments; i++ {
		data := SegmentData(i, seed)
		contents[i] = data
		entries = append(entries, ZipEntry{
			Name:     fmt.Sprintf("classes%d.dex", i),
			Data:     data,
			Modified: SegmentTime,
			Method:   zip.Deflate,
		})
	}
	entries = append(entries, ZipEntry{Name: "res/raw/blob.bin", Data: []byte("resource"), Modified: SegmentTime})
	WriteZip(tb, path, entries)
	return contents
}
