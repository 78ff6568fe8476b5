// Package archive reads container archives and writes the single-entry
// archives that wrap extracted segments.
package archive

import (
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const copyBufferSize = 16 << 10

// Reader provides name lookups over an open zip container.
type Reader struct {
	rc    *zip.ReadCloser
	files map[string]*zip.File
}

// Open opens the zip container at path.
//
// Entries compressed with zstd (zip method 93) are readable in addition to
// the standard store and deflate methods.
func Open(path string) (*Reader, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	rc.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())

	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		if _, dup := files[f.Name]; dup {
			continue
		}
		files[f.Name] = f
	}
	return &Reader{rc: rc, files: files}, nil
}

// Lookup returns the entry with the given name. When the archive holds
// duplicate names the first entry wins.
func (r *Reader) Lookup(name string) (*zip.File, bool) {
	f, ok := r.files[name]
	return f, ok
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.rc.Close()
}

// WriteSingle writes a zip archive to w holding exactly one deflated entry
// called name, with the given modification time and the bytes read from src.
func WriteSingle(w io.Writer, name string, modified time.Time, src io.Reader) error {
	zw := zip.NewWriter(w)
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(fw, src, buf); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

// CopyEntry writes the content of f into a single-entry archive on w, renamed
// to name and keeping f's modification time.
func CopyEntry(w io.Writer, f *zip.File, name string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	return WriteSingle(w, name, f.Modified, rc)
}
