package dexcache

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/dexcache/internal/checksum"
	"github.com/meigma/dexcache/internal/lock"
)

// Naming of segments inside the container and of extracted artifacts.
const (
	// SegmentPrefix and SegmentSuffix surround the index of a payload
	// segment entry in the container, as in "classes2.dex".
	SegmentPrefix = "classes"
	SegmentSuffix = ".dex"

	// ArtifactExt and ArtifactSuffix surround the index in an artifact file
	// name, as in "app.apk.classes2.zip".
	ArtifactExt    = ".classes"
	ArtifactSuffix = ".zip"

	// ArtifactEntryName is the name of the only entry inside an artifact.
	ArtifactEntryName = "classes.dex"

	// FirstSecondaryIndex is the first managed segment index. Index 1 is
	// the primary payload and is never extracted.
	FirstSecondaryIndex = 2

	// DefaultMaxAttempts is the default number of extraction attempts per
	// segment.
	DefaultMaxAttempts = 3

	// LockFileName is the lock file kept in the cache directory. Purging
	// never removes it.
	LockFileName = lock.FileName
)

// SegmentName returns the container entry name of segment i.
func SegmentName(i int) string {
	return SegmentPrefix + strconv.Itoa(i) + SegmentSuffix
}

// ArtifactName returns the file name of the artifact for segment i of the
// archive whose base name is archiveBase.
func ArtifactName(archiveBase string, i int) string {
	return archiveBase + ArtifactExt + strconv.Itoa(i) + ArtifactSuffix
}

// Artifact is one extracted segment in the cache directory.
type Artifact struct {
	// Path is the artifact file path.
	Path string

	// Index is the segment index, starting at FirstSecondaryIndex.
	Index int

	// Checksum is the artifact checksum, or checksum.NoValue (-1) when not
	// yet computed.
	Checksum int64

	// ModTime is the artifact file's modification time in Unix milliseconds.
	ModTime int64
}

func newArtifact(dir, archiveBase string, i int) Artifact {
	return Artifact{
		Path:     filepath.Join(dir, ArtifactName(archiveBase, i)),
		Index:    i,
		Checksum: checksum.NoValue,
	}
}

// Digest returns the sha256 content digest of the artifact file.
func (a Artifact) Digest() (digest.Digest, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.FromReader(f)
}

// Paths returns the file paths of artifacts, in order.
func Paths(artifacts []Artifact) []string {
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path
	}
	return paths
}
