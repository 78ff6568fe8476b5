package dexcache

// ProgressEvent represents a progress update during Load.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Index is the segment being processed, or zero.
	Index int

	// Path is the artifact currently being processed, if applicable.
	Path string

	// Attempt is the extraction attempt number, starting at 1.
	Attempt int

	// Done is the number of artifacts completed in the current stage.
	Done int
}

// ProgressStage identifies the current phase of a Load.
type ProgressStage uint8

const (
	// StageValidating indicates existing artifacts are being checked.
	StageValidating ProgressStage = iota

	// StagePurging indicates the cache directory is being cleared.
	StagePurging

	// StageExtracting indicates a segment is being extracted.
	StageExtracting

	// StagePersisting indicates the metadata record is being committed.
	StagePersisting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageValidating:
		return "validating"
	case StagePurging:
		return "purging"
	case StageExtracting:
		return "extracting"
	case StagePersisting:
		return "persisting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during Load.
type ProgressFunc func(ProgressEvent)
