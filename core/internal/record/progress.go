package record

// ProgressEvent represents a progress update during scan, split or export.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// RecordsDone is the number of records (or rows) completed.
	RecordsDone int

	// RecordsTotal is the expected number of records.
	// Zero indicates the total is unknown.
	RecordsTotal int

	// BytesDone is the number of archive bytes consumed so far.
	BytesDone uint64
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageScanning indicates the archive is being walked.
	StageScanning ProgressStage = iota

	// StageSplitting indicates categories are being partitioned.
	StageSplitting

	// StageExporting indicates samples are being written to a sink.
	StageExporting
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageSplitting:
		return "splitting"
	case StageExporting:
		return "exporting"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
