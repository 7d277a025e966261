package bsonsplit

import "github.com/meigma/bsonsplit/core"

// Re-export progress types from core package.
type (
	// ProgressEvent represents a progress update during scan, split or export.
	ProgressEvent = core.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = core.ProgressStage

	// ProgressFunc receives progress updates during operations.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = core.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageScanning indicates the archive is being walked.
	StageScanning = core.StageScanning

	// StageSplitting indicates categories are being partitioned.
	StageSplitting = core.StageSplitting

	// StageExporting indicates samples are being written to a sink.
	StageExporting = core.StageExporting
)
