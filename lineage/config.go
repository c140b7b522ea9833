package lineage

import (
	"runtime"
)

const (
	// TrackTableName is the CTC track table file name
	TrackTableName = "man_track.txt"
	// ResultTrackTableName is the alternative track table name used by CTC result folders
	ResultTrackTableName = "res_track.txt"
	// MaskPrefix prefixes every relabeled mask file
	MaskPrefix = "man_track"
	// MaskExt is extension of relabeled mask files
	MaskExt = ".tif"
	// ResultMaskPrefix prefixes mask files next to res_track.txt
	ResultMaskPrefix = "mask"
)

// ExportConfig configures CTC export.
type ExportConfig struct {
	// Number of frames relabeled concurrently. Values < 1 mean runtime.NumCPU()
	Workers int
	// Deflate-compress mask files
	Compress bool
	// Minimum number of digits in mask file names. Default 3
	MinPadWidth int
}

// DefaultExportConfig returns default CTC export configuration
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Workers:     runtime.NumCPU(),
		Compress:    true,
		MinPadWidth: 3,
	}
}

// EvaluationConfig configures reference-free evaluation.
type EvaluationConfig struct {
	// Tracks shorter than this number of frames are counted as suspicious. Default 3
	ShortTrackThreshold int
}

// DefaultEvaluationConfig returns default evaluation configuration
func DefaultEvaluationConfig() EvaluationConfig {
	return EvaluationConfig{
		ShortTrackThreshold: 3,
	}
}
