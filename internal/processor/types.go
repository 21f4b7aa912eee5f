package processor

import "arstate/internal/media"

type Job struct {
	Index   int
	Path    string
	RelPath string
	Display string
}

// Loaded is the outcome of reading and classifying one file.
type Loaded struct {
	Job       Job
	Source    media.Source
	Supported bool
	Err       error
}

type Result struct {
	Source  string
	Kind    media.SourceKind
	Outputs int
	Bytes   int64
	Err     error
}

type Summary struct {
	Total       int
	Processed   int
	Errors      int
	Ignored     int
	InputBytes  int64
	OutputBytes int64
}

type Report struct {
	Summary  Summary
	Results  []Result
	Assembly media.Assembly
}

// ProgressUpdate is one increment of a running conversion. State is
// StateIdle unless the update marks a lifecycle change.
type ProgressUpdate struct {
	State          media.State
	TotalDelta     int
	ProcessedDelta int
	ErrorDelta     int
	BytesDelta     int64
	Current        string
}
