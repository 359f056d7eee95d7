package model

import "time"

// RunStatus represents the current state of a planning run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusIngesting RunStatus = "ingesting"
	RunStatusGeocoding RunStatus = "geocoding"
	RunStatusRouting   RunStatus = "routing"
	RunStatusComposing RunStatus = "composing"
	RunStatusPackaging RunStatus = "packaging"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Run records one pipeline execution for the run-history store.
type Run struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	InputPath string     `json:"input_path"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a completed run.
type RunResult struct {
	StopCount       int     `json:"stop_count"`
	LegCount        int     `json:"leg_count"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
	ArchivePath     string  `json:"archive_path"`
	ErrorKind       string  `json:"error_kind,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// StageStatus represents the state of a single pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
)

// RunStage records one pipeline stage within a run.
type RunStage struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Completed  int         `json:"completed"`
	Total      int         `json:"total"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
	StartedAt  time.Time   `json:"started_at"`
}
