package history

import "time"

// Run statuses
const (
	RunInProgress = "in_progress"
	RunSucceeded  = "success"
	RunPartial    = "partial"
	RunFailed     = "failed"
	RunCancelled  = "cancelled"
)

// RunRecord is one invocation of the multi-configuration build.
type RunRecord struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"` // in_progress, success, partial, failed, cancelled
	Version     string     `json:"version"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	ArchivePath *string    `json:"archive_path,omitempty"`
}

// BuildRecord is one configuration's outcome within a run.
type BuildRecord struct {
	ID              int64     `json:"id"`
	RunID           string    `json:"run_id"`
	OutputName      string    `json:"output"`
	Mode            int       `json:"mode"`
	Identifier      string    `json:"identifier"`
	Status          string    `json:"status"` // success, failed, no_artifact, skipped
	Version         *string   `json:"version,omitempty"`
	SizeBytes       *int64    `json:"size_bytes,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	LogPath         string    `json:"log_path"`
	ErrorMessage    *string   `json:"error,omitempty"`
	BuiltAt         time.Time `json:"built_at"`
}

// OutputStatus is the latest state of one configured output.
type OutputStatus struct {
	OutputName    string        `json:"output"`
	LatestBuild   *BuildRecord  `json:"latest_build,omitempty"`
	RecentHistory []BuildRecord `json:"recent_history"`
}
