package models

import "time"

// BackupType identifies the kind of backup run
type BackupType string

const (
	BackupTypeFull        BackupType = "full"
	BackupTypeIncremental BackupType = "incremental"
)

// BackupStatus tracks the lifecycle of a backup or recovery run
type BackupStatus string

const (
	BackupStatusRunning   BackupStatus = "running"
	BackupStatusCompleted BackupStatus = "completed"
	BackupStatusFailed    BackupStatus = "failed"
)

// ComponentStatus tracks one strategy's progress within a run
type ComponentStatus string

const (
	ComponentStatusPending   ComponentStatus = "pending"
	ComponentStatusCompleted ComponentStatus = "completed"
	ComponentStatusFailed    ComponentStatus = "failed"
)

// Component names used as keys in Backup.Components
const (
	ComponentDatabase = "database"
	ComponentFiles    = "files"
	ComponentMetadata = "metadata"
)

// Component is the result of one backup strategy's execution. Size and
// Checksum always describe the file currently at Location: every pipeline
// stage that rewrites the artifact re-records them.
type Component struct {
	Status       ComponentStatus `json:"status"`
	Size         int64           `json:"size"`
	Checksum     string          `json:"checksum,omitempty"`
	Location     string          `json:"location,omitempty"`
	Duration     int64           `json:"duration_ms"`
	ChangedFiles []string        `json:"changed_files,omitempty"`
	Paths        []string        `json:"paths,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// Backup represents one orchestrated backup attempt. It is mutated in place
// while running and becomes immutable once completed or failed.
type Backup struct {
	ID            string                `json:"id"`
	Type          BackupType            `json:"type"`
	BaselineID    string                `json:"baseline_id,omitempty"`
	Status        BackupStatus          `json:"status"`
	Components    map[string]*Component `json:"components"`
	TotalSize     int64                 `json:"total_size"`
	Compressed    bool                  `json:"compressed"`
	Encrypted     bool                  `json:"encrypted"`
	CloudLocation string                `json:"cloud_location,omitempty"`
	StartTime     time.Time             `json:"start_time"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
	Duration      int64                 `json:"duration_ms"`
	Error         string                `json:"error,omitempty"`
}

// TypeDir returns the backup subdirectory the run's metadata artifact lives in.
func (b *Backup) TypeDir() string {
	return string(b.Type)
}

// Recovery is the result of one restore attempt. Append-only: never mutated
// after completion.
type Recovery struct {
	ID          string                `json:"id"`
	BackupID    string                `json:"backup_id"`
	Status      BackupStatus          `json:"status"`
	Components  map[string]*Component `json:"components"`
	StartTime   time.Time             `json:"start_time"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Duration    int64                 `json:"duration_ms"`
	Error       string                `json:"error,omitempty"`
}

// RetentionPolicy holds the tiered retention windows: backups inside the
// daily window are always kept, older backups survive only as weekly samples,
// and nothing outlives the monthly window.
type RetentionPolicy struct {
	Daily   int `json:"daily" yaml:"daily"`
	Weekly  int `json:"weekly" yaml:"weekly"`
	Monthly int `json:"monthly" yaml:"monthly"`
}

// RestoreOptions selects what a restore applies and where.
type RestoreOptions struct {
	// Components limits the restore to the named components.
	// Empty means database and files.
	Components []string `json:"components,omitempty"`
	// Destination redirects the files component into an alternate root
	// (for test restores into a scratch directory). Empty means "/".
	Destination string `json:"destination,omitempty"`
}
