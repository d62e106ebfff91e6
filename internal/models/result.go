package models

// BackupResult is the envelope returned by backup operations. Errors never
// cross the service boundary as raw values; callers check Success.
type BackupResult struct {
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
	Backup  *Backup `json:"backup,omitempty"`
}

// RecoveryResult is the envelope returned by restore operations.
type RecoveryResult struct {
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Recovery *Recovery `json:"recovery,omitempty"`
}

// OperationResult is the envelope for operations with no record payload
// (delete, scheduler control, configuration updates).
type OperationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StatusResult answers status queries with the active runs and recent history.
type StatusResult struct {
	Success          bool        `json:"success"`
	Running          []string    `json:"running"`
	Backups          []*Backup   `json:"backups"`
	Recoveries       []*Recovery `json:"recoveries"`
	SchedulerRunning bool        `json:"scheduler_running"`
	TotalSize        int64       `json:"total_size"`
}
