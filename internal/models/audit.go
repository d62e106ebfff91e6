package models

import (
	"time"

	"gorm.io/gorm"
)

// OperationAction is the kind of backup operation an audit row records
type OperationAction string

const (
	ActionCreateFull        OperationAction = "create_full"
	ActionCreateIncremental OperationAction = "create_incremental"
	ActionRestore           OperationAction = "restore"
	ActionDelete            OperationAction = "delete"
	ActionSchedulerStart    OperationAction = "scheduler_start"
	ActionSchedulerStop     OperationAction = "scheduler_stop"
	ActionConfigUpdate      OperationAction = "config_update"
)

// BackupOperation is the audit row the API layer persists for every backup
// operation it triggers. The core engine never writes these; it only hands
// back the backup/recovery ids the row references.
type BackupOperation struct {
	ID         uint            `gorm:"column:id;primaryKey" json:"id"`
	Action     OperationAction `gorm:"column:action;size:50;not null;index" json:"action"`
	BackupID   string          `gorm:"column:backup_id;size:64;index" json:"backup_id"`
	RecoveryID string          `gorm:"column:recovery_id;size:64" json:"recovery_id"`
	Actor      string          `gorm:"column:actor;size:100" json:"actor"`
	Success    bool            `gorm:"column:success" json:"success"`
	Message    string          `gorm:"column:message;size:500" json:"message"`
	IPAddress  string          `gorm:"column:ip_address;size:50" json:"ip_address"`
	CreatedAt  time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

// TableName specifies the table name for BackupOperation
func (BackupOperation) TableName() string {
	return "backup_operations"
}

// AutoMigrate creates the audit table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&BackupOperation{})
}
