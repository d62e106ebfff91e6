package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

const (
	appName    = "statevault"
	appVersion = "1.4.2"
)

// MetadataStrategy captures a snapshot of the run: host and application
// identity, the other components' summaries, and the sanitized configuration.
// It runs last so the component summaries are final.
type MetadataStrategy struct {
	cfg *config.Config
	log zerolog.Logger
}

func NewMetadataStrategy(cfg *config.Config, log zerolog.Logger) *MetadataStrategy {
	return &MetadataStrategy{cfg: cfg, log: log}
}

type backupMetadata struct {
	BackupID    string                       `json:"backup_id"`
	Type        models.BackupType            `json:"type"`
	BaselineID  string                       `json:"baseline_id,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	Hostname    string                       `json:"hostname"`
	Application string                       `json:"application"`
	Version     string                       `json:"version"`
	Components  map[string]*models.Component `json:"components"`
	Config      map[string]interface{}       `json:"config"`
}

// Write serializes the snapshot to <typeDir>/<backupID>.meta.json and returns
// its component record.
func (s *MetadataStrategy) Write(b *models.Backup) (*models.Component, error) {
	start := time.Now()
	hostname, _ := os.Hostname()

	meta := backupMetadata{
		BackupID:    b.ID,
		Type:        b.Type,
		BaselineID:  b.BaselineID,
		CreatedAt:   b.StartTime,
		Hostname:    hostname,
		Application: appName,
		Version:     appVersion,
		Components: map[string]*models.Component{
			models.ComponentDatabase: b.Components[models.ComponentDatabase],
			models.ComponentFiles:    b.Components[models.ComponentFiles],
		},
		Config: s.sanitizedConfig(),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, err
	}

	dest := filepath.Join(s.cfg.BackupDir, b.TypeDir(), b.ID+".meta.json")
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		return nil, err
	}

	comp, err := artifactComponent(dest, s.cfg.ChecksumAlgorithm, start)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	return comp, nil
}

// sanitizedConfig is the active configuration minus secrets.
func (s *MetadataStrategy) sanitizedConfig() map[string]interface{} {
	return map[string]interface{}{
		"backup_dir":         s.cfg.BackupDir,
		"backup_paths":       s.cfg.BackupPaths,
		"max_backups":        s.cfg.MaxBackups,
		"compression":        s.cfg.Compression,
		"encryption":         s.cfg.Encryption,
		"checksum_algorithm": s.cfg.ChecksumAlgorithm,
		"schedule_interval":  s.cfg.ScheduleInterval.String(),
		"retention":          s.cfg.Retention,
		"database_host":      s.cfg.Database.Host,
		"database_name":      s.cfg.Database.Name,
		"sync_provider":      s.cfg.Sync.Provider,
		"sync_bucket":        s.cfg.Sync.Bucket,
	}
}
