package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

const statusHistoryLimit = 50

// BackupService is the operation contract consumed by the API layer. Every
// method returns a plain result envelope; internal errors are converted at
// this boundary and never thrown across it.
type BackupService struct {
	store     *config.Store
	engine    *Engine
	restorer  *Restorer
	scheduler *Scheduler
	history   *HistoryStore
	log       zerolog.Logger
}

// NewBackupService wires the engine with the real process runner.
func NewBackupService(cfg *config.Config, log zerolog.Logger) (*BackupService, error) {
	return NewBackupServiceWithRunner(cfg, ExecRunner{}, log)
}

// NewBackupServiceWithRunner lets callers substitute the external process
// adapter.
func NewBackupServiceWithRunner(cfg *config.Config, runner CommandRunner, log zerolog.Logger) (*BackupService, error) {
	if err := ensureLayout(cfg.BackupDir); err != nil {
		return nil, err
	}
	history, err := NewHistoryStore(cfg.BackupDir, log)
	if err != nil {
		return nil, err
	}
	target, err := NewSyncTarget(&cfg.Sync, log)
	if err != nil {
		return nil, err
	}

	store := config.NewStore(cfg)
	engine := NewEngine(store, runner, history, target, log)
	return &BackupService{
		store:     store,
		engine:    engine,
		restorer:  NewRestorer(store, runner, history, log),
		scheduler: NewScheduler(engine, cfg.ScheduleInterval, log),
		history:   history,
		log:       log,
	}, nil
}

// Engine exposes the orchestrator for observer registration.
func (s *BackupService) Engine() *Engine {
	return s.engine
}

// History exposes the history store for status/listing collaborators.
func (s *BackupService) History() *HistoryStore {
	return s.history
}

func (s *BackupService) CreateFullBackup(ctx context.Context) *models.BackupResult {
	b, err := s.engine.RunFull(ctx)
	if err != nil {
		return &models.BackupResult{Success: false, Error: err.Error(), Backup: b}
	}
	return &models.BackupResult{Success: true, Backup: b}
}

func (s *BackupService) CreateIncrementalBackup(ctx context.Context) *models.BackupResult {
	b, err := s.engine.RunIncremental(ctx)
	if err != nil {
		return &models.BackupResult{Success: false, Error: err.Error(), Backup: b}
	}
	return &models.BackupResult{Success: true, Backup: b}
}

func (s *BackupService) RestoreFromBackup(ctx context.Context, backupID string, opts models.RestoreOptions) *models.RecoveryResult {
	rec, err := s.restorer.Restore(ctx, backupID, opts)
	if err != nil {
		return &models.RecoveryResult{Success: false, Error: err.Error(), Recovery: rec}
	}
	return &models.RecoveryResult{Success: true, Recovery: rec}
}

func (s *BackupService) DeleteBackup(backupID string) *models.OperationResult {
	if _, ok := s.history.Get(backupID); !ok {
		err := &NotFoundError{ID: backupID}
		return &models.OperationResult{Success: false, Error: err.Error()}
	}
	for _, id := range s.engine.ActiveBackups() {
		if id == backupID {
			return &models.OperationResult{Success: false, Error: fmt.Sprintf("backup %s is still running", backupID)}
		}
	}
	if err := s.engine.Retention().Remove(backupID); err != nil {
		return &models.OperationResult{Success: false, Error: err.Error()}
	}
	return &models.OperationResult{Success: true, Message: fmt.Sprintf("backup %s deleted", backupID)}
}

func (s *BackupService) GetBackupStatus() *models.StatusResult {
	backups := s.history.Recent(statusHistoryLimit)

	var totalSize int64
	for _, b := range s.history.List() {
		if b.Status == models.BackupStatusCompleted {
			totalSize += b.TotalSize
		}
	}

	return &models.StatusResult{
		Success:          true,
		Running:          s.engine.ActiveBackups(),
		Backups:          backups,
		Recoveries:       s.history.RecentRecoveries(statusHistoryLimit),
		SchedulerRunning: s.scheduler.Running(),
		TotalSize:        totalSize,
	}
}

func (s *BackupService) StartScheduledBackups() *models.OperationResult {
	s.scheduler.Start()
	return &models.OperationResult{Success: true, Message: "scheduled backups started"}
}

func (s *BackupService) StopScheduledBackups() *models.OperationResult {
	s.scheduler.Stop()
	return &models.OperationResult{Success: true, Message: "scheduled backups stopped"}
}

// UpdateConfiguration applies a partial configuration update. Unknown keys
// and mistyped values are rejected without touching the configuration; valid
// keys are applied in one write-locked pass, and in-flight runs keep the
// snapshot they started with.
func (s *BackupService) UpdateConfiguration(updates map[string]interface{}) *models.OperationResult {
	apply, scheduleInterval, err := validateUpdates(updates)
	if err != nil {
		return &models.OperationResult{Success: false, Error: err.Error()}
	}

	s.store.Update(func(cfg *config.Config) {
		for _, fn := range apply {
			fn(cfg)
		}
	})
	if scheduleInterval > 0 {
		s.scheduler.SetInterval(scheduleInterval)
	}

	s.log.Info().Int("keys", len(updates)).Msg("configuration updated")
	return &models.OperationResult{Success: true, Message: "configuration updated"}
}

// validateUpdates checks every key before anything is applied, so a bad key
// cannot leave the configuration half-updated. A schedule_interval change is
// returned separately so the scheduler can be restarted outside the config
// write lock.
func validateUpdates(updates map[string]interface{}) ([]func(*config.Config), time.Duration, error) {
	apply := make([]func(*config.Config), 0, len(updates))
	var scheduleInterval time.Duration

	for key, value := range updates {
		key, value := key, value
		switch key {
		case "max_backups":
			n, err := asInt(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.MaxBackups = n })
		case "schedule_interval":
			str, ok := value.(string)
			if !ok {
				return nil, 0, configErrorf("configuration key %q expects a duration string", key)
			}
			d, err := time.ParseDuration(str)
			if err != nil {
				return nil, 0, configErrorf("invalid duration for %q: %v", key, err)
			}
			scheduleInterval = d
			apply = append(apply, func(cfg *config.Config) { cfg.ScheduleInterval = d })
		case "compression":
			v, err := asBool(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.Compression = v })
		case "encryption":
			v, err := asBool(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.Encryption = v })
		case "encryption_key":
			str, ok := value.(string)
			if !ok {
				return nil, 0, configErrorf("configuration key %q expects a string", key)
			}
			apply = append(apply, func(cfg *config.Config) { cfg.EncryptionKey = str })
		case "checksum_algorithm":
			str, ok := value.(string)
			if !ok {
				return nil, 0, configErrorf("configuration key %q expects a string", key)
			}
			if _, err := newHash(str); err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.ChecksumAlgorithm = str })
		case "backup_paths":
			paths, err := asStringList(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.BackupPaths = paths })
		case "retention_daily":
			n, err := asInt(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.Retention.Daily = n })
		case "retention_weekly":
			n, err := asInt(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.Retention.Weekly = n })
		case "retention_monthly":
			n, err := asInt(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.Retention.Monthly = n })
		case "protect_baselines":
			v, err := asBool(key, value)
			if err != nil {
				return nil, 0, err
			}
			apply = append(apply, func(cfg *config.Config) { cfg.ProtectBaselines = v })
		default:
			return nil, 0, configErrorf("unknown configuration key %q", key)
		}
	}
	return apply, scheduleInterval, nil
}

func asInt(key string, value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case float64: // JSON numbers decode as float64
		return int(v), nil
	default:
		return 0, configErrorf("configuration key %q expects an integer", key)
	}
}

func asBool(key string, value interface{}) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, configErrorf("configuration key %q expects a boolean", key)
	}
	return v, nil
}

func asStringList(key string, value interface{}) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, configErrorf("configuration key %q expects a list of strings", key)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, configErrorf("configuration key %q expects a list of strings", key)
	}
}
