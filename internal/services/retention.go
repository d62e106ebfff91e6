package services

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// RetentionManager deletes historical backups that fall outside the tiered
// retention policy, removing on-disk artifacts and history entries together.
type RetentionManager struct {
	store   *config.Store
	history *HistoryStore
	log     zerolog.Logger
}

func NewRetentionManager(store *config.Store, history *HistoryStore, log zerolog.Logger) *RetentionManager {
	return &RetentionManager{store: store, history: history, log: log}
}

// Cleanup evaluates every historical backup against the retention policy and
// deletes the ones that fall outside it. Backups in the active set are never
// touched: a run still writing its artifacts must not race the cleaner.
// When baseline protection is on, a full backup serving as the baseline of a
// retained incremental survives even past its window.
func (m *RetentionManager) Cleanup(active map[string]struct{}) error {
	cfg := m.store.Snapshot()
	now := time.Now()
	backups := m.history.List()

	eligible := make(map[string]bool)
	for _, b := range backups {
		if _, running := active[b.ID]; running {
			continue
		}
		if expired(cfg.Retention, b, now) {
			eligible[b.ID] = true
		}
	}

	// Enforce the retained-backup cap on completed backups beyond the policy
	// windows. List() is most-recent-first, so everything past the cap is the
	// oldest.
	if cfg.MaxBackups > 0 {
		kept := 0
		for _, b := range backups {
			if b.Status != models.BackupStatusCompleted || eligible[b.ID] {
				continue
			}
			if _, running := active[b.ID]; running {
				continue
			}
			kept++
			if kept > cfg.MaxBackups {
				eligible[b.ID] = true
			}
		}
	}

	if cfg.ProtectBaselines {
		for _, b := range backups {
			if b.Type != models.BackupTypeIncremental || b.BaselineID == "" || eligible[b.ID] {
				continue
			}
			if eligible[b.BaselineID] {
				m.log.Info().Str("backup_id", b.BaselineID).Str("dependent", b.ID).
					Msg("retaining expired full backup, still the baseline of a retained incremental")
				delete(eligible, b.BaselineID)
			}
		}
	}

	var firstErr error
	for id := range eligible {
		if err := m.Remove(id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.log.Info().Str("backup_id", id).Msg("backup deleted by retention")
	}
	return firstErr
}

// expired applies the tiered sampling rule: anything past the monthly window
// goes; past the weekly window only every-seventh-day samples survive; inside
// the weekly window each day keeps its own backup, so backups past the daily
// window but on a whole-day age are retained as that day's sample.
func expired(policy models.RetentionPolicy, b *models.Backup, now time.Time) bool {
	ageDays := int(now.Sub(b.StartTime).Hours() / 24)

	if ageDays > policy.Monthly*30 {
		return true
	}
	if ageDays > policy.Weekly*7 && ageDays%7 != 0 {
		return true
	}
	return false
}

// Remove deletes every on-disk artifact carrying the backup id, then drops
// the history entry.
func (m *RetentionManager) Remove(id string) error {
	removeBackupArtifacts(m.store.Snapshot().BackupDir, id, m.log)
	_, err := m.history.Delete(id)
	return err
}
