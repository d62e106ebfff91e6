package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// Restorer reverses a backup: it locates the artifacts through history,
// undoes pipeline transforms in a working copy, and re-applies the dump and
// archive through the external tools' restore counterparts.
type Restorer struct {
	store   *config.Store
	runner  CommandRunner
	history *HistoryStore
	log     zerolog.Logger
}

func NewRestorer(store *config.Store, runner CommandRunner, history *HistoryStore, log zerolog.Logger) *Restorer {
	return &Restorer{store: store, runner: runner, history: history, log: log}
}

// Restore applies the requested components of the identified backup. A
// component failure marks the Recovery failed but never rolls back components
// already restored; the partial result is surfaced to the caller.
func (r *Restorer) Restore(ctx context.Context, backupID string, opts models.RestoreOptions) (*models.Recovery, error) {
	b, ok := r.history.Get(backupID)
	if !ok {
		return nil, &NotFoundError{ID: backupID}
	}
	cfg := r.store.Snapshot()

	components := opts.Components
	if len(components) == 0 {
		components = []string{models.ComponentDatabase, models.ComponentFiles}
	}

	rec := &models.Recovery{
		ID:         uuid.NewString(),
		BackupID:   backupID,
		Status:     models.BackupStatusRunning,
		StartTime:  time.Now(),
		Components: make(map[string]*models.Component),
	}
	r.log.Info().Str("recovery_id", rec.ID).Str("backup_id", backupID).Msg("restore started")

	var firstErr error
	for _, name := range components {
		comp := r.restoreComponent(ctx, cfg, b, name, opts)
		rec.Components[name] = comp
		if comp.Status == models.ComponentStatusFailed && firstErr == nil {
			firstErr = fmt.Errorf("%s restore failed: %s", name, comp.Error)
		}
	}

	now := time.Now()
	rec.CompletedAt = &now
	rec.Duration = now.Sub(rec.StartTime).Milliseconds()
	if firstErr != nil {
		rec.Status = models.BackupStatusFailed
		rec.Error = firstErr.Error()
		r.log.Error().Err(firstErr).Str("recovery_id", rec.ID).Msg("restore failed")
	} else {
		rec.Status = models.BackupStatusCompleted
		r.log.Info().Str("recovery_id", rec.ID).Int64("duration_ms", rec.Duration).Msg("restore completed")
	}

	if err := r.history.AppendRecovery(rec); err != nil {
		r.log.Error().Err(err).Str("recovery_id", rec.ID).Msg("failed to persist recovery record")
	}
	return rec, firstErr
}

func (r *Restorer) restoreComponent(ctx context.Context, cfg *config.Config, b *models.Backup, name string, opts models.RestoreOptions) *models.Component {
	start := time.Now()
	comp := &models.Component{Status: models.ComponentStatusPending}

	src, ok := b.Components[name]
	if !ok {
		comp.Status = models.ComponentStatusFailed
		comp.Error = fmt.Sprintf("component %s is not part of backup %s", name, b.ID)
		return comp
	}
	if src.Location == "" {
		// A no-change incremental produced no artifact; nothing to apply.
		comp.Status = models.ComponentStatusCompleted
		comp.Duration = time.Since(start).Milliseconds()
		return comp
	}

	artifact, cleanup, err := r.materialize(ctx, cfg, b, name, src.Location)
	if err != nil {
		comp.Status = models.ComponentStatusFailed
		comp.Error = err.Error()
		return comp
	}
	defer cleanup()

	switch name {
	case models.ComponentDatabase:
		err = NewDatabaseStrategy(cfg, r.runner, r.log).Restore(ctx, artifact)
	case models.ComponentFiles:
		err = NewFilesStrategy(cfg, r.runner, r.log).Restore(ctx, artifact, opts.Destination)
	default:
		err = fmt.Errorf("component %s cannot be restored", name)
	}
	if err != nil {
		comp.Status = models.ComponentStatusFailed
		comp.Error = err.Error()
		return comp
	}

	comp.Status = models.ComponentStatusCompleted
	comp.Location = src.Location
	comp.Size = src.Size
	comp.Duration = time.Since(start).Milliseconds()
	return comp
}

// materialize produces a plaintext, decompressed working copy of the
// artifact in the temp directory when pipeline transforms have to be undone,
// and returns the path to feed the restore tool. The original artifact is
// never modified.
func (r *Restorer) materialize(ctx context.Context, cfg *config.Config, b *models.Backup, name, location string) (string, func(), error) {
	cleanup := func() {}

	needsDecrypt := b.Encrypted && strings.HasSuffix(location, ".enc")
	needsDecompress := name == models.ComponentDatabase && strings.HasSuffix(strings.TrimSuffix(location, ".enc"), ".gz")
	if !needsDecrypt && !needsDecompress {
		return location, cleanup, nil
	}

	work := filepath.Join(cfg.BackupDir, "temp", fmt.Sprintf("%s.%s.restore%s", b.ID, name, restoreExt(location)))
	cleanup = func() { os.Remove(work) }

	if needsDecrypt {
		if cfg.EncryptionKey == "" {
			return "", cleanup, configErrorf("backup %s is encrypted but no encryption key is configured", b.ID)
		}
		if err := DecryptFile(location, work, cfg.EncryptionKey); err != nil {
			return "", cleanup, err
		}
	} else {
		if err := copyFile(location, work); err != nil {
			return "", cleanup, err
		}
	}

	if needsDecompress {
		rctx, cancel := context.WithTimeout(ctx, cfg.ProcessTimeout)
		defer cancel()
		if err := r.runner.Run(rctx, Command{
			Name: cfg.Commands.Decompress,
			Args: []string{"-d", "-f", work},
		}); err != nil {
			return "", cleanup, err
		}
		work = strings.TrimSuffix(work, ".gz")
		cleanup = func() { os.Remove(work) }
	}
	return work, cleanup, nil
}

// restoreExt preserves the artifact's pre-encryption extension so the
// decompressor recognizes the working copy.
func restoreExt(location string) string {
	base := strings.TrimSuffix(filepath.Base(location), ".enc")
	if strings.HasSuffix(base, ".tar.gz") {
		return ".tar.gz"
	}
	return filepath.Ext(base)
}
