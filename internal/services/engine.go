package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// Observer receives backup lifecycle notifications. The API layer subscribes
// one to drive its audit records; there is no global event bus.
type Observer interface {
	BackupStarted(b *models.Backup)
	BackupCompleted(b *models.Backup)
	BackupFailed(b *models.Backup, err error)
}

// Engine is the backup orchestrator: it runs one backup attempt end to end,
// invoking the component strategies in order, the post-processing pipeline,
// and retention cleanup. All run state lives on this struct; one Engine is
// constructed per process. Each run reads a configuration snapshot taken at
// its start, so runtime updates never change a run's behavior midway.
type Engine struct {
	store     *config.Store
	runner    CommandRunner
	target    SyncTarget
	history   *HistoryStore
	retention *RetentionManager
	log       zerolog.Logger

	mu        sync.Mutex
	active    map[string]*models.Backup
	typeLocks map[models.BackupType]bool
	observers []Observer
}

func NewEngine(store *config.Store, runner CommandRunner, history *HistoryStore, target SyncTarget, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		runner:    runner,
		target:    target,
		history:   history,
		retention: NewRetentionManager(store, history, log),
		log:       log,
		active:    make(map[string]*models.Backup),
		typeLocks: make(map[models.BackupType]bool),
	}
}

// Subscribe registers a lifecycle observer.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Retention exposes the retention manager for the service facade.
func (e *Engine) Retention() *RetentionManager {
	return e.retention
}

// RunFull executes one full backup attempt.
func (e *Engine) RunFull(ctx context.Context) (*models.Backup, error) {
	return e.run(ctx, models.BackupTypeFull, nil)
}

// RunIncremental executes one incremental backup against the most recent
// completed full backup. With no prior full backup in history the request
// silently becomes a full backup.
func (e *Engine) RunIncremental(ctx context.Context) (*models.Backup, error) {
	baseline := e.history.LatestCompletedFull()
	if baseline == nil {
		e.log.Info().Msg("no completed full backup exists, running full backup instead")
		return e.run(ctx, models.BackupTypeFull, nil)
	}
	return e.run(ctx, models.BackupTypeIncremental, baseline)
}

func (e *Engine) run(ctx context.Context, typ models.BackupType, baseline *models.Backup) (*models.Backup, error) {
	if err := e.lockType(typ); err != nil {
		return nil, err
	}
	defer e.unlockType(typ)

	cfg := e.store.Snapshot()
	b := e.newBackup(typ, baseline)
	e.setActive(b)
	e.notifyStarted(b)
	e.log.Info().Str("backup_id", b.ID).Str("type", string(typ)).Msg("backup started")

	err := e.execute(ctx, cfg, b, baseline)
	e.finish(cfg, b, err)

	if saveErr := e.history.SaveBackup(b); saveErr != nil {
		e.log.Error().Err(saveErr).Str("backup_id", b.ID).Msg("failed to persist backup record")
	}
	e.clearActive(b.ID)

	if err != nil {
		e.notifyFailed(b, err)
		return b, err
	}
	e.notifyCompleted(b)
	e.log.Info().Str("backup_id", b.ID).Int64("total_size", b.TotalSize).
		Int64("duration_ms", b.Duration).Msg("backup completed")

	// Cleanup problems never fail a completed backup.
	if cerr := e.retention.Cleanup(e.activeIDs()); cerr != nil {
		e.log.Error().Err(cerr).Msg("retention cleanup failed")
	}
	return b, nil
}

// execute runs the fixed component order: database, files, metadata, then
// the post-processing pipeline. Metadata must come after the other two
// because it summarizes them.
func (e *Engine) execute(ctx context.Context, cfg *config.Config, b *models.Backup, baseline *models.Backup) error {
	var since *time.Time
	if baseline != nil {
		t := baseline.StartTime
		since = &t
	}

	database := NewDatabaseStrategy(cfg, e.runner, e.log)
	files := NewFilesStrategy(cfg, e.runner, e.log)

	dbComp, err := database.Backup(ctx, b.ID, since)
	if err != nil {
		e.failComponent(b, models.ComponentDatabase, err)
		return fmt.Errorf("database component failed: %w", err)
	}
	b.Components[models.ComponentDatabase] = dbComp

	var filesComp *models.Component
	if since != nil {
		filesComp, err = files.BackupIncremental(ctx, b.ID, *since)
	} else {
		filesComp, err = files.BackupFull(ctx, b.ID)
	}
	if err != nil {
		e.failComponent(b, models.ComponentFiles, err)
		return fmt.Errorf("files component failed: %w", err)
	}
	b.Components[models.ComponentFiles] = filesComp

	metaComp, err := NewMetadataStrategy(cfg, e.log).Write(b)
	if err != nil {
		e.failComponent(b, models.ComponentMetadata, err)
		return fmt.Errorf("metadata component failed: %w", err)
	}
	b.Components[models.ComponentMetadata] = metaComp

	if err := NewPipeline(cfg, e.runner, e.target, e.log).Run(ctx, b); err != nil {
		return fmt.Errorf("post-processing failed: %w", err)
	}
	return nil
}

func (e *Engine) newBackup(typ models.BackupType, baseline *models.Backup) *models.Backup {
	now := time.Now()
	b := &models.Backup{
		ID:        fmt.Sprintf("backup-%d-%d", e.history.NextSequence(), now.UnixMilli()),
		Type:      typ,
		Status:    models.BackupStatusRunning,
		StartTime: now,
		Components: map[string]*models.Component{
			models.ComponentDatabase: {Status: models.ComponentStatusPending},
			models.ComponentFiles:    {Status: models.ComponentStatusPending},
			models.ComponentMetadata: {Status: models.ComponentStatusPending},
		},
	}
	if baseline != nil {
		b.BaselineID = baseline.ID
	}
	return b
}

// finish settles the terminal state. On failure the run's artifacts are
// removed best-effort so a half-written backup never lingers on disk.
func (e *Engine) finish(cfg *config.Config, b *models.Backup, err error) {
	now := time.Now()
	b.CompletedAt = &now
	b.Duration = now.Sub(b.StartTime).Milliseconds()

	if err != nil {
		b.Status = models.BackupStatusFailed
		b.Error = err.Error()
		removeBackupArtifacts(cfg.BackupDir, b.ID, e.log)
		e.log.Error().Err(err).Str("backup_id", b.ID).Msg("backup failed")
		return
	}

	b.Status = models.BackupStatusCompleted
	for _, comp := range b.Components {
		b.TotalSize += comp.Size
	}
}

func (e *Engine) failComponent(b *models.Backup, name string, err error) {
	if comp := b.Components[name]; comp != nil {
		comp.Status = models.ComponentStatusFailed
		comp.Error = err.Error()
	}
}

// lockType rejects a second concurrent run of the same backup type. Runs of
// different types may overlap; unique ids keep their artifacts apart.
func (e *Engine) lockType(typ models.BackupType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.typeLocks[typ] {
		return fmt.Errorf("a %s backup is already running", typ)
	}
	e.typeLocks[typ] = true
	return nil
}

func (e *Engine) unlockType(typ models.BackupType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.typeLocks[typ] = false
}

func (e *Engine) setActive(b *models.Backup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active[b.ID] = b
}

func (e *Engine) clearActive(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
}

// activeIDs snapshots the ids of runs still in flight.
func (e *Engine) activeIDs() map[string]struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]struct{}, len(e.active))
	for id := range e.active {
		out[id] = struct{}{}
	}
	return out
}

// ActiveBackups lists the runs currently in flight, for status queries.
func (e *Engine) ActiveBackups() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.active))
	for id := range e.active {
		out = append(out, id)
	}
	return out
}

func (e *Engine) snapshotObservers() []Observer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Observer(nil), e.observers...)
}

func (e *Engine) notifyStarted(b *models.Backup) {
	for _, o := range e.snapshotObservers() {
		o.BackupStarted(b)
	}
}

func (e *Engine) notifyCompleted(b *models.Backup) {
	for _, o := range e.snapshotObservers() {
		o.BackupCompleted(b)
	}
}

func (e *Engine) notifyFailed(b *models.Backup, err error) {
	for _, o := range e.snapshotObservers() {
		o.BackupFailed(b, err)
	}
}
