package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/models"
)

const (
	historyFile    = "history.json"
	recoveriesFile = "recoveries.json"
)

// HistoryStore is the durable record of past backups and recoveries. Both
// lists live as JSON arrays under the backup root, are loaded on startup, and
// are rewritten whole through an atomic temp-file replace after every change.
// All access goes through one mutex: single-writer discipline.
type HistoryStore struct {
	mu         sync.Mutex
	root       string
	backups    []*models.Backup
	recoveries []*models.Recovery
	seq        int
	log        zerolog.Logger
}

func NewHistoryStore(root string, log zerolog.Logger) (*HistoryStore, error) {
	hs := &HistoryStore{root: root, log: log}
	if err := hs.load(); err != nil {
		return nil, err
	}
	return hs, nil
}

func (hs *HistoryStore) load() error {
	if err := readJSONFile(filepath.Join(hs.root, historyFile), &hs.backups); err != nil {
		return fmt.Errorf("failed to load backup history: %w", err)
	}
	if err := readJSONFile(filepath.Join(hs.root, recoveriesFile), &hs.recoveries); err != nil {
		return fmt.Errorf("failed to load recovery history: %w", err)
	}

	// The id counter survives restarts by recovering the highest sequence
	// recorded in history.
	for _, b := range hs.backups {
		if seq, ok := parseSequence(b.ID); ok && seq > hs.seq {
			hs.seq = seq
		}
	}
	return nil
}

// NextSequence hands out the next backup sequence number.
func (hs *HistoryStore) NextSequence() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.seq++
	return hs.seq
}

// SaveBackup appends the backup, or replaces the stored record with the same
// id, and persists the list.
func (hs *HistoryStore) SaveBackup(b *models.Backup) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	replaced := false
	for i, existing := range hs.backups {
		if existing.ID == b.ID {
			hs.backups[i] = b
			replaced = true
			break
		}
	}
	if !replaced {
		hs.backups = append(hs.backups, b)
	}
	return hs.persistBackups()
}

// Get returns the backup with the given id.
func (hs *HistoryStore) Get(id string) (*models.Backup, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for _, b := range hs.backups {
		if b.ID == id {
			return b, true
		}
	}
	return nil, false
}

// Delete removes the backup record and persists the list. Returns false when
// the id is unknown.
func (hs *HistoryStore) Delete(id string) (bool, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for i, b := range hs.backups {
		if b.ID == id {
			hs.backups = append(hs.backups[:i], hs.backups[i+1:]...)
			return true, hs.persistBackups()
		}
	}
	return false, nil
}

// List returns all backup records, most recent first.
func (hs *HistoryStore) List() []*models.Backup {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make([]*models.Backup, len(hs.backups))
	copy(out, hs.backups)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Recent returns the n most recent backup records.
func (hs *HistoryStore) Recent(n int) []*models.Backup {
	all := hs.List()
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// LatestCompletedFull returns the most recent completed full backup, the
// baseline candidate for incremental runs. Failed and incremental backups are
// never considered.
func (hs *HistoryStore) LatestCompletedFull() *models.Backup {
	for _, b := range hs.List() {
		if b.Type == models.BackupTypeFull && b.Status == models.BackupStatusCompleted {
			return b
		}
	}
	return nil
}

// AppendRecovery records a finished restore attempt.
func (hs *HistoryStore) AppendRecovery(r *models.Recovery) error {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.recoveries = append(hs.recoveries, r)
	return writeJSONFile(filepath.Join(hs.root, recoveriesFile), hs.recoveries)
}

// RecentRecoveries returns the n most recent recovery records.
func (hs *HistoryStore) RecentRecoveries(n int) []*models.Recovery {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := make([]*models.Recovery, len(hs.recoveries))
	copy(out, hs.recoveries)
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (hs *HistoryStore) persistBackups() error {
	return writeJSONFile(filepath.Join(hs.root, historyFile), hs.backups)
}

func readJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSONFile rewrites the whole file via write-temp-then-rename so a crash
// mid-write never leaves a truncated list behind.
func writeJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// parseSequence extracts the counter from a backup id of the form
// backup-<seq>-<unixms>.
func parseSequence(id string) (int, bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 3 || parts[0] != "backup" {
		return 0, false
	}
	seq, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}
