package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/models"
)

// Subdirectories of the backup root. Component artifacts and metadata files
// are named <backupID>.<ext> inside the matching subdirectory.
var backupSubdirs = []string{"database", "files", "full", "incremental", "temp"}

func ensureLayout(root string) error {
	for _, dir := range backupSubdirs {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return fmt.Errorf("failed to create backup directory %s: %w", dir, err)
		}
	}
	return nil
}

// removeBackupArtifacts deletes every file whose name contains the backup id
// across all backup subdirectories. Best effort: already-absent files and
// unreadable directories are skipped, never reported.
func removeBackupArtifacts(root, backupID string, log zerolog.Logger) {
	for _, dir := range backupSubdirs {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), backupID) {
				continue
			}
			path := filepath.Join(root, dir, entry.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", path).Msg("failed to remove backup artifact")
			}
		}
	}
}

// artifactComponent stats and checksums a finished artifact and returns the
// completed component record for it.
func artifactComponent(path, algorithm string, start time.Time) (*models.Component, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact %s: %w", path, err)
	}
	sum, err := FileChecksum(path, algorithm)
	if err != nil {
		return nil, err
	}
	return &models.Component{
		Status:   models.ComponentStatusCompleted,
		Size:     info.Size(),
		Checksum: sum,
		Location: path,
		Duration: time.Since(start).Milliseconds(),
	}, nil
}

// refreshComponent re-records size and checksum after a pipeline stage
// rewrote the artifact at comp.Location.
func refreshComponent(comp *models.Component, algorithm string) error {
	info, err := os.Stat(comp.Location)
	if err != nil {
		return fmt.Errorf("failed to stat artifact %s: %w", comp.Location, err)
	}
	sum, err := FileChecksum(comp.Location, algorithm)
	if err != nil {
		return err
	}
	comp.Size = info.Size()
	comp.Checksum = sum
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
