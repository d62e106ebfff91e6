package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// FilesStrategy archives the configured filesystem paths through the external
// archive tool, either wholesale or limited to files changed since a baseline.
type FilesStrategy struct {
	cfg    *config.Config
	runner CommandRunner
	log    zerolog.Logger
}

func NewFilesStrategy(cfg *config.Config, runner CommandRunner, log zerolog.Logger) *FilesStrategy {
	return &FilesStrategy{cfg: cfg, runner: runner, log: log}
}

// BackupFull archives the configured path list into files/<backupID>.tar.gz.
// Missing configured paths are skipped with a warning rather than failing the
// run.
func (s *FilesStrategy) BackupFull(ctx context.Context, backupID string) (*models.Component, error) {
	start := time.Now()

	var paths []string
	for _, p := range s.cfg.BackupPaths {
		if _, err := os.Stat(p); err != nil {
			s.log.Warn().Str("path", p).Msg("configured backup path missing, skipping")
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		// Nothing to archive; complete with an empty component like a
		// no-change incremental.
		return &models.Component{
			Status:   models.ComponentStatusCompleted,
			Duration: time.Since(start).Milliseconds(),
			Paths:    s.cfg.BackupPaths,
		}, nil
	}

	dest := filepath.Join(s.cfg.BackupDir, "files", backupID+".tar.gz")
	args := []string{"-czf", dest, "-C", "/"}
	for _, p := range paths {
		args = append(args, strings.TrimPrefix(p, "/"))
	}

	if err := s.archive(ctx, dest, args); err != nil {
		return nil, err
	}

	comp, err := artifactComponent(dest, s.cfg.ChecksumAlgorithm, start)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	comp.Paths = paths
	return comp, nil
}

// BackupIncremental walks the configured paths, collects files modified after
// since, and archives exactly that list. No changed files means a completed
// component with size 0 and no artifact.
func (s *FilesStrategy) BackupIncremental(ctx context.Context, backupID string, since time.Time) (*models.Component, error) {
	start := time.Now()

	changed, err := s.changedSince(since)
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		s.log.Info().Str("backup_id", backupID).Msg("no files changed since baseline")
		return &models.Component{
			Status:   models.ComponentStatusCompleted,
			Duration: time.Since(start).Milliseconds(),
		}, nil
	}

	listFile := filepath.Join(s.cfg.BackupDir, "temp", backupID+".files")
	if err := os.WriteFile(listFile, []byte(strings.Join(changed, "\n")+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write file list: %w", err)
	}
	defer os.Remove(listFile)

	dest := filepath.Join(s.cfg.BackupDir, "files", backupID+".tar.gz")
	args := []string{"-czf", dest, "-C", "/", "-T", listFile}
	if err := s.archive(ctx, dest, args); err != nil {
		return nil, err
	}

	comp, err := artifactComponent(dest, s.cfg.ChecksumAlgorithm, start)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	comp.ChangedFiles = changed
	return comp, nil
}

func (s *FilesStrategy) archive(ctx context.Context, dest string, args []string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	if err := s.runner.Run(ctx, Command{Name: s.cfg.Commands.Archive, Args: args}); err != nil {
		os.Remove(dest)
		return err
	}
	return nil
}

// changedSince returns the root-relative paths of regular files under the
// configured backup paths whose mtime is after since. Missing paths are
// skipped, matching BackupFull.
func (s *FilesStrategy) changedSince(since time.Time) ([]string, error) {
	var changed []string
	for _, root := range s.cfg.BackupPaths {
		if _, err := os.Stat(root); err != nil {
			s.log.Warn().Str("path", root).Msg("configured backup path missing, skipping")
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			if info.ModTime().After(since) {
				changed = append(changed, strings.TrimPrefix(path, "/"))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s for changes: %w", root, err)
		}
	}
	return changed, nil
}

// Restore extracts a files artifact. An empty destination applies it to the
// original locations under /; a non-empty destination redirects the whole
// tree (test restores into a scratch directory).
func (s *FilesStrategy) Restore(ctx context.Context, artifact, destination string) error {
	if destination == "" {
		destination = "/"
	} else if err := os.MkdirAll(destination, 0o755); err != nil {
		return fmt.Errorf("failed to create restore destination: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	return s.runner.Run(ctx, Command{
		Name: s.cfg.Commands.Extract,
		Args: []string{"-xzf", artifact, "-C", destination},
	})
}
