package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

// DatabaseStrategy produces and re-applies relational dumps through the
// configured external dump/restore tool pair.
type DatabaseStrategy struct {
	cfg    *config.Config
	runner CommandRunner
	log    zerolog.Logger
}

func NewDatabaseStrategy(cfg *config.Config, runner CommandRunner, log zerolog.Logger) *DatabaseStrategy {
	return &DatabaseStrategy{cfg: cfg, runner: runner, log: log}
}

// Backup streams the dump tool's stdout into database/<backupID>.sql. A
// non-nil since restricts the dump to rows whose change-tracking column is at
// or after that time.
func (s *DatabaseStrategy) Backup(ctx context.Context, backupID string, since *time.Time) (*models.Component, error) {
	start := time.Now()
	dest := filepath.Join(s.cfg.BackupDir, "database", backupID+".sql")

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	err = s.runner.Run(ctx, Command{
		Name:   s.cfg.Commands.Dump,
		Args:   s.dumpArgs(since),
		Env:    []string{"MYSQL_PWD=" + s.cfg.Database.Password},
		Stdout: f,
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, err
	}

	comp, err := artifactComponent(dest, s.cfg.ChecksumAlgorithm, start)
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	s.log.Debug().Str("backup_id", backupID).Int64("size", comp.Size).Msg("database dump written")
	return comp, nil
}

func (s *DatabaseStrategy) dumpArgs(since *time.Time) []string {
	db := s.cfg.Database
	args := []string{
		"-h", db.Host,
		"-P", strconv.Itoa(db.Port),
		"-u", db.User,
		"--single-transaction",
		"--quick",
	}
	if since != nil {
		args = append(args, fmt.Sprintf("--where=%s >= '%s'", db.ChangeColumn, since.UTC().Format("2006-01-02 15:04:05")))
	}
	return append(args, db.Name)
}

// Restore pipes a plaintext dump into the restore tool's stdin.
func (s *DatabaseStrategy) Restore(ctx context.Context, dumpPath string) error {
	f, err := os.Open(dumpPath)
	if err != nil {
		return fmt.Errorf("failed to open dump %s: %w", dumpPath, err)
	}
	defer f.Close()

	db := s.cfg.Database
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProcessTimeout)
	defer cancel()

	return s.runner.Run(ctx, Command{
		Name: s.cfg.Commands.Restore,
		Args: []string{
			"-h", db.Host,
			"-P", strconv.Itoa(db.Port),
			"-u", db.User,
			db.Name,
		},
		Env:   []string{"MYSQL_PWD=" + db.Password},
		Stdin: f,
	})
}
