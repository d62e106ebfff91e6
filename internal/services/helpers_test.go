package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/contentops/statevault/internal/config"
	"github.com/contentops/statevault/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// testConfig builds a configuration rooted in a per-test temp directory with
// one seeded data directory to back up. Post-processing stages are off by
// default; tests opt in per scenario.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "site.conf"), []byte("listen 8080\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "index.html"), []byte("<html>hi</html>\n"), 0o644))

	return &config.Config{
		BackupDir:         filepath.Join(root, "backups"),
		BackupPaths:       []string{dataDir},
		MaxBackups:        0,
		ScheduleInterval:  time.Hour,
		ChecksumAlgorithm: "sha256",
		ProcessTimeout:    time.Minute,
		ProtectBaselines:  true,
		Retention:         models.RetentionPolicy{Daily: 7, Weekly: 4, Monthly: 12},
		Database: config.DatabaseConfig{
			Host:         "localhost",
			Port:         3306,
			User:         "statevault",
			Password:     "secret",
			Name:         "statevault",
			ChangeColumn: "updated_at",
		},
		Commands: config.CommandsConfig{
			Dump:       "mysqldump",
			Restore:    "mysql",
			Archive:    "tar",
			Extract:    "tar",
			Compress:   "gzip",
			Decompress: "gzip",
		},
	}, dataDir
}

func newTestService(t *testing.T, runner CommandRunner, mutate func(*config.Config)) (*BackupService, *config.Config, string) {
	t.Helper()

	cfg, dataDir := testConfig(t)
	if mutate != nil {
		mutate(cfg)
	}
	svc, err := NewBackupServiceWithRunner(cfg, runner, zerolog.Nop())
	require.NoError(t, err)
	return svc, cfg, dataDir
}

// touchFuture bumps a file's mtime past any baseline taken so far, so the
// change scanner picks it up without sleeping.
func touchFuture(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))
}

// listArtifacts returns the artifact file names under one backup subdir.
func listArtifacts(t *testing.T, backupDir, subdir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(backupDir, subdir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
