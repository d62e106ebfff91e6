package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/backups/statevault", cfg.BackupDir)
	assert.Equal(t, 30, cfg.MaxBackups)
	assert.False(t, cfg.ScheduleEnabled)
	assert.Equal(t, 6*time.Hour, cfg.ScheduleInterval)
	assert.True(t, cfg.Compression)
	assert.False(t, cfg.Encryption)
	assert.True(t, cfg.Verify)
	assert.Equal(t, "sha256", cfg.ChecksumAlgorithm)
	assert.Equal(t, 30*time.Minute, cfg.ProcessTimeout)
	assert.True(t, cfg.ProtectBaselines)

	assert.Equal(t, 7, cfg.Retention.Daily)
	assert.Equal(t, 4, cfg.Retention.Weekly)
	assert.Equal(t, 12, cfg.Retention.Monthly)

	assert.Equal(t, "mysqldump", cfg.Commands.Dump)
	assert.Equal(t, "mysql", cfg.Commands.Restore)
	assert.Equal(t, "tar", cfg.Commands.Archive)
	assert.Equal(t, "gzip", cfg.Commands.Compress)

	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, "updated_at", cfg.Database.ChangeColumn)
	assert.Empty(t, cfg.Sync.Provider)
	assert.Equal(t, 8080, cfg.APIPort)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_DIR", "/srv/backups")
	t.Setenv("BACKUP_PATHS", "/etc/app, /var/lib/app/media")
	t.Setenv("MAX_BACKUPS", "10")
	t.Setenv("SCHEDULE_ENABLED", "true")
	t.Setenv("SCHEDULE_INTERVAL", "90m")
	t.Setenv("ENCRYPTION", "true")
	t.Setenv("ENCRYPTION_KEY", "env-secret")
	t.Setenv("RETENTION_WEEKLY", "8")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("SYNC_PROVIDER", "s3")
	t.Setenv("SYNC_BUCKET", "app-backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/backups", cfg.BackupDir)
	assert.Equal(t, []string{"/etc/app", "/var/lib/app/media"}, cfg.BackupPaths)
	assert.Equal(t, 10, cfg.MaxBackups)
	assert.True(t, cfg.ScheduleEnabled)
	assert.Equal(t, 90*time.Minute, cfg.ScheduleInterval)
	assert.True(t, cfg.Encryption)
	assert.Equal(t, "env-secret", cfg.EncryptionKey)
	assert.Equal(t, 8, cfg.Retention.Weekly)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "s3", cfg.Sync.Provider)
	assert.Equal(t, "app-backups", cfg.Sync.Bucket)
}

func TestLoadYAMLOverlay(t *testing.T) {
	t.Setenv("MAX_BACKUPS", "10")

	path := filepath.Join(t.TempDir(), "statevault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backup_dir: /data/backups
max_backups: 20
schedule_interval: 2h
process_timeout: 15m
retention:
  daily: 10
  weekly: 6
  monthly: 24
database:
  host: db.internal
  port: 3308
sync:
  provider: ftp
  ftp_host: ftp.internal
  ftp_port: 2121
`), 0o600))
	t.Setenv("STATEVAULT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	// The file wins over the environment where both set a key.
	assert.Equal(t, "/data/backups", cfg.BackupDir)
	assert.Equal(t, 20, cfg.MaxBackups)
	assert.Equal(t, 2*time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, 15*time.Minute, cfg.ProcessTimeout)
	assert.Equal(t, 10, cfg.Retention.Daily)
	assert.Equal(t, 24, cfg.Retention.Monthly)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3308, cfg.Database.Port)
	assert.Equal(t, "ftp", cfg.Sync.Provider)
	assert.Equal(t, 2121, cfg.Sync.FTPPort)

	// Keys the file leaves out keep their defaults.
	assert.Equal(t, "mysqldump", cfg.Commands.Dump)
}

func TestStoreSnapshotIsolation(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	store := NewStore(cfg)

	before := store.Snapshot()
	store.Update(func(c *Config) {
		c.EncryptionKey = "rotated"
		c.BackupPaths = append(c.BackupPaths, "/srv/extra")
	})

	// A snapshot taken before the update never sees it.
	assert.Empty(t, before.EncryptionKey)
	assert.NotContains(t, before.BackupPaths, "/srv/extra")

	after := store.Snapshot()
	assert.Equal(t, "rotated", after.EncryptionKey)
	assert.Contains(t, after.BackupPaths, "/srv/extra")

	// Mutating a snapshot's slice leaves the live configuration alone.
	after.BackupPaths[0] = "/clobbered"
	assert.NotContains(t, store.Snapshot().BackupPaths, "/clobbered")
}

func TestLoadYAMLErrors(t *testing.T) {
	t.Setenv("STATEVAULT_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("schedule_interval: every-six-hours\n"), 0o600))
	t.Setenv("STATEVAULT_CONFIG", bad)
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule_interval")
}
