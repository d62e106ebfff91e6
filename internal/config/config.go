package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/contentops/statevault/internal/models"
)

// DatabaseConfig holds the connection parameters for the relational database
// being backed up. The same database hosts the API layer's audit table.
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	ChangeColumn string `yaml:"change_column"`
}

// CommandsConfig names the external tools the engine drives. Only argv and
// exit status are assumed, so equivalents can be substituted per platform.
type CommandsConfig struct {
	Dump       string `yaml:"dump"`
	Restore    string `yaml:"restore"`
	Archive    string `yaml:"archive"`
	Extract    string `yaml:"extract"`
	Compress   string `yaml:"compress"`
	Decompress string `yaml:"decompress"`
}

// SyncConfig selects the remote storage target for the pipeline sync stage.
type SyncConfig struct {
	Provider string `yaml:"provider"` // "", "s3", "ftp", "local"

	// S3
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`

	// FTP
	FTPHost     string `yaml:"ftp_host"`
	FTPPort     int    `yaml:"ftp_port"`
	FTPUser     string `yaml:"ftp_user"`
	FTPPassword string `yaml:"ftp_password"`
	FTPPath     string `yaml:"ftp_path"`

	// Local directory copy (dev/test)
	LocalDir string `yaml:"local_dir"`
}

type Config struct {
	BackupDir   string   `yaml:"backup_dir"`
	BackupPaths []string `yaml:"backup_paths"`
	MaxBackups  int      `yaml:"max_backups"`

	ScheduleEnabled  bool          `yaml:"schedule_enabled"`
	ScheduleInterval time.Duration `yaml:"-"`

	Compression   bool   `yaml:"compression"`
	Encryption    bool   `yaml:"encryption"`
	EncryptionKey string `yaml:"encryption_key"`
	Verify        bool   `yaml:"verify"`

	ChecksumAlgorithm string        `yaml:"checksum_algorithm"`
	ProcessTimeout    time.Duration `yaml:"-"`
	ProtectBaselines  bool          `yaml:"protect_baselines"`

	Retention models.RetentionPolicy `yaml:"retention"`
	Database  DatabaseConfig         `yaml:"database"`
	Commands  CommandsConfig         `yaml:"commands"`
	Sync      SyncConfig             `yaml:"sync"`

	APIPort int `yaml:"api_port"`
}

// Clone returns a deep copy of the configuration. Slices are copied so the
// clone shares nothing mutable with the original.
func (c *Config) Clone() *Config {
	out := *c
	out.BackupPaths = append([]string(nil), c.BackupPaths...)
	return &out
}

// Store guards the live configuration against concurrent access. Runtime
// updates go through Update; operations take a Snapshot at start and read
// only that copy, so a mid-run update never changes a run's behavior halfway
// through.
type Store struct {
	mu  sync.RWMutex
	cur *Config
}

func NewStore(cfg *Config) *Store {
	return &Store{cur: cfg}
}

// Snapshot returns a private copy of the current configuration.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Update applies fn to the live configuration under the write lock.
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cur)
}

// Load builds the configuration from environment variables, then overlays the
// YAML file named by STATEVAULT_CONFIG when set.
func Load() (*Config, error) {
	cfg := &Config{
		BackupDir:   getEnv("BACKUP_DIR", "/var/backups/statevault"),
		BackupPaths: getEnvList("BACKUP_PATHS", []string{"/etc/statevault", "/var/lib/statevault/media"}),
		MaxBackups:  getEnvInt("MAX_BACKUPS", 30),

		ScheduleEnabled:  getEnvBool("SCHEDULE_ENABLED", false),
		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", 6*time.Hour),

		Compression:   getEnvBool("COMPRESSION", true),
		Encryption:    getEnvBool("ENCRYPTION", false),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		Verify:        getEnvBool("VERIFY", true),

		ChecksumAlgorithm: getEnv("CHECKSUM_ALGORITHM", "sha256"),
		ProcessTimeout:    getEnvDuration("PROCESS_TIMEOUT", 30*time.Minute),
		ProtectBaselines:  getEnvBool("PROTECT_BASELINES", true),

		Retention: models.RetentionPolicy{
			Daily:   getEnvInt("RETENTION_DAILY", 7),
			Weekly:  getEnvInt("RETENTION_WEEKLY", 4),
			Monthly: getEnvInt("RETENTION_MONTHLY", 12),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 3306),
			User:         getEnv("DB_USER", "statevault"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "statevault"),
			ChangeColumn: getEnv("DB_CHANGE_COLUMN", "updated_at"),
		},
		Commands: CommandsConfig{
			Dump:       getEnv("DUMP_CMD", "mysqldump"),
			Restore:    getEnv("RESTORE_CMD", "mysql"),
			Archive:    getEnv("ARCHIVE_CMD", "tar"),
			Extract:    getEnv("EXTRACT_CMD", "tar"),
			Compress:   getEnv("COMPRESS_CMD", "gzip"),
			Decompress: getEnv("DECOMPRESS_CMD", "gzip"),
		},
		Sync: SyncConfig{
			Provider:    getEnv("SYNC_PROVIDER", ""),
			Bucket:      getEnv("SYNC_BUCKET", ""),
			Region:      getEnv("SYNC_REGION", "us-east-1"),
			Prefix:      getEnv("SYNC_PREFIX", "backups"),
			FTPHost:     getEnv("SYNC_FTP_HOST", ""),
			FTPPort:     getEnvInt("SYNC_FTP_PORT", 21),
			FTPUser:     getEnv("SYNC_FTP_USER", ""),
			FTPPassword: getEnv("SYNC_FTP_PASSWORD", ""),
			FTPPath:     getEnv("SYNC_FTP_PATH", "/backups"),
			LocalDir:    getEnv("SYNC_LOCAL_DIR", ""),
		},

		APIPort: getEnvInt("API_PORT", 8080),
	}

	if path := os.Getenv("STATEVAULT_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	// Durations arrive as strings ("6h", "30m") and are parsed separately.
	var durations struct {
		ScheduleInterval string `yaml:"schedule_interval"`
		ProcessTimeout   string `yaml:"process_timeout"`
	}
	if err := yaml.Unmarshal(data, &durations); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if durations.ScheduleInterval != "" {
		d, err := time.ParseDuration(durations.ScheduleInterval)
		if err != nil {
			return fmt.Errorf("invalid schedule_interval in %s: %w", path, err)
		}
		c.ScheduleInterval = d
	}
	if durations.ProcessTimeout != "" {
		d, err := time.ParseDuration(durations.ProcessTimeout)
		if err != nil {
			return fmt.Errorf("invalid process_timeout in %s: %w", path, err)
		}
		c.ProcessTimeout = d
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
