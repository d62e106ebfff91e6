package services

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/contentops/statevault/internal/config"
)

// SyncTarget uploads a finished artifact to remote storage and returns the
// remote reference it landed at.
type SyncTarget interface {
	Upload(ctx context.Context, localPath, name string) (string, error)
}

// NewSyncTarget builds the target selected by configuration. An empty
// provider disables the sync stage (nil target, nil error).
func NewSyncTarget(cfg *config.SyncConfig, log zerolog.Logger) (SyncTarget, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, configErrorf("sync provider s3 requires a bucket")
		}
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 session: %w", err)
		}
		return &S3Target{client: s3.New(sess), bucket: cfg.Bucket, prefix: cfg.Prefix, log: log}, nil
	case "ftp":
		if cfg.FTPHost == "" {
			return nil, configErrorf("sync provider ftp requires a host")
		}
		return &FTPTarget{cfg: *cfg, log: log}, nil
	case "local":
		if cfg.LocalDir == "" {
			return nil, configErrorf("sync provider local requires a directory")
		}
		return &LocalTarget{dir: cfg.LocalDir}, nil
	default:
		return nil, configErrorf("unknown sync provider %q", cfg.Provider)
	}
}

// S3Target uploads artifacts to an S3 bucket.
type S3Target struct {
	client *s3.S3
	bucket string
	prefix string
	log    zerolog.Logger
}

func (t *S3Target) Upload(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact for upload: %w", err)
	}
	defer f.Close()

	key := path.Join(t.prefix, name)
	_, err = t.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", fmt.Errorf("S3 upload of %s failed: %w", name, err)
	}
	t.log.Info().Str("bucket", t.bucket).Str("key", key).Msg("uploaded artifact to S3")
	return fmt.Sprintf("s3://%s/%s", t.bucket, key), nil
}

// FTPTarget uploads artifacts to an FTP server, creating the remote directory
// when needed.
type FTPTarget struct {
	cfg config.SyncConfig
	log zerolog.Logger
}

func (t *FTPTarget) Upload(ctx context.Context, localPath, name string) (string, error) {
	addr := fmt.Sprintf("%s:%d", t.cfg.FTPHost, t.cfg.FTPPort)
	conn, err := ftp.Dial(addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return "", fmt.Errorf("FTP connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(t.cfg.FTPUser, t.cfg.FTPPassword); err != nil {
		return "", fmt.Errorf("FTP login failed: %w", err)
	}

	if t.cfg.FTPPath != "" && t.cfg.FTPPath != "/" {
		if err := conn.ChangeDir(t.cfg.FTPPath); err != nil {
			conn.MakeDir(t.cfg.FTPPath)
			if err := conn.ChangeDir(t.cfg.FTPPath); err != nil {
				return "", fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact for upload: %w", err)
	}
	defer f.Close()

	if err := conn.Stor(name, f); err != nil {
		return "", fmt.Errorf("FTP upload failed: %w", err)
	}
	t.log.Info().Str("host", t.cfg.FTPHost).Str("name", name).Msg("uploaded artifact to FTP")
	return fmt.Sprintf("ftp://%s%s/%s", t.cfg.FTPHost, t.cfg.FTPPath, name), nil
}

// TestFTPConnection verifies FTP credentials and path access for the
// operator-facing connection test.
func TestFTPConnection(host string, port int, username, password, dir string) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(10*time.Second))
	if err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if dir != "" && dir != "/" {
		if err := conn.ChangeDir(dir); err != nil {
			if err := conn.MakeDir(dir); err != nil {
				return fmt.Errorf("cannot access or create directory %s: %w", dir, err)
			}
		}
	}
	return nil
}

// LocalTarget copies artifacts into a local directory. Used for development
// and test restores.
type LocalTarget struct {
	dir string
}

func (t *LocalTarget) Upload(_ context.Context, localPath, name string) (string, error) {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(t.dir, name)
	if err := copyFile(localPath, dest); err != nil {
		return "", fmt.Errorf("local sync of %s failed: %w", name, err)
	}
	return dest, nil
}
