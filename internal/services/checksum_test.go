package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksumAlgorithms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o600))

	tests := []struct {
		algorithm string
		want      string
	}{
		{"sha256", "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"},
		{"sha1", "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed"},
		{"md5", "5eb63bbbe01eeed093cb22bb8f5acdc3"},
	}
	for _, tt := range tests {
		sum, err := FileChecksum(path, tt.algorithm)
		require.NoError(t, err, tt.algorithm)
		assert.Equal(t, tt.want, sum, tt.algorithm)
	}
}

func TestFileChecksumUnknownAlgorithm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := FileChecksum(path, "crc32")
	require.Error(t, err)

	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestFileChecksumMissingFile(t *testing.T) {
	_, err := FileChecksum(filepath.Join(t.TempDir(), "missing"), "sha256")
	require.Error(t, err)
}
