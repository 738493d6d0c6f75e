package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecstore/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vecstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.ProviderLocal, cfg.Provider)
	assert.Equal(t, "vecstore_data", cfg.Local.DataDir)
	assert.Equal(t, "lz4", cfg.Local.Compression)
	assert.Equal(t, "go-json", cfg.Local.Codec)
	assert.Equal(t, config.BlobLocal, cfg.Local.Blob.Backend)
	assert.Equal(t, "default", cfg.DynamoDB.Namespace)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
provider: dynamodb
log_level: debug
dynamodb:
  table: vectors
  namespace: docs
  endpoint: http://localhost:8000
local:
  memory_limit_bytes: 1048576
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderDynamoDB, cfg.Provider)
	assert.Equal(t, "vectors", cfg.DynamoDB.Table)
	assert.Equal(t, "docs", cfg.DynamoDB.Namespace)
	assert.Equal(t, "http://localhost:8000", cfg.DynamoDB.Endpoint)
	assert.Equal(t, int64(1<<20), cfg.Local.MemoryLimitBytes)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("VECSTORE_LOCAL_DATA_DIR", "/var/lib/vecstore")
	t.Setenv("VECSTORE_LOCAL_COMPRESSION", "zstd")
	t.Setenv("VECSTORE_LOCAL_BLOB_BACKEND", "s3")
	t.Setenv("VECSTORE_LOCAL_BLOB_BUCKET", "snapshots")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/vecstore", cfg.Local.DataDir)
	assert.Equal(t, "zstd", cfg.Local.Compression)
	assert.Equal(t, config.BlobS3, cfg.Local.Blob.Backend)
	assert.Equal(t, "snapshots", cfg.Local.Blob.Bucket)
}

func TestLoadViper_FlagPrecedence(t *testing.T) {
	t.Setenv("VECSTORE_LOCAL_DATA_DIR", "/from/env")

	v := viper.New()
	v.Set("local.data_dir", "/from/flag")

	cfg, err := config.LoadViper(v, "")
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Local.DataDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"provider", "provider: redis\n", []string{"provider"}},
		{"dynamodb table", "provider: dynamodb\n", []string{"dynamodb.table"}},
		{"compression", "local:\n  compression: brotli\n", []string{"local.compression"}},
		{"codec and level", "log_level: loud\nlocal:\n  codec: gob\n", []string{"local.codec", "log_level"}},
		{"blob backend", "local:\n  blob:\n    backend: gcs\n", []string{"local.blob.backend"}},
		{"minio endpoint", "local:\n  blob:\n    backend: minio\n    bucket: b\n", []string{"minio"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
