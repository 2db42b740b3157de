package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BLOB_READ_WRITE_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "scheduler-data", cfg.Blob.Prefix)
	assert.Equal(t, BackendMemory, cfg.Blob.Backend)
	assert.Equal(t, "public", cfg.Blob.Access)
	assert.Equal(t, 1, cfg.Blob.Keep)
	assert.Equal(t, 15*time.Second, cfg.Client.Timeout)
	assert.False(t, cfg.Auth.Enabled())
	assert.Empty(t, cfg.Blob.Token, "missing token must not fail Load")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BLOB_READ_WRITE_TOKEN", "vercel_blob_rw_abc")
	t.Setenv("BLOB_BACKEND", "filesystem")
	t.Setenv("BLOB_DIR", "/tmp/blobs")
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AUTH_SECRET", "s3cret")
	t.Setenv("SCHEDULER_ENDPOINT", "http://example.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "vercel_blob_rw_abc", cfg.Blob.Token)
	assert.Equal(t, BackendFilesystem, cfg.Blob.Backend)
	assert.Equal(t, "/tmp/blobs", cfg.Blob.Dir)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "http://example.test", cfg.Client.Endpoint)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Address())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "port out of range", env: map[string]string{"SERVER_PORT": "70000"}},
		{name: "unknown backend", env: map[string]string{"BLOB_BACKEND": "s3"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
		{name: "keep zero", env: map[string]string{"BLOB_KEEP": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
