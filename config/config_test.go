package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

const sample = `
part_size: 64MiB
concurrency: 8
abort_timeout: 1m
journal: ""
log:
  level: debug
  format: json
retry:
  max_attempts: 3
  base_delay: 100ms
  max_delay: 2s
endpoints:
  archive:
    type: s3
    bucket: archive-bucket
    region: eu-west-1
  scratch:
    type: memory
  local:
    type: fs
    root: /tmp/xfer
`

func TestRead(t *testing.T) {
	cfg, err := Read(strings.NewReader(sample), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "64MiB", cfg.PartSize)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.AbortTimeout)
	assert.True(t, cfg.DetectContentType, "default applies")
	assert.Equal(t, Log{Level: "debug", Format: "json"}, cfg.Log)
	assert.Equal(t, Retry{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}, cfg.Retry)
	require.Len(t, cfg.Endpoints, 3)
	assert.Equal(t, "archive-bucket", cfg.Endpoints["archive"].Bucket)
	assert.Equal(t, TypeFS, cfg.Endpoints["local"].Type)

	size, err := PartSizeBytes(cfg.PartSize)
	require.NoError(t, err)
	assert.Equal(t, int64(64<<20), size)
}

func TestRead_Defaults(t *testing.T) {
	cfg, err := Read(strings.NewReader("endpoints:\n  m:\n    type: memory\n"), "yaml")
	require.NoError(t, err)

	assert.Equal(t, DefaultPartSize, cfg.PartSize)
	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.AbortTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestRead_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "no endpoints",
			yaml:    "concurrency: 2\n",
			wantMsg: "Endpoints is required",
		},
		{
			name:    "unknown type",
			yaml:    "endpoints:\n  x:\n    type: ftp\n",
			wantMsg: "Type must be one of",
		},
		{
			name:    "s3 without bucket",
			yaml:    "endpoints:\n  x:\n    type: s3\n",
			wantMsg: "Bucket is required for s3 endpoints",
		},
		{
			name:    "minio without url",
			yaml:    "endpoints:\n  x:\n    type: minio\n    bucket: b\n",
			wantMsg: "URL is required for minio endpoints",
		},
		{
			name:    "storj without grant",
			yaml:    "endpoints:\n  x:\n    type: storj\n    bucket: b\n",
			wantMsg: "AccessGrant is required for storj endpoints",
		},
		{
			name:    "fs without root",
			yaml:    "endpoints:\n  x:\n    type: fs\n",
			wantMsg: "Root is required for fs endpoints",
		},
		{
			name:    "bad part size",
			yaml:    "part_size: lots\nendpoints:\n  x:\n    type: memory\n",
			wantMsg: `part_size "lots"`,
		},
		{
			name:    "bad log level",
			yaml:    "log:\n  level: loud\nendpoints:\n  x:\n    type: memory\n",
			wantMsg: "Log.Level must be one of",
		},
		{
			name:    "max delay below base",
			yaml:    "retry:\n  base_delay: 5s\n  max_delay: 1s\nendpoints:\n  x:\n    type: memory\n",
			wantMsg: "Retry.MaxDelay must not be less than BaseDelay",
		},
		{
			name:    "concurrency out of range",
			yaml:    "concurrency: 500\nendpoints:\n  x:\n    type: memory\n",
			wantMsg: "Concurrency failed lte=64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.yaml), "yaml")
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xfer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Run("explicit path", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Concurrency)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("XFER_CONCURRENCY", "2")
		t.Setenv("XFER_LOG_LEVEL", "warn")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Concurrency)
		assert.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestPartSizeBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "100MiB", want: 100 << 20},
		{in: "5 MB", want: 5_000_000},
		{in: "1GiB", want: 1 << 30},
		{in: "0", wantErr: true},
		{in: "2TiB", wantErr: true},
		{in: "many", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := PartSizeBytes(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientOptions(t *testing.T) {
	cfg, err := Read(strings.NewReader(`
part_size: 1KiB
journal: `+filepath.Join(t.TempDir(), "journal.db")+`
endpoints:
  a:
    type: memory
  b:
    type: memory
  disk:
    type: fs
    root: `+t.TempDir()+`
`), "yaml")
	require.NoError(t, err)

	opts, closers, err := cfg.ClientOptions(context.Background(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closers.Close() })
	assert.Len(t, closers, 1, "journal")

	c, err := xfer.New(opts...)
	require.NoError(t, err)

	sources, destinations := c.Endpoints()
	assert.Equal(t, []string{"a", "b", "disk"}, sources)
	assert.Equal(t, []string{"a", "b", "disk"}, destinations)

	sessions, err := c.Sessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)

	p, err := c.Plan(context.Background(), xfertypes.TransferRequest{
		Source:      xfertypes.ObjectRef{Endpoint: "a", Object: "missing"},
		Destination: xfertypes.ObjectRef{Endpoint: "b", Object: "x"},
	})
	assert.Nil(t, p)
	assert.True(t, errors.IsObjectNotFound(err))
}

func TestBuildEndpoint_Unknown(t *testing.T) {
	_, _, err := BuildEndpoint(context.Background(), Endpoint{Type: "tape"})
	assert.True(t, errors.IsInvalidInput(err))
}
