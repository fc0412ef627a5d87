package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jchantrell/otadump/internal/source"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "otadump.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.ShowOperations)
	assert.False(t, cfg.Mmap)
	assert.Equal(t, source.DefaultBlockSize, cfg.BufferSize)
	assert.Equal(t, source.DefaultCacheBlocks, cfg.CacheBlocks)
	assert.Empty(t, cfg.Database)
	assert.Equal(t, "otadump", cfg.HTTP.UserAgent)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
log_format: json
show_operations: true
mmap: true
buffer_size: 0
cache_blocks: 4
database: out/ota.db
http:
  user_agent: custom-agent
  headers:
    Authorization: Bearer abc
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.True(t, cfg.ShowOperations)
	assert.True(t, cfg.Mmap)
	assert.Equal(t, 0, cfg.BufferSize)
	assert.Equal(t, 4, cfg.CacheBlocks)
	assert.Equal(t, "out/ota.db", cfg.Database)
	assert.Equal(t, "custom-agent", cfg.HTTP.UserAgent)
	// viper lower-cases map keys
	assert.Equal(t, "Bearer abc", cfg.HTTP.Headers["authorization"])

	opts := cfg.SourceOptions()
	assert.True(t, opts.Mmap)
	assert.Equal(t, 0, opts.BufferSize)
	assert.Len(t, opts.HTTP, 2)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "log level", content: "log_level: verbose\n"},
		{name: "log format", content: "log_format: xml\n"},
		{name: "buffer size", content: "buffer_size: -1\n"},
		{name: "cache blocks", content: "cache_blocks: 0\n"},
		{name: "syntax", content: "log_level: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}
