package main

import (
	"bytes"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/mavrouter/config"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Setenv("MAVROUTER_CONFIG", "")
	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.ConfigPaths)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, validateFlags(cfg))
}

func TestParseFlags_ConfigLayers(t *testing.T) {
	t.Setenv("MAVROUTER_CONFIG", "env-a.json, env-b.json")

	cfg, err := parseFlags(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"env-a.json", "env-b.json"}, cfg.ConfigPaths)

	cfg, err = parseFlags(newFlagSet(), []string{"-config", "base.json", "-c", "field.json", "-debug"})
	require.NoError(t, err)
	assert.Equal(t, []string{"base.json", "field.json"}, cfg.ConfigPaths, "flags replace the env list")
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateFlags(t *testing.T) {
	existing := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(existing, []byte(`{}`), 0o600))

	valid := CLIConfig{ConfigPaths: []string{existing}, LogLevel: "info", LogFormat: "text", ShutdownTimeout: time.Second}
	require.NoError(t, validateFlags(&valid))

	tests := []struct {
		name   string
		mutate func(*CLIConfig)
	}{
		{name: "missing file", mutate: func(c *CLIConfig) { c.ConfigPaths = []string{"/nonexistent/cfg.json"} }},
		{name: "bad level", mutate: func(c *CLIConfig) { c.LogLevel = "trace" }},
		{name: "bad format", mutate: func(c *CLIConfig) { c.LogFormat = "xml" }},
		{name: "zero timeout", mutate: func(c *CLIConfig) { c.ShutdownTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, validateFlags(&cfg))
		})
	}

	version := CLIConfig{ShowVersion: true, LogLevel: "bogus"}
	assert.NoError(t, validateFlags(&version), "version skips validation")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "link", "GCS")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"mavrouter"`)
	assert.Contains(t, out, `"link":"GCS"`)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "field.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"kind": "none"}, "http": {"enabled": false}}`), 0o600))

	cfg, err := loadConfig([]string{path})
	require.NoError(t, err)
	assert.Equal(t, config.StoreNone, cfg.Store.Kind)
	assert.False(t, cfg.HTTP.Enabled)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"operator": {"system_id": 0}}`), 0o600))
	_, err = loadConfig([]string{bad})
	assert.Error(t, err)
}
