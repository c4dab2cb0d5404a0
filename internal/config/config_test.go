package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Settings.PacketInterval())
	assert.Equal(t, 4, cfg.Settings.UnreliableDepth())
	assert.Equal(t, 8, cfg.Settings.Depth(true))
	assert.Equal(t, 30, cfg.Settings.MaxPacketsPerSecond())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
settings:
  packetRate: 30
logging:
  level: warn
  sinks: [console, memory]
record:
  enabled: true
handshake:
  writeTimeout: 3s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, 30, cfg.Settings.PacketRate)
	assert.Equal(t, 60, cfg.Settings.TickRate, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Settings.PacketInterval())
	assert.Equal(t, logging.SeverityWarn, cfg.Logging.MinimumSeverity)
	assert.Equal(t, []string{"console", "memory"}, cfg.Logging.EnabledSinks)
	assert.True(t, cfg.Record.Enabled)
	assert.Equal(t, "recordings.db", cfg.Record.Database)
	assert.Equal(t, 3*time.Second, cfg.Handshake.WriteTimeout)
}

func TestLoadEmptyFileGivesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "listne: \":1\"\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvListen:     ":8081",
		EnvTickRate:   "30",
		EnvPacketRate: "10",
		EnvRecord:     "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, ":8081", cfg.Listen)
	assert.Equal(t, 30, cfg.Settings.TickRate)
	assert.Equal(t, 10, cfg.Settings.PacketRate)
	assert.True(t, cfg.Record.Enabled)
}

func TestApplyEnvReportsBadValues(t *testing.T) {
	env := map[string]string{EnvTickRate: "fast", EnvRecord: "sometimes"}
	cfg := Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvTickRate)
	assert.Contains(t, err.Error(), EnvRecord)
	assert.Equal(t, 60, cfg.Settings.TickRate)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.Listen = ""
	cfg.Settings.PacketRate = 120
	cfg.Logging.Level = "loud"
	cfg.Logging.EnabledSinks = []string{"json", "syslog"}
	cfg.Record = RecordConfig{Enabled: true}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"listen", "packetRate 120 exceeds tickRate 60", "loud", "syslog", "json.path", "database"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSettingsDepthFloor(t *testing.T) {
	s := DefaultSettings()
	s.ReliableBufferDepth = 0
	assert.Equal(t, 1, s.Depth(true))

	s.PacketRate = 60
	assert.Equal(t, 1, s.PacketInterval())
	assert.Equal(t, 2, s.UnreliableDepth())
}
