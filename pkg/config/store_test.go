package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store := NewStore(path)

	cfg := Default()
	cfg.SSH.CommandTimeoutSec = 120
	cfg.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "fleet-events"}
	require.NoError(t, store.Save(cfg))

	var got AppConfig
	require.NoError(t, store.Load(&got))
	assert.Equal(t, cfg, got)
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "absent.yaml"))
	var cfg AppConfig
	err := store.Load(&cfg)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveRejectsInvalid(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "config.yaml"))

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"empty data dir", func(c *AppConfig) { c.DataDir = "" }},
		{"bad host key policy", func(c *AppConfig) { c.SSH.HostKeyPolicy = "trust-everything" }},
		{"kafka enabled without topic", func(c *AppConfig) {
			c.Kafka = KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, store.Save(cfg))
		})
	}
}

func TestDefaultHonorsEnvDataDir(t *testing.T) {
	t.Setenv(EnvDataDir, "/var/lib/fleetup")
	cfg := Default()
	assert.Equal(t, "/var/lib/fleetup", cfg.DataDir)
	assert.Equal(t, filepath.Join("/var/lib/fleetup", "hosts.db"), cfg.RegistryPath)
	require.NoError(t, cfg.Validate())
}

func TestSSHExecConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.SSH.DialTimeoutSec = 5
	ec := cfg.SSHExecConfig()
	assert.Equal(t, float64(5), ec.DialTimeout.Seconds())
	assert.Equal(t, cfg.SSH.KnownHostsPath, ec.KnownHostsPath)
}
