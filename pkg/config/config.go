// Package config holds the application configuration: a YAML file with
// atomic save and change watching.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/andrej220/fleetup/internal/sshexec"
)

// EnvDataDir overrides the default data directory location.
const EnvDataDir = "FLEETUP_DATA"

type SSHConfig struct {
	DialTimeoutSec    int    `yaml:"dialTimeoutSec" validate:"gte=0"`
	CommandTimeoutSec int    `yaml:"commandTimeoutSec" validate:"gte=0"`
	RetryBudgetSec    int    `yaml:"retryBudgetSec" validate:"gte=0"`
	HostKeyPolicy     string `yaml:"hostKeyPolicy" validate:"oneof=insecure accept-new"`
	KnownHostsPath    string `yaml:"knownHostsPath"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" validate:"required_if=Enabled true,omitempty,min=1,dive,hostname_port"`
	Topic   string   `yaml:"topic" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Debug  bool   `yaml:"debug"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// AppConfig is the full application configuration.
type AppConfig struct {
	DataDir      string      `yaml:"dataDir" validate:"required"`
	RegistryPath string      `yaml:"registryPath"`
	ReportDir    string      `yaml:"reportDir"`
	SSH          SSHConfig   `yaml:"ssh"`
	Kafka        KafkaConfig `yaml:"kafka"`
	Log          LogConfig   `yaml:"log"`
}

var validate = validator.New()

func (c AppConfig) Validate() error {
	return validate.Struct(c)
}

// Default returns the configuration used when no file exists yet. The
// data directory comes from FLEETUP_DATA, falling back to ~/.fleetup.
func Default() AppConfig {
	dataDir := os.Getenv(EnvDataDir)
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataDir = filepath.Join(home, ".fleetup")
	}
	return AppConfig{
		DataDir:      dataDir,
		RegistryPath: filepath.Join(dataDir, "hosts.db"),
		ReportDir:    filepath.Join(dataDir, "reports"),
		SSH: SSHConfig{
			DialTimeoutSec:    10,
			CommandTimeoutSec: 90,
			RetryBudgetSec:    15,
			HostKeyPolicy:     string(sshexec.PolicyAcceptNew),
			KnownHostsPath:    filepath.Join(dataDir, "known_hosts"),
		},
		Log: LogConfig{Format: "console"},
	}
}

// SSHExecConfig converts the file representation to executor settings.
func (c AppConfig) SSHExecConfig() sshexec.Config {
	return sshexec.Config{
		DialTimeout:     time.Duration(c.SSH.DialTimeoutSec) * time.Second,
		CommandTimeout:  time.Duration(c.SSH.CommandTimeoutSec) * time.Second,
		RetryMaxElapsed: time.Duration(c.SSH.RetryBudgetSec) * time.Second,
		HostKeyPolicy:   sshexec.HostKeyPolicy(c.SSH.HostKeyPolicy),
		KnownHostsPath:  c.SSH.KnownHostsPath,
	}
}
