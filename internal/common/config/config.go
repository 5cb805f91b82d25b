// Package config loads engine configuration from environment variables and
// an optional config file via spf13/viper.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kandev/conductor/internal/common/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeout int    `mapstructure:"write_timeout_seconds"`
	Host         string `mapstructure:"host"`
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// DockerConfig controls the optional sandboxed workspace driver.
type DockerConfig struct {
	Host       string `mapstructure:"host"`
	APIVersion string `mapstructure:"api_version"`
	Image      string `mapstructure:"image"`
}

// StoreConfig selects and configures the execution log store.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory, sqlite, postgres
	DSN    string `mapstructure:"dsn"`
}

// OrchestratorConfig controls concurrency, timeouts and defaults for the
// runtime shared across all patterns and the design graph runner.
type OrchestratorConfig struct {
	DefaultModel       string `mapstructure:"default_model"`
	MaxParallelBlocks  int    `mapstructure:"max_parallel_blocks"`
	MaxParallelAgents  int    `mapstructure:"max_parallel_agents"`
	AgentTimeoutSec    int    `mapstructure:"agent_timeout_seconds"`
	CancelGraceSec     int    `mapstructure:"cancel_grace_seconds"`
	ProjectRoot        string `mapstructure:"project_root"`
	CredentialsPath    string `mapstructure:"credentials_path"`
	WorkspaceDriver    string `mapstructure:"workspace_driver"` // local, docker
}

func (o OrchestratorConfig) AgentTimeout() time.Duration {
	return time.Duration(o.AgentTimeoutSec) * time.Second
}

func (o OrchestratorConfig) CancelGrace() time.Duration {
	return time.Duration(o.CancelGraceSec) * time.Second
}

// DeploymentConfig controls the async trigger/poll/schedule surface.
type DeploymentConfig struct {
	SkipIfActive  bool `mapstructure:"schedule_skip_if_active"`
	TickResolutionSec int `mapstructure:"tick_resolution_seconds"`
}

// LoggingConfig mirrors logger.LoggingConfig for mapstructure decoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the root configuration object.
type Config struct {
	Server       ServerConfig        `mapstructure:"server"`
	Logging      LoggingConfig       `mapstructure:"logging"`
	Docker       DockerConfig        `mapstructure:"docker"`
	Store        StoreConfig         `mapstructure:"store"`
	Orchestrator OrchestratorConfig  `mapstructure:"orchestrator"`
	Deployment   DeploymentConfig    `mapstructure:"deployment"`
}

func (c Config) ToLoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{Level: c.Logging.Level, Format: c.Logging.Format}
}

// Load reads configuration from (in increasing precedence) defaults, an
// optional config file named "conductor" on the search path, and
// CONDUCTOR_-prefixed environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("conductor")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/conductor")

	v.SetEnvPrefix("CONDUCTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout_seconds", 30)
	v.SetDefault("server.write_timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("docker.host", "")
	v.SetDefault("docker.api_version", "")
	v.SetDefault("docker.image", "conductor/sandbox:latest")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")

	v.SetDefault("orchestrator.default_model", "default")
	v.SetDefault("orchestrator.max_parallel_blocks", 4)
	v.SetDefault("orchestrator.max_parallel_agents", 8)
	v.SetDefault("orchestrator.agent_timeout_seconds", 120)
	v.SetDefault("orchestrator.cancel_grace_seconds", 5)
	v.SetDefault("orchestrator.project_root", ".")
	v.SetDefault("orchestrator.credentials_path", "/tmp/conductor/credentials")
	v.SetDefault("orchestrator.workspace_driver", "local")

	v.SetDefault("deployment.schedule_skip_if_active", true)
	v.SetDefault("deployment.tick_resolution_seconds", 1)
}
