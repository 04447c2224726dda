// Package coreconfig loads AgentMux core configuration from environment
// variables, an optional config file under AGENTMUX_HOME, and defaults.
package coreconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/agentmux/agentmux/internal/corelog"
)

// Config holds every tunable the core components need.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Logging   corelog.Config  `mapstructure:"logging"`
}

// AgentConfig controls the Lifecycle Supervisor's escalation ladder.
type AgentConfig struct {
	Step1BudgetMs          int    `mapstructure:"step1BudgetMs"`
	Step2BudgetMs          int    `mapstructure:"step2BudgetMs"`
	RuntimeReadyTimeoutMs  int    `mapstructure:"runtimeReadyTimeoutMs"`
	RuntimeReadyPollMs     int    `mapstructure:"runtimeReadyPollMs"`
	OrchestratorReadyMs    int    `mapstructure:"orchestratorReadyMs"`
	MemberReadyMs          int    `mapstructure:"memberReadyMs"`
	InitTotalTimeoutMs     int    `mapstructure:"initTotalTimeoutMs"`
	DefaultRuntime         string `mapstructure:"defaultRuntime"`
	OrchestratorSessionName string `mapstructure:"orchestratorSessionName"`
}

// DeliveryConfig controls the TUI Message Delivery Engine.
type DeliveryConfig struct {
	PromptDetectionTimeoutMs int `mapstructure:"promptDetectionTimeoutMs"`
	MaxEnterRetries          int `mapstructure:"maxEnterRetries"`
	InitialMessageDelayMs    int `mapstructure:"initialMessageDelayMs"`
	PasteCheckDelayMs        int `mapstructure:"pasteCheckDelayMs"`
	EnterRetryDelayMs        int `mapstructure:"enterRetryDelayMs"`
	RingBufferBytes          int `mapstructure:"ringBufferBytes"`
	MaxAttempts              int `mapstructure:"maxAttempts"`
}

// HeartbeatConfig controls the Heartbeat Store and Batcher.
type HeartbeatConfig struct {
	BatchSizeTrigger     int   `mapstructure:"batchSizeTrigger"`
	BatchIntervalMs      int   `mapstructure:"batchIntervalMs"`
	StaleThresholdMinutes int  `mapstructure:"staleThresholdMinutes"`
}

// Durations converts the millisecond fields for convenience.
func (d DeliveryConfig) PromptDetectionTimeout() time.Duration {
	return time.Duration(d.PromptDetectionTimeoutMs) * time.Millisecond
}
func (d DeliveryConfig) InitialMessageDelay() time.Duration {
	return time.Duration(d.InitialMessageDelayMs) * time.Millisecond
}
func (d DeliveryConfig) PasteCheckDelay() time.Duration {
	return time.Duration(d.PasteCheckDelayMs) * time.Millisecond
}
func (d DeliveryConfig) EnterRetryDelay() time.Duration {
	return time.Duration(d.EnterRetryDelayMs) * time.Millisecond
}

func (h HeartbeatConfig) BatchInterval() time.Duration {
	return time.Duration(h.BatchIntervalMs) * time.Millisecond
}
func (h HeartbeatConfig) StaleThreshold() time.Duration {
	return time.Duration(h.StaleThresholdMinutes) * time.Minute
}

// Home returns AGENTMUX_HOME, defaulting to ~/.agentmux, creating it if missing.
func Home() (string, error) {
	home := os.Getenv("AGENTMUX_HOME")
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		home = filepath.Join(dir, ".agentmux")
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return "", err
	}
	return home, nil
}

// Load reads configuration from AGENTMUX_HOME/config.yaml (if present) and
// AGENTMUX_* environment variables, falling back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTMUX")
	v.AutomaticEnv()

	if home, err := Home(); err == nil {
		v.AddConfigPath(home)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.step1BudgetMs", 40_000)
	v.SetDefault("agent.step2BudgetMs", 30_000)
	v.SetDefault("agent.runtimeReadyTimeoutMs", 30_000)
	v.SetDefault("agent.runtimeReadyPollMs", 1_500)
	v.SetDefault("agent.orchestratorReadyMs", 45_000)
	v.SetDefault("agent.memberReadyMs", 25_000)
	v.SetDefault("agent.initTotalTimeoutMs", 90_000)
	v.SetDefault("agent.defaultRuntime", "claude-code")
	v.SetDefault("agent.orchestratorSessionName", "orchestrator")

	v.SetDefault("delivery.promptDetectionTimeoutMs", 20_000)
	v.SetDefault("delivery.maxEnterRetries", 5)
	v.SetDefault("delivery.initialMessageDelayMs", 1_000)
	v.SetDefault("delivery.pasteCheckDelayMs", 500)
	v.SetDefault("delivery.enterRetryDelayMs", 1_000)
	v.SetDefault("delivery.ringBufferBytes", 8*1024)
	v.SetDefault("delivery.maxAttempts", 3)

	v.SetDefault("heartbeat.batchSizeTrigger", 50)
	v.SetDefault("heartbeat.batchIntervalMs", 2_000)
	v.SetDefault("heartbeat.staleThresholdMinutes", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}
