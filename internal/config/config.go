// Package config provides configuration and secret management for agentkeeper.
package config

import (
	"fmt"
	"time"

	"agentkeeper/internal/logger"
)

// Config is the root configuration structure. It is built once at startup
// and passed read-only to every component.
type Config struct {
	ServerURL       string               `json:"serverUrl"`
	Agents          map[string]AgentSpec `json:"agents"`
	Alert           AlertConfig          `json:"alert"`
	IntervalSeconds int                  `json:"intervalSeconds"`
	Debug           bool                 `json:"debug"`

	Monitor    MonitorConfig `json:"monitor"`
	Install    InstallConfig `json:"install"`
	SOCKSProxy SOCKSConfig   `json:"socksProxy"`
	Logging    logger.Config `json:"logging"`
}

// AgentSpec describes the build agent registered for one platform.
type AgentSpec struct {
	Name    string `json:"name"`
	WorkDir string `json:"workdir"`
}

// AlertConfig contains the email alert channel settings. The SMTP password
// comes from Secrets, never from the config file.
type AlertConfig struct {
	Email        string `json:"email"`
	SMTPServer   string `json:"smtpServer"`
	SMTPPort     int    `json:"smtpPort"`
	SMTPUsername string `json:"smtpUsername"`
}

// MonitorConfig tunes the supervision loop beyond the check interval.
type MonitorConfig struct {
	// ReAlertEveryTick disables alert de-duplication for parity with
	// hosts that expect a mail on every failed check.
	ReAlertEveryTick bool `json:"reAlertEveryTick"`
	// NotifyRecovery sends a one-off mail when the service comes back.
	NotifyRecovery bool `json:"notifyRecovery"`
}

// InstallConfig tunes service installation and command execution.
type InstallConfig struct {
	Retries               int    `json:"retries"`
	DelaySeconds          int    `json:"delaySeconds"`
	AttemptTimeoutSeconds int    `json:"attemptTimeoutSeconds"`
	ServiceDir            string `json:"serviceDir"`
	JavaPath              string `json:"javaPath"`
	User                  string `json:"user"`
}

// SOCKSConfig contains SOCKS5 proxy settings for outbound connections
// (artifact download, SMTP submission).
type SOCKSConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ConfigurationError reports a missing or invalid configuration value.
// It is fatal and never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agents:          map[string]AgentSpec{},
		IntervalSeconds: 30,
		Install: InstallConfig{
			Retries:               3,
			DelaySeconds:          5,
			AttemptTimeoutSeconds: 30,
			ServiceDir:            "/etc/systemd/system",
			JavaPath:              "/usr/bin/java",
		},
		Logging: logger.DefaultConfig(),
	}
}

// Interval returns the monitoring interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// AgentFor returns the agent spec registered for the given platform key
// ("linux", "windows").
func (c *Config) AgentFor(platform string) (AgentSpec, error) {
	spec, ok := c.Agents[platform]
	if !ok {
		return AgentSpec{}, &ConfigurationError{
			Field:  "agents." + platform,
			Reason: "no agent registered for this platform",
		}
	}
	if spec.Name == "" {
		return AgentSpec{}, &ConfigurationError{
			Field:  "agents." + platform + ".name",
			Reason: "must not be empty",
		}
	}
	return spec, nil
}

// Validate checks the invariants that every component relies on.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return &ConfigurationError{Field: "serverUrl", Reason: "must not be empty"}
	}
	if len(c.Agents) == 0 {
		return &ConfigurationError{Field: "agents", Reason: "must contain at least one platform entry"}
	}
	if c.IntervalSeconds <= 0 {
		return &ConfigurationError{Field: "intervalSeconds", Reason: "must be positive"}
	}
	if c.Alert.Email == "" {
		return &ConfigurationError{Field: "alert.email", Reason: "must not be empty"}
	}
	if c.Alert.SMTPServer == "" {
		return &ConfigurationError{Field: "alert.smtpServer", Reason: "must not be empty"}
	}
	if c.Alert.SMTPPort <= 0 {
		return &ConfigurationError{Field: "alert.smtpPort", Reason: "must be positive"}
	}
	if c.Install.Retries <= 0 {
		return &ConfigurationError{Field: "install.retries", Reason: "must be positive"}
	}
	return nil
}
