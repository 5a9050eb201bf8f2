// Package manager wires configuration, secrets, installation and
// monitoring into one run of the keeper.
package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"agentkeeper/internal/alert"
	"agentkeeper/internal/artifact"
	"agentkeeper/internal/command"
	"agentkeeper/internal/config"
	"agentkeeper/internal/installer"
	"agentkeeper/internal/logger"
	"agentkeeper/internal/monitor"
)

// Runner executes external commands. Satisfied by *command.Runner.
type Runner interface {
	Run(ctx context.Context, argv []string, errContext string) (command.Result, error)
}

// Fetcher downloads the agent artifact. Satisfied by *artifact.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (string, error)
}

// Options overrides the default collaborators, mainly for tests.
type Options struct {
	// Platform key; defaults to runtime.GOOS.
	Platform string
	Runner   Runner
	Fetcher  Fetcher
	Alerter  monitor.Alerter
	// ConfigPath, when set, enables hot reload of monitor settings from
	// the config file.
	ConfigPath string
}

// Manager provisions the build agent as a host service and then
// supervises it until shutdown.
type Manager struct {
	cfg        *config.Config
	secrets    config.Secrets
	platform   string
	runner     Runner
	fetcher    Fetcher
	alerter    monitor.Alerter
	inst       installer.Installer
	configPath string
}

// New validates the platform and builds the collaborators. The agent
// secret has already been checked by config.LoadSecrets; the platform
// check here is the last gate before anything touches the host.
func New(cfg *config.Config, secrets config.Secrets, opts Options) (*Manager, error) {
	platform := opts.Platform
	if platform == "" {
		platform = runtime.GOOS
	}

	runner := opts.Runner
	if runner == nil {
		runner = command.NewRunner(command.Options{
			Retries:        cfg.Install.Retries,
			Delay:          time.Duration(cfg.Install.DelaySeconds) * time.Second,
			AttemptTimeout: time.Duration(cfg.Install.AttemptTimeoutSeconds) * time.Second,
			Redact:         []string{secrets.AgentSecret, secrets.SMTPPassword},
		})
	}

	inst, err := installer.ForPlatform(platform, runner, cfg.Install)
	if err != nil {
		return nil, err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = artifact.NewFetcher(cfg.SOCKSProxy)
	}

	alerter := opts.Alerter
	if alerter == nil {
		mailer, err := alert.NewMailer(cfg.Alert, secrets.SMTPPassword, cfg.SOCKSProxy)
		if err != nil {
			return nil, err
		}
		alerter = alert.NewDispatcher(mailer)
	}

	return &Manager{
		cfg:        cfg,
		secrets:    secrets,
		platform:   platform,
		runner:     runner,
		fetcher:    fetcher,
		alerter:    alerter,
		inst:       inst,
		configPath: opts.ConfigPath,
	}, nil
}

// Run fetches the artifact, installs the agent service and hands off to
// the monitor. It returns nil only on a clean shutdown.
func (m *Manager) Run(ctx context.Context) error {
	log := logger.WithComponent("manager")

	spec, err := m.cfg.AgentFor(m.platform)
	if err != nil {
		return err
	}
	log.Info().
		Str("agent", spec.Name).
		Str("platform", m.platform).
		Str("workdir", spec.WorkDir).
		Msg("Provisioning build agent")

	url := artifact.AgentURL(m.cfg.ServerURL)
	jarPath, err := m.fetcher.Fetch(ctx, url, filepath.Join(spec.WorkDir, "agent.jar"))
	if err != nil {
		return err
	}

	desc := installer.Descriptor{
		Name:         spec.Name,
		ServerURL:    m.cfg.ServerURL,
		Secret:       m.secrets.AgentSecret,
		WorkDir:      spec.WorkDir,
		ArtifactPath: jarPath,
		JavaPath:     m.javaPath(),
		User:         m.cfg.Install.User,
	}
	if err := m.inst.Install(ctx, desc); err != nil {
		return err
	}

	mon := monitor.New(spec.Name, m.inst, m.runner, m.alerter, monitor.Settings{
		Interval:         m.cfg.Interval(),
		ReAlertEveryTick: m.cfg.Monitor.ReAlertEveryTick,
		NotifyRecovery:   m.cfg.Monitor.NotifyRecovery,
	})

	if m.configPath != "" {
		watcher, err := config.NewWatcher(m.configPath, func(newCfg *config.Config) {
			mon.Reconfigure(monitor.Settings{
				Interval:         newCfg.Interval(),
				ReAlertEveryTick: newCfg.Monitor.ReAlertEveryTick,
				NotifyRecovery:   newCfg.Monitor.NotifyRecovery,
			})
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create config watcher, hot reload disabled")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher, hot reload disabled")
			if cerr := watcher.Stop(); cerr != nil {
				log.Error().Err(cerr).Msg("Error closing config watcher")
			}
		} else {
			defer func() {
				if err := watcher.Stop(); err != nil {
					log.Error().Err(err).Msg("Error stopping config watcher")
				}
			}()
		}
	}

	return mon.Run(ctx)
}

func (m *Manager) javaPath() string {
	if m.cfg.Install.JavaPath != "" {
		return m.cfg.Install.JavaPath
	}
	if m.platform == "windows" {
		if home := os.Getenv("JAVA_HOME"); home != "" {
			return filepath.Join(home, "bin", "java.exe")
		}
		return "java.exe"
	}
	return "/usr/bin/java"
}

// Category classifies a fatal error for the final log line, so operators
// can tell a crashed run from an intentional stop at a glance.
func Category(err error) string {
	var cfgErr *config.ConfigurationError
	var platErr *installer.UnsupportedPlatformError
	var dlErr *artifact.DownloadError
	var cmdErr *command.CommandError

	switch {
	case errors.As(err, &cfgErr):
		return "configuration"
	case errors.As(err, &platErr):
		return "unsupported_platform"
	case errors.As(err, &dlErr):
		return "download"
	case errors.As(err, &cmdErr):
		return "command"
	default:
		return "internal"
	}
}
