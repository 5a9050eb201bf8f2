// Package main is the entry point for the agentkeeper daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"agentkeeper/internal/config"
	"agentkeeper/internal/logger"
	"agentkeeper/internal/manager"
	"agentkeeper/internal/service"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const (
	appName            = "AgentKeeper"
	startupErrorLogDir = "logs"
)

func main() {
	var (
		configPath  = flag.String("config", "conf/agentkeeper.json", "Path to configuration file")
		envPath     = flag.String("env", ".env", "Path to environment file with secrets")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentkeeper %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// An absolute config path means service mode: the service manager
	// starts us with an arbitrary working directory, so move to the
	// install base (one level above conf/) before resolving relative
	// log and artifact paths.
	if filepath.IsAbs(*configPath) {
		base := filepath.Dir(filepath.Dir(*configPath))
		if err := os.Chdir(base); err != nil {
			startupFailure(fmt.Errorf("failed to chdir to %s: %w", base, err))
		}
	}

	if probe := service.NewService(nil); probe.IsService() {
		logger.SetServiceMode(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		startupFailure(fmt.Errorf("failed to load configuration: %w", err))
	}

	platform := runtime.GOOS
	secrets, err := config.LoadSecrets(*envPath, platform)
	if err != nil {
		startupFailure(err)
	}

	logCfg := cfg.Logging
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	if err := logger.Init(logCfg); err != nil {
		startupFailure(fmt.Errorf("failed to initialize logger: %w", err))
	}

	log := logger.WithComponent("main")
	log.Info().
		Str("version", version).
		Str("config", *configPath).
		Str("platform", platform).
		Msg("Starting agentkeeper")

	mgr, err := manager.New(cfg, secrets, manager.Options{
		Platform:   platform,
		ConfigPath: *configPath,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("error_category", manager.Category(err)).
			Msg("agentkeeper failed to start")
		os.Exit(1)
	}

	svc := service.NewService(mgr.Run)
	if err := svc.Run(context.Background()); err != nil {
		log.Error().
			Err(err).
			Str("error_category", manager.Category(err)).
			Msg("agentkeeper terminated with fatal error")
		os.Exit(1)
	}

	log.Info().Msg("agentkeeper stopped")
}

// startupFailure reports errors that happen before the logger is up, then
// exits non-zero.
func startupFailure(err error) {
	service.ReportStartupError(appName, err)
	service.WriteStartupErrorFile(startupErrorLogDir, err)
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
