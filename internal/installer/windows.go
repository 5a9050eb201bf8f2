package installer

import (
	"context"
	"fmt"
	"strings"

	"agentkeeper/internal/logger"
)

// Windows installs the agent through the service control manager (sc.exe).
type Windows struct {
	runner Runner
}

// NewWindows creates the sc.exe-based installer.
func NewWindows(runner Runner) *Windows {
	return &Windows{runner: runner}
}

func (w *Windows) Platform() string {
	return "windows"
}

// Install registers the service with auto-start and then starts it.
// sc.exe create fails when the name is already registered; replacing an
// agent requires deleting the old service first.
func (w *Windows) Install(ctx context.Context, d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	log := logger.WithComponent("installer")

	binPath := fmt.Sprintf("%s -jar %s -url %s -secret %s -name %s -workDir %s",
		d.JavaPath, d.ArtifactPath, d.ServerURL, d.Secret, d.Name, d.WorkDir)

	createCmd := []string{"sc.exe", "create", d.Name, "binPath=", binPath, "start=", "auto"}
	if _, err := w.runner.Run(ctx, createCmd, fmt.Sprintf("create Windows service %q", d.Name)); err != nil {
		return err
	}

	startCmd := []string{"sc.exe", "start", d.Name}
	if _, err := w.runner.Run(ctx, startCmd, fmt.Sprintf("start Windows service %q", d.Name)); err != nil {
		return err
	}

	log.Info().
		Str("service", d.Name).
		Msg("Agent service installed and started")
	return nil
}

// StatusCommand queries the service control manager.
func (w *Windows) StatusCommand(name string) []string {
	return []string{"sc.exe", "query", name}
}

// ParseState looks for the RUNNING token in sc.exe query output; anything
// else (STOPPED, START_PENDING, error text) counts as down.
func (w *Windows) ParseState(stdout string) State {
	if strings.Contains(stdout, "RUNNING") {
		return StateActive
	}
	return StateInactive
}
