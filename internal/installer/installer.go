// Package installer registers the build agent as a host-managed service,
// with one implementation per supported platform.
package installer

import (
	"context"
	"fmt"

	"agentkeeper/internal/command"
	"agentkeeper/internal/config"
)

// Runner executes external commands. Satisfied by *command.Runner.
type Runner interface {
	Run(ctx context.Context, argv []string, errContext string) (command.Result, error)
}

// Descriptor is everything needed to register and launch the agent service.
// It is derived once per run from config, secrets and the fetched artifact.
type Descriptor struct {
	Name         string
	ServerURL    string
	Secret       string
	WorkDir      string
	ArtifactPath string
	JavaPath     string
	// User is the account the unit runs as (Linux only, optional).
	User string
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return &config.ConfigurationError{Field: "agent name", Reason: "must not be empty"}
	}
	if d.Secret == "" {
		return &config.ConfigurationError{Field: "agent secret", Reason: "must not be empty"}
	}
	return nil
}

// State is the observed service state from one live status query.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Installer registers, starts and reports status for the agent service on
// one platform.
type Installer interface {
	// Install writes the service definition and brings the service up.
	// On Linux a re-install overwrites the unit in place; on Windows the
	// existing service must be deleted first.
	Install(ctx context.Context, d Descriptor) error

	// StatusCommand returns the command vector that queries live status.
	StatusCommand(name string) []string

	// ParseState maps raw status output to a State. Anything that is not
	// a positive "running" signal maps to StateInactive so failures lean
	// toward alerting rather than silence.
	ParseState(stdout string) State

	// Platform returns the platform key this installer serves.
	Platform() string
}

// UnsupportedPlatformError is returned for platforms without an installer.
// No mutation is attempted before it is raised.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q (supported: linux, windows)", e.Platform)
}

// ForPlatform selects the installer for the given platform key.
func ForPlatform(platform string, runner Runner, cfg config.InstallConfig) (Installer, error) {
	switch platform {
	case "linux":
		return NewLinux(runner, cfg), nil
	case "windows":
		return NewWindows(runner), nil
	default:
		return nil, &UnsupportedPlatformError{Platform: platform}
	}
}
