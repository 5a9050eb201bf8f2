package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"agentkeeper/internal/config"
	"agentkeeper/internal/logger"
)

const unitTemplate = `[Unit]
Description=Build agent {{.Name}}
After=network.target

[Service]
ExecStart={{.JavaPath}} -jar {{.ArtifactPath}} -url {{.ServerURL}} -secret {{.Secret}} -name "{{.Name}}" -workDir "{{.WorkDir}}"
Restart=always
{{- if .User}}
User={{.User}}
{{- end}}

[Install]
WantedBy=multi-user.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

// Linux installs the agent as a systemd unit.
type Linux struct {
	runner     Runner
	serviceDir string
}

// NewLinux creates the systemd installer. cfg.ServiceDir overrides the
// system service directory, which tests point at a scratch dir.
func NewLinux(runner Runner, cfg config.InstallConfig) *Linux {
	dir := cfg.ServiceDir
	if dir == "" {
		dir = "/etc/systemd/system"
	}
	return &Linux{runner: runner, serviceDir: dir}
}

func (l *Linux) Platform() string {
	return "linux"
}

// Install renders the unit file, writes it inside a temporary o+w window on
// the service directory, then reloads, enables and starts the unit. The
// first failed step aborts; there is no partial-success continuation.
func (l *Linux) Install(ctx context.Context, d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	log := logger.WithComponent("installer")

	var unit strings.Builder
	if err := unitTmpl.Execute(&unit, d); err != nil {
		return fmt.Errorf("failed to render unit file: %w", err)
	}

	unitPath := filepath.Join(l.serviceDir, d.Name+".service")
	if err := l.writeUnitFile(unitPath, unit.String()); err != nil {
		return err
	}
	log.Info().Str("path", unitPath).Msg("Unit file written")

	steps := []struct {
		argv       []string
		errContext string
	}{
		{[]string{"systemctl", "daemon-reload"}, "reload systemd configuration"},
		{[]string{"systemctl", "enable", d.Name}, fmt.Sprintf("enable service %q", d.Name)},
		{[]string{"systemctl", "start", d.Name}, fmt.Sprintf("start service %q", d.Name)},
	}
	for _, step := range steps {
		if _, err := l.runner.Run(ctx, step.argv, step.errContext); err != nil {
			return err
		}
	}

	log.Info().Str("service", d.Name).Msg("Agent service installed and started")
	return nil
}

// writeUnitFile grants other-write on the service directory only for the
// duration of the write, and always reverts before returning.
func (l *Linux) writeUnitFile(path, content string) error {
	info, err := os.Stat(l.serviceDir)
	if err != nil {
		return fmt.Errorf("failed to stat service directory: %w", err)
	}
	orig := info.Mode().Perm()

	if err := os.Chmod(l.serviceDir, orig|0o002); err != nil {
		return fmt.Errorf("failed to open write window on %s: %w", l.serviceDir, err)
	}
	defer func() {
		if err := os.Chmod(l.serviceDir, orig); err != nil {
			log := logger.WithComponent("installer")
			log.Error().
				Err(err).
				Str("dir", l.serviceDir).
				Msg("Failed to revert service directory permissions")
		}
	}()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write unit file %s: %w", path, err)
	}
	return nil
}

// StatusCommand queries the live unit state.
func (l *Linux) StatusCommand(name string) []string {
	return []string{"systemctl", "is-active", name}
}

// ParseState treats exactly "active" as up; everything else (inactive,
// failed, activating, garbage) counts as down.
func (l *Linux) ParseState(stdout string) State {
	if strings.TrimSpace(stdout) == "active" {
		return StateActive
	}
	return StateInactive
}
