package manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"agentkeeper/internal/artifact"
	"agentkeeper/internal/command"
	"agentkeeper/internal/config"
	"agentkeeper/internal/installer"
	"agentkeeper/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

func testConfig(serviceDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.ServerURL = "https://ci.example.com"
	cfg.Agents = map[string]config.AgentSpec{
		"linux": {Name: "agent-1", WorkDir: "/var/jenkins"},
	}
	cfg.Alert = config.AlertConfig{
		Email:        "ops@example.com",
		SMTPServer:   "smtp.example.com",
		SMTPPort:     587,
		SMTPUsername: "alerts@example.com",
	}
	cfg.IntervalSeconds = 3600
	cfg.Install.ServiceDir = serviceDir
	cfg.Install.User = "jenkins"
	return cfg
}

func testSecrets() config.Secrets {
	return config.Secrets{AgentSecret: "tok123", SMTPPassword: "mailpw"}
}

// seqRunner records commands and serves a fixed status output. statusSeen
// is closed when the first status query arrives.
type seqRunner struct {
	mu         sync.Mutex
	commands   [][]string
	statusOut  string
	statusSeen chan struct{}
	once       sync.Once
}

func newSeqRunner(statusOut string) *seqRunner {
	return &seqRunner{statusOut: statusOut, statusSeen: make(chan struct{})}
}

func (r *seqRunner) Run(_ context.Context, argv []string, _ string) (command.Result, error) {
	r.mu.Lock()
	r.commands = append(r.commands, argv)
	r.mu.Unlock()

	if len(argv) > 1 && (argv[1] == "is-active" || argv[1] == "query") {
		r.once.Do(func() { close(r.statusSeen) })
		return command.Result{Stdout: r.statusOut, Attempts: 1}, nil
	}
	return command.Result{Attempts: 1}, nil
}

func (r *seqRunner) all() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.commands...)
}

type fakeFetcher struct {
	url  string
	dest string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url, dest string) (string, error) {
	f.url = url
	f.dest = dest
	if f.err != nil {
		return "", f.err
	}
	return dest, nil
}

type fakeAlerter struct {
	mu       sync.Mutex
	subjects []string
}

func (a *fakeAlerter) Dispatch(_ context.Context, subject, _ string) {
	a.mu.Lock()
	a.subjects = append(a.subjects, subject)
	a.mu.Unlock()
}

func (a *fakeAlerter) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.subjects...)
}

func TestRun_EndToEndLinux(t *testing.T) {
	serviceDir := t.TempDir()
	cfg := testConfig(serviceDir)
	runner := newSeqRunner("inactive\n")
	fetcher := &fakeFetcher{}
	alerter := &fakeAlerter{}

	m, err := New(cfg, testSecrets(), Options{
		Platform: "linux",
		Runner:   runner,
		Fetcher:  fetcher,
		Alerter:  alerter,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	select {
	case <-runner.statusSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never queried service status")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if fetcher.url != "https://ci.example.com/jnlpJars/agent.jar" {
		t.Errorf("unexpected artifact URL: %q", fetcher.url)
	}

	commands := runner.all()
	want := []string{
		"systemctl daemon-reload",
		"systemctl enable agent-1",
		"systemctl start agent-1",
		"systemctl is-active agent-1",
	}
	if len(commands) != len(want) {
		t.Fatalf("expected exactly %d commands, got %d: %v", len(want), len(commands), commands)
	}
	for i, w := range want {
		if strings.Join(commands[i], " ") != w {
			t.Errorf("command %d: expected %q, got %v", i, w, commands[i])
		}
	}

	unit, err := os.ReadFile(filepath.Join(serviceDir, "agent-1.service"))
	if err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	if !strings.Contains(string(unit), `-workDir "/var/jenkins"`) {
		t.Errorf("unit file missing workDir flag:\n%s", unit)
	}
	if !strings.Contains(string(unit), "-secret tok123") {
		t.Errorf("unit file missing secret:\n%s", unit)
	}

	subjects := alerter.all()
	if len(subjects) != 1 {
		t.Fatalf("expected exactly 1 alert for the inactive status, got %v", subjects)
	}
	if !strings.Contains(subjects[0], "agent-1") {
		t.Errorf("expected agent name in alert subject, got %q", subjects[0])
	}
}

func TestRun_MissingPlatformAgent(t *testing.T) {
	cfg := testConfig(t.TempDir())
	delete(cfg.Agents, "linux")
	cfg.Agents["windows"] = config.AgentSpec{Name: "agent-w1", WorkDir: `D:\jenkins`}

	m, err := New(cfg, testSecrets(), Options{
		Platform: "linux",
		Runner:   newSeqRunner("active"),
		Fetcher:  &fakeFetcher{},
		Alerter:  &fakeAlerter{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = m.Run(context.Background())
	var cerr *config.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRun_DownloadFailureIsFatalBeforeInstall(t *testing.T) {
	cfg := testConfig(t.TempDir())
	runner := newSeqRunner("active")
	dlErr := &artifact.DownloadError{URL: "https://ci.example.com/jnlpJars/agent.jar", StatusCode: 502}

	m, err := New(cfg, testSecrets(), Options{
		Platform: "linux",
		Runner:   runner,
		Fetcher:  &fakeFetcher{err: dlErr},
		Alerter:  &fakeAlerter{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = m.Run(context.Background())
	var derr *artifact.DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if len(runner.all()) != 0 {
		t.Errorf("expected no commands after failed download, got %v", runner.all())
	}
}

func TestNew_UnsupportedPlatform(t *testing.T) {
	cfg := testConfig(t.TempDir())

	_, err := New(cfg, testSecrets(), Options{
		Platform: "plan9",
		Runner:   newSeqRunner("active"),
		Fetcher:  &fakeFetcher{},
		Alerter:  &fakeAlerter{},
	})

	var perr *installer.UnsupportedPlatformError
	if !errors.As(err, &perr) {
		t.Fatalf("expected UnsupportedPlatformError, got %v", err)
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&config.ConfigurationError{Field: "x", Reason: "y"}, "configuration"},
		{&installer.UnsupportedPlatformError{Platform: "plan9"}, "unsupported_platform"},
		{&artifact.DownloadError{URL: "u", StatusCode: 500}, "download"},
		{&command.CommandError{Context: "c", Attempts: 3, Err: fmt.Errorf("exit status 1")}, "command"},
		{fmt.Errorf("wrapped: %w", &config.ConfigurationError{Field: "x", Reason: "y"}), "configuration"},
		{errors.New("anything else"), "internal"},
	}
	for _, tc := range cases {
		if got := Category(tc.err); got != tc.want {
			t.Errorf("Category(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
