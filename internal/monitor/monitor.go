// Package monitor implements the supervision loop that keeps watch over
// the installed agent service.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"agentkeeper/internal/command"
	"agentkeeper/internal/installer"
	"agentkeeper/internal/logger"
)

// Runner executes status commands. Satisfied by *command.Runner.
type Runner interface {
	Run(ctx context.Context, argv []string, errContext string) (command.Result, error)
}

// StatusSource supplies the platform status command and output mapping.
// Satisfied by every installer.Installer.
type StatusSource interface {
	StatusCommand(name string) []string
	ParseState(stdout string) installer.State
}

// Alerter delivers operator notifications. It must absorb its own
// failures; the monitor never handles an alert error.
type Alerter interface {
	Dispatch(ctx context.Context, subject, body string)
}

// Settings are the hot-reloadable monitoring knobs.
type Settings struct {
	Interval time.Duration
	// ReAlertEveryTick disables de-duplication: one mail per down tick.
	ReAlertEveryTick bool
	// NotifyRecovery sends a mail when the service transitions back up.
	NotifyRecovery bool
}

// Monitor polls the service state once per interval and raises alerts on
// transitions to down. One outage produces one alert unless re-alerting
// is enabled.
type Monitor struct {
	name    string
	status  StatusSource
	runner  Runner
	alerter Alerter
	clk     clock.Clock

	mu       sync.Mutex
	settings Settings
	alerted  bool
}

const defaultInterval = 30 * time.Second

// New creates a monitor for the named service.
func New(name string, status StatusSource, runner Runner, alerter Alerter, settings Settings) *Monitor {
	if settings.Interval <= 0 {
		settings.Interval = defaultInterval
	}
	return &Monitor{
		name:     name,
		status:   status,
		runner:   runner,
		alerter:  alerter,
		clk:      clock.New(),
		settings: settings,
	}
}

// Reconfigure replaces the settings. Takes effect from the next tick.
func (m *Monitor) Reconfigure(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Interval <= 0 {
		s.Interval = m.settings.Interval
	}
	m.settings = s
	log := logger.WithComponent("monitor")
	log.Info().
		Dur("interval", s.Interval).
		Bool("realert_every_tick", s.ReAlertEveryTick).
		Bool("notify_recovery", s.NotifyRecovery).
		Msg("Monitor settings updated")
}

// Run checks the service immediately and then once per interval until ctx
// is cancelled. A failed check never stops the loop; only cancellation
// does, and it is observed at tick boundaries, never mid-command.
func (m *Monitor) Run(ctx context.Context) error {
	log := logger.WithComponent("monitor")

	interval := m.interval()
	log.Info().
		Str("service", m.name).
		Dur("interval", interval).
		Msg("Starting service monitoring")

	m.check(ctx)

	ticker := m.clk.Ticker(interval)
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("service", m.name).Msg("Monitoring stopped")
			return nil
		case <-ticker.C:
			m.check(ctx)

			if next := m.interval(); next != interval {
				interval = next
				ticker.Stop()
				ticker = m.clk.Ticker(interval)
			}
		}
	}
}

func (m *Monitor) interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Interval
}

// check performs one monitoring tick. Exported to the package tests via
// direct calls so the transition logic is testable without a clock.
func (m *Monitor) check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	log := logger.WithComponent("monitor")
	state := m.queryState(ctx)

	m.mu.Lock()
	wasAlerted := m.alerted
	reAlert := m.settings.ReAlertEveryTick
	notifyRecovery := m.settings.NotifyRecovery
	m.mu.Unlock()

	if state == installer.StateActive {
		if wasAlerted {
			m.setAlerted(false)
			log.Info().Str("service", m.name).Msg("Service recovered")
			if notifyRecovery {
				m.alerter.Dispatch(ctx,
					fmt.Sprintf("Build agent recovered: %s", m.name),
					fmt.Sprintf("Service %q is active again.", m.name))
			}
		} else {
			log.Debug().Str("service", m.name).Msg("Service is active")
		}
		return
	}

	if wasAlerted && !reAlert {
		log.Debug().Str("service", m.name).Msg("Service still down, alert already sent")
		return
	}

	log.Warn().Str("service", m.name).Str("state", state.String()).Msg("Service is down, sending alert")
	m.alerter.Dispatch(ctx,
		fmt.Sprintf("Build agent alert: %s", m.name),
		fmt.Sprintf("Service %q is down (observed state: %s).", m.name, state))
	m.setAlerted(true)
}

func (m *Monitor) setAlerted(v bool) {
	m.mu.Lock()
	m.alerted = v
	m.mu.Unlock()
}

// queryState runs the platform status command. Command failure after all
// retries degrades to "assume down, try again next tick".
func (m *Monitor) queryState(ctx context.Context) installer.State {
	errContext := fmt.Sprintf("check status of service %q", m.name)
	res, err := m.runner.Run(ctx, m.status.StatusCommand(m.name), errContext)
	if err != nil {
		log := logger.WithComponent("monitor")
		log.Error().
			Err(err).
			Str("service", m.name).
			Msg("Status check failed, assuming service is down")
		return installer.StateInactive
	}
	return m.status.ParseState(res.Stdout)
}
