//go:build windows
// +build windows

package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sys/windows/svc"

	"agentkeeper/internal/logger"
)

const serviceName = "AgentKeeper"

// WindowsService runs the keeper under the Windows service control
// manager, or directly when started from a console.
type WindowsService struct {
	runFunc RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

// NewService creates the platform service wrapper.
func NewService(runFunc RunFunc) Service {
	return &WindowsService{runFunc: runFunc}
}

// Run starts the service.
func (s *WindowsService) Run(ctx context.Context) error {
	if !s.IsService() {
		return s.runFunc(ctx)
	}
	return svc.Run(serviceName, s)
}

// Stop cancels the run context. Safe to call more than once.
func (s *WindowsService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil && !s.stopped {
		s.stopped = true
		s.cancel()
	}
	return nil
}

// IsService reports whether the process runs under the SCM.
func (s *WindowsService) IsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Execute implements svc.Handler.
func (s *WindowsService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (svcSpecificEC bool, exitCode uint32) {
	log := logger.WithComponent("service")

	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(s.ctx)
	}()

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info().Msg("Windows service started")

	for {
		select {
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus

			case svc.Stop, svc.Shutdown:
				log.Info().Msg("Received stop request from service control manager")
				changes <- svc.Status{State: svc.StopPending}
				s.Stop()

				select {
				case <-done:
				case <-time.After(30 * time.Second):
					log.Warn().Msg("Timeout waiting for shutdown, stopping anyway")
				}

				changes <- svc.Status{State: svc.Stopped}
				return false, 0

			default:
				log.Warn().Int("cmd", int(c.Cmd)).Msg("Unexpected service control command")
			}

		case err := <-done:
			changes <- svc.Status{State: svc.Stopped}
			if err != nil {
				log.Error().Err(err).Msg("Service run function exited with error")
				return true, 1
			}
			return false, 0
		}
	}
}
