//go:build !windows
// +build !windows

package service

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"agentkeeper/internal/logger"
)

// LinuxService runs the keeper with SIGINT/SIGTERM-driven shutdown.
type LinuxService struct {
	runFunc RunFunc
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped bool
}

// NewService creates the platform service wrapper.
func NewService(runFunc RunFunc) Service {
	return &LinuxService{runFunc: runFunc}
}

// Run starts runFunc and blocks until it returns or a shutdown signal
// arrives. The signal cancels the context; runFunc is then expected to
// wind down on its own. A second signal forces exit.
func (s *LinuxService) Run(ctx context.Context) error {
	log := logger.WithComponent("service")

	ctx, s.cancel = context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan error, 1)
	go func() {
		done <- s.runFunc(ctx)
	}()

	log.Info().Msg("Service started")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		s.Stop()

		select {
		case err := <-done:
			return err
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("Received second signal, forcing exit")
			return nil
		}

	case err := <-done:
		return err
	}
}

// Stop cancels the run context. Safe to call more than once.
func (s *LinuxService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil && !s.stopped {
		s.stopped = true
		s.cancel()
	}
	return nil
}

// IsService reports whether stdin is something other than a terminal,
// which is the closest signal systemd gives us.
func (s *LinuxService) IsService() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) == 0
}
