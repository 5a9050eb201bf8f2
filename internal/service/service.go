// Package service integrates this process with the host's service
// manager: signal handling on Linux, service control on Windows.
package service

import "context"

// RunFunc is the main function that runs the keeper logic. It must return
// promptly after its context is cancelled.
type RunFunc func(ctx context.Context) error

// Service runs the keeper under the platform's process management rules.
type Service interface {
	// Run starts the service and blocks until it stops.
	Run(ctx context.Context) error

	// Stop requests a cooperative shutdown.
	Stop() error

	// IsService reports whether the process runs under a service manager
	// rather than an interactive console.
	IsService() bool
}
