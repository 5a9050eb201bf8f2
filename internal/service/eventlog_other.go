//go:build !windows
// +build !windows

package service

// ReportStartupError is a no-op outside Windows; startup failures land in
// the startup error file and on stderr instead.
func ReportStartupError(name string, err error) {
}
