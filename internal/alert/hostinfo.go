package alert

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// withHostContext appends host identification to an alert body so the
// operator can tell which machine fired without checking mail headers.
func withHostContext(body string) string {
	info, err := host.Info()
	if err != nil {
		return body
	}
	uptime := time.Duration(info.Uptime) * time.Second
	return fmt.Sprintf("%s\n\nHost: %s\nOS: %s %s\nUptime: %s",
		body, info.Hostname, info.Platform, info.PlatformVersion, uptime)
}
