package service

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteStartupErrorFile records a startup failure in a well-known file so
// that it is visible even when the logger never came up. Only the most
// recent error is kept.
func WriteStartupErrorFile(logDir string, err error) {
	_ = os.MkdirAll(logDir, 0o755)

	f, ferr := os.Create(filepath.Join(logDir, "startup-error.log"))
	if ferr != nil {
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "[%s] STARTUP ERROR\n%v\n", time.Now().Format("2006-01-02 15:04:05"), err)
}
