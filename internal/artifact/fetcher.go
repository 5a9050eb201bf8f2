// Package artifact downloads the build-agent binary artifact from the
// server over HTTP.
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"agentkeeper/internal/config"
	"agentkeeper/internal/logger"
	"agentkeeper/internal/network"
)

// DownloadError reports a failed artifact download. It is fatal: without
// the artifact there is nothing to install.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s failed: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// AgentURL returns the well-known artifact location on the server.
func AgentURL(serverURL string) string {
	return strings.TrimRight(serverURL, "/") + "/jnlpJars/agent.jar"
}

const (
	fetchRetries = 3
	fetchDelay   = 2 * time.Second
)

// Fetcher downloads artifacts with bounded retries, optionally through a
// SOCKS5 proxy.
type Fetcher struct {
	client  *http.Client
	retries int
	delay   time.Duration
	clk     clock.Clock
}

// NewFetcher creates a fetcher using the given proxy settings.
func NewFetcher(socks config.SOCKSConfig) *Fetcher {
	transport := &http.Transport{}
	if dial := network.DialContextFunc(socks.Host, socks.Port); dial != nil {
		transport.DialContext = dial
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
		retries: fetchRetries,
		delay:   fetchDelay,
		clk:     clock.New(),
	}
}

// Fetch downloads url to dest and returns the local path. The file is
// written via a temp file and rename so a failed download never leaves a
// truncated artifact in place.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string) (string, error) {
	log := logger.WithComponent("artifact")

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-f.clk.After(f.delay):
			}
		}

		lastErr = f.download(ctx, url, dest)
		if lastErr == nil {
			log.Info().Str("url", url).Str("path", dest).Int("attempt", attempt).Msg("Artifact downloaded")
			return dest, nil
		}
		log.Warn().Err(lastErr).Str("url", url).Int("attempt", attempt).Msg("Artifact download failed")
	}
	return "", lastErr
}

func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &DownloadError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return &DownloadError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &DownloadError{URL: url, Err: err}
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return &DownloadError{URL: url, Err: err}
	}
	return nil
}
