package artifact

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"agentkeeper/internal/config"
	"agentkeeper/internal/logger"
)

func init() {
	_ = logger.Init(logger.Config{Level: "disabled"})
}

func fastFetcher() *Fetcher {
	f := NewFetcher(config.SOCKSConfig{})
	f.delay = time.Millisecond
	return f
}

func TestFetch_WritesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("jar-bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "jenkins", "agent.jar")
	path, err := fastFetcher().Fetch(context.Background(), srv.URL+"/jnlpJars/agent.jar", dest)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if path != dest {
		t.Errorf("expected path %q, got %q", dest, path)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("artifact not written: %v", err)
	}
	if string(data) != "jar-bytes" {
		t.Errorf("unexpected artifact content: %q", data)
	}
}

func TestFetch_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "agent.jar")
	_, err := fastFetcher().Fetch(context.Background(), srv.URL, dest)

	var derr *DownloadError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DownloadError, got %v", err)
	}
	if derr.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 in error, got %d", derr.StatusCode)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("expected no artifact file after failed download")
	}
}

func TestFetch_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "agent.jar")
	if _, err := fastFetcher().Fetch(context.Background(), srv.URL, dest); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 requests, got %d", got)
	}
}

func TestFetch_ContextCancelDuringRetryWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(config.SOCKSConfig{})
	f.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx, srv.URL, filepath.Join(t.TempDir(), "agent.jar"))
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}
}

func TestAgentURL(t *testing.T) {
	if got := AgentURL("https://ci.example.com/"); got != "https://ci.example.com/jnlpJars/agent.jar" {
		t.Errorf("unexpected agent URL: %q", got)
	}
	if got := AgentURL("https://ci.example.com"); got != "https://ci.example.com/jnlpJars/agent.jar" {
		t.Errorf("unexpected agent URL: %q", got)
	}
}
