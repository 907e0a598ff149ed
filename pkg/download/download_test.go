package download_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulnkit/vulnkit/pkg/download"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Download(t *testing.T) {
	var flaky atomic.Int32
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.json":
			fmt.Fprint(w, `{"ok": true}`)
		case "/flaky.json":
			// fails once, then succeeds
			if flaky.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprint(w, `{"flaky": true}`)
		case "/broken.json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})

	dir := t.TempDir()
	items := []download.Item{
		{URL: ts.URL + "/ok.json", Dest: filepath.Join(dir, "2025", "ok.json")},
		{URL: ts.URL + "/flaky.json", Dest: filepath.Join(dir, "2025", "flaky.json")},
		{URL: ts.URL + "/missing.json", Dest: filepath.Join(dir, "2025", "missing.json")},
		{URL: ts.URL + "/broken.json", Dest: filepath.Join(dir, "2025", "broken.json")},
	}

	var mu sync.Mutex
	var reported []string
	c := download.New(
		download.WithConcurrency(2),
		download.WithRetries(2),
		download.WithInitialInterval(time.Millisecond),
		download.WithOnFailure(func(f download.Failure) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, filepath.Base(f.Dest))
		}),
	)

	stats := c.Download(context.Background(), items)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.ElementsMatch(t, []string{"missing.json", "broken.json"}, reported)
	assert.ElementsMatch(t, []download.Item{items[2], items[3]}, stats.Items())
	for _, f := range stats.Failures {
		assert.Error(t, f.Err)
		assert.NoFileExists(t, f.Dest)
	}

	got, err := os.ReadFile(items[0].Dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(got))

	got, err = os.ReadFile(items[1].Dest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"flaky": true}`, string(got))

	// no temporary files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "2025"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClient_DownloadWithRetries(t *testing.T) {
	var calls atomic.Int32
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		// the first pass and its retries fail
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, "{}")
	})

	dest := filepath.Join(t.TempDir(), "a.json")
	c := download.New(
		download.WithRetries(1),
		download.WithInitialInterval(time.Millisecond),
		download.WithRateLimit(1000, 1),
	)

	stats := c.DownloadWithRetries(context.Background(), []download.Item{{URL: ts.URL + "/a.json", Dest: dest}}, 2)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Zero(t, stats.Failed)
	assert.FileExists(t, dest)
}

func TestClient_Download_Cancelled(t *testing.T) {
	ts := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "{}")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := download.New(download.WithInitialInterval(time.Millisecond))
	stats := c.DownloadWithRetries(ctx, []download.Item{{URL: ts.URL + "/a.json", Dest: filepath.Join(t.TempDir(), "a.json")}}, 3)
	assert.Zero(t, stats.Succeeded)
	require.Equal(t, 1, stats.Failed)
	assert.ErrorIs(t, stats.Failures[0].Err, context.Canceled)
}
