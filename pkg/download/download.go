package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vulnkit/vulnkit/pkg/log"
)

const (
	DefaultConcurrency = 50
	DefaultRetries     = 3
)

// Item is one file to fetch.
type Item struct {
	URL  string
	Dest string
}

// Failure records an item which could not be fetched, with enough detail to retry it.
type Failure struct {
	Item
	Err error
}

type Stats struct {
	Succeeded int
	Failed    int
	Failures  []Failure
}

// Items returns the failed items, ready for another pass.
func (s Stats) Items() []Item {
	items := make([]Item, 0, len(s.Failures))
	for _, f := range s.Failures {
		items = append(items, f.Item)
	}
	return items
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithConcurrency caps the number of requests in flight.
func WithConcurrency(n int) Option {
	return func(client *Client) {
		if n > 0 {
			client.concurrency = n
		}
	}
}

// WithRateLimit caps the number of requests per second. Zero disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(client *Client) {
		if perSecond > 0 {
			client.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithRetries sets how many times a failed request is retried before the item is recorded as failed.
func WithRetries(n uint64) Option {
	return func(client *Client) {
		client.retries = n
	}
}

func WithInitialInterval(d time.Duration) Option {
	return func(client *Client) {
		client.initialInterval = d
	}
}

// WithOnFailure registers a callback invoked once per failed item.
func WithOnFailure(fn func(Failure)) Option {
	return func(client *Client) {
		client.onFailure = fn
	}
}

// Client fetches files concurrently.
type Client struct {
	httpClient      *http.Client
	concurrency     int
	limiter         *rate.Limiter
	retries         uint64
	initialInterval time.Duration
	onFailure       func(Failure)
}

func New(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		concurrency:     DefaultConcurrency,
		retries:         DefaultRetries,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// stats accumulates results from concurrent downloads.
type stats struct {
	mu sync.Mutex
	Stats
}

func (s *stats) succeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Succeeded++
}

func (s *stats) failed(f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Failed++
	s.Failures = append(s.Failures, f)
}

// Download fetches every item and returns once all of them succeeded or failed.
// Individual failures are reported in the stats, never as an error.
func (c *Client) Download(ctx context.Context, items []Item) Stats {
	var st stats

	var eg errgroup.Group
	eg.SetLimit(c.concurrency)
	for _, item := range items {
		eg.Go(func() error {
			if err := c.download(ctx, item); err != nil {
				f := Failure{Item: item, Err: err}
				st.failed(f)
				if c.onFailure != nil {
					c.onFailure(f)
				}
				return nil
			}
			st.succeeded()
			return nil
		})
	}
	_ = eg.Wait()

	return st.Stats
}

// DownloadWithRetries runs Download, then retries the failed items up to passes more times.
// The stats count every item once, as of its last attempt.
func (c *Client) DownloadWithRetries(ctx context.Context, items []Item, passes int) Stats {
	st := c.Download(ctx, items)
	succeeded := st.Succeeded
	for pass := 1; pass <= passes && st.Failed > 0 && ctx.Err() == nil; pass++ {
		log.Info("Retrying failed downloads", log.Int("pass", pass), log.Int("items", st.Failed))
		st = c.Download(ctx, st.Items())
		succeeded += st.Succeeded
	}
	st.Succeeded = succeeded
	return st
}

func (c *Client) download(ctx context.Context, item Item) error {
	eb := oops.With("url", item.URL).With("dest", item.Dest)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx)

	err := backoff.RetryNotify(func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		return c.fetch(ctx, item)
	}, b, func(err error, d time.Duration) {
		log.Debug("Retrying download", log.URL(item.URL), log.Err(err), log.String("after", d.String()))
	})
	if err != nil {
		return eb.Wrapf(err, "download error")
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, item Item) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.URL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("unexpected status: %s", resp.Status)
	default:
		// 4xx other than 429 will not get better
		return backoff.Permanent(fmt.Errorf("unexpected status: %s", resp.Status))
	}

	return writeFile(item.Dest, resp.Body)
}

// writeFile writes r to a temporary file and renames it into place.
func writeFile(dest string, r io.Reader) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return backoff.Permanent(err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(f.Name())

	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), dest)
}
