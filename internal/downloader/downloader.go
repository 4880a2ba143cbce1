// Package downloader implements the parallel file-fetch worker pool
// spec.md §2/§5 treats as an injected external collaborator. The bounded
// dispatch pool mirrors the teacher's internal/sync/transfer.go
// `dispatchPool` (errgroup.SetLimit over a slice of actions); per-file
// retry uses github.com/sethvargo/go-retry, promoted here from an
// indirect teacher dependency to its natural direct use.
package downloader

import (
	"context"
	"crypto/md5" //nolint:gosec // spec mandates MD5 verification, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// Request is one (url, target, expected-hash, expected-size) tuple, per
// spec.md §2's Downloader interface.
type Request struct {
	URL          string
	Target       string
	ExpectedHash string
	ExpectedSize int64
}

// Result carries the per-file outcome of a Request.
type Result struct {
	Request Request
	Err     error
}

// IgnoreHash means "don't verify content" (spec.md §3's FileDescriptor.hash).
const IgnoreHash = "ignore"

// Downloader fetches a batch of requests in parallel, reporting per-file
// success/failure. The core reconcile engine never retries on its own
// (spec.md §7) — all retry happens inside this interface's implementation.
type Downloader interface {
	Fetch(ctx context.Context, requests []Request) []Result
}

// Config bounds the worker pool and per-file retry behavior (spec.md §6's
// downloader_process_limit/downloader_timeout/downloader_retries keys).
type Config struct {
	ProcessLimit int
	Timeout      time.Duration
	Retries      uint64
}

// DefaultConfig matches spec.md §6's documented defaults.
func DefaultConfig() Config {
	return Config{
		ProcessLimit: 300, //nolint:mnd
		Timeout:      300 * time.Second, //nolint:mnd
		Retries:      3, //nolint:mnd
	}
}

// HTTPDownloader is the production Downloader, backed by net/http.
type HTTPDownloader struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// New creates a production HTTPDownloader.
func New(client *http.Client, cfg Config, logger *slog.Logger) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPDownloader{client: client, cfg: cfg, logger: logger}
}

// Fetch dispatches all requests through a pool bounded by cfg.ProcessLimit,
// the same shape as the teacher's dispatchPool (errgroup.Group.SetLimit
// over a slice of actions), collecting one Result per request regardless
// of individual failures — spec.md §5: "the core never raises to abort
// mid-run" on a per-file basis.
func (d *HTTPDownloader) Fetch(ctx context.Context, requests []Request) []Result {
	results := make([]Result, len(requests))

	g, gctx := errgroup.WithContext(ctx)

	limit := d.cfg.ProcessLimit
	if limit <= 0 {
		limit = DefaultConfig().ProcessLimit
	}

	g.SetLimit(limit)

	for i := range requests {
		idx := i
		req := requests[i]

		g.Go(func() error {
			results[idx] = Result{Request: req, Err: d.fetchOne(gctx, req)}

			return nil
		})
	}

	_ = g.Wait() // per-file errors are carried in results, never propagated here

	return results
}

func (d *HTTPDownloader) fetchOne(ctx context.Context, req Request) error {
	backoff := retry.WithMaxRetries(d.retries(), retry.NewFibonacci(1*time.Second)) //nolint:mnd

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := d.attempt(ctx, req)
		if err == nil {
			return nil
		}

		if isRetriable(err) {
			d.logger.Debug("downloader: retrying", "url", req.URL, "error", err)

			return retry.RetryableError(err)
		}

		return err
	})
}

func (d *HTTPDownloader) retries() uint64 {
	if d.cfg.Retries > 0 {
		return d.cfg.Retries
	}

	return DefaultConfig().Retries
}

func (d *HTTPDownloader) timeout() time.Duration {
	if d.cfg.Timeout > 0 {
		return d.cfg.Timeout
	}

	return DefaultConfig().Timeout
}

func (d *HTTPDownloader) attempt(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", req.URL, err)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: %w", req.URL, &httpStatusError{status: resp.StatusCode})
	}

	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("creating parent dir for %s: %w", req.Target, err)
	}

	out, err := os.Create(req.Target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", req.Target, err)
	}
	defer out.Close()

	hasher := md5.New() //nolint:gosec
	written, err := io.Copy(io.MultiWriter(out, hasher), resp.Body)

	if err != nil {
		return fmt.Errorf("downloading %s: %w", req.URL, err)
	}

	if req.ExpectedSize > 0 && written != req.ExpectedSize {
		return fmt.Errorf("downloading %s: size mismatch: got %d want %d", req.URL, written, req.ExpectedSize)
	}

	if req.ExpectedHash != "" && req.ExpectedHash != IgnoreHash {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != req.ExpectedHash {
			return fmt.Errorf("downloading %s: hash mismatch: got %s want %s", req.URL, got, req.ExpectedHash)
		}
	}

	return nil
}

// httpStatusError wraps a non-200 HTTP response. 5xx and 429 are
// considered transient and retried; other statuses are not.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

func isRetriable(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= http.StatusInternalServerError
	}

	// Network-level errors (timeouts, connection resets) are retriable by default.
	return true
}
