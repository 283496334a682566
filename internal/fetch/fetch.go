// Package fetch downloads bid documents to a local path.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tenderq/internal/config"
	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
)

// Fetcher retrieves the resource at locator into dest. Repeating a fetch
// overwrites dest.
type Fetcher interface {
	Fetch(ctx context.Context, locator, dest string) error
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// HTTP fetches http(s) URLs with retries and copies local files.
type HTTP struct {
	client     *http.Client
	userAgent  string
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// Options tunes an HTTP fetcher.
type Options struct {
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	UserAgent  string
	Client     *http.Client
}

// New returns an HTTP fetcher.
func New(opts Options, logger *slog.Logger) *HTTP {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HTTP{
		client:     client,
		userAgent:  opts.UserAgent,
		retries:    max(0, opts.Retries),
		retryDelay: opts.RetryDelay,
		logger:     logging.NewComponentLogger(logger, "fetch"),
	}
}

// NewFromConfig builds an HTTP fetcher from the [fetch] section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *HTTP {
	return New(Options{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		Retries:    cfg.Fetch.Retries,
		RetryDelay: time.Duration(cfg.Fetch.RetryDelayMillis) * time.Millisecond,
		UserAgent:  cfg.Fetch.UserAgent,
	}, logger)
}

// Fetch downloads or copies locator into dest.
func (h *HTTP) Fetch(ctx context.Context, locator, dest string) error {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return errors.New("empty resource locator")
	}
	u, err := url.Parse(locator)
	if err != nil {
		return fmt.Errorf("parse locator: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return h.download(ctx, locator, dest)
	case "file":
		return fileutil.CopyFileVerified(u.Path, dest)
	case "":
		return fileutil.CopyFileVerified(locator, dest)
	default:
		return fmt.Errorf("unsupported locator scheme %q", u.Scheme)
	}
}

func (h *HTTP) download(ctx context.Context, rawURL, dest string) error {
	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(h.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = h.downloadOnce(ctx, rawURL, dest)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		h.logger.Warn("download attempt failed",
			logging.String("url", rawURL),
			logging.Int("attempt", attempt),
			logging.Error(lastErr),
		)
	}
	return fmt.Errorf("download %s after %d attempts: %w", rawURL, h.retries+1, lastErr)
}

func (h *HTTP) downloadOnce(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	_, err = fileutil.WriteAtomicFrom(dest, resp.Body, 0o644)
	return err
}

var _ Fetcher = (*HTTP)(nil)
