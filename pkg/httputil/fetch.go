package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/KiKaraage/eastyles-sub002/pkg/style"
)

// maxStyleSize caps how much of a response body is read when fetching a
// style document.
const maxStyleSize = 4 << 20 // 4 MiB

// Fetcher downloads style documents from remote sources, with a
// file-based cache in front of the network and retry on transient
// failures.
type Fetcher struct {
	client     *http.Client
	cache      *Cache
	logger     *log.Logger
	retryDelay time.Duration
}

// NewFetcher creates a Fetcher. A nil cache disables caching; a nil
// logger discards log output. Style responses are cached under their
// own namespace so other users of the same cache directory cannot
// collide with them.
func NewFetcher(cache *Cache, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cache != nil {
		cache = cache.Namespace("style:")
	}
	return &Fetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		cache:      cache,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// FetchStyle downloads and parses the style document at rawURL.
// Responses are cached by URL; a fresh cache entry skips the network
// entirely, and an expired one is refetched. 5xx responses and network
// errors are retried with backoff before failing.
func (f *Fetcher) FetchStyle(ctx context.Context, rawURL string) (*style.Document, error) {
	if f.cache != nil {
		var data []byte
		ok, err := f.cache.Get(rawURL, &data)
		if ok {
			f.logger.Debug("style cache hit", "url", rawURL)
			return style.Parse(data, nameFromURL(rawURL))
		}
		if err != nil && !errors.Is(err, ErrExpired) {
			f.logger.Warn("style cache read failed", "url", rawURL, "err", err)
		}
	}

	var data []byte
	err := Retry(ctx, 3, f.retryDelay, func() error {
		var err error
		data, err = f.get(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	doc, err := style.Parse(data, nameFromURL(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	if f.cache != nil {
		if err := f.cache.Set(rawURL, data); err != nil {
			f.logger.Warn("style cache write failed", "url", rawURL, "err", err)
		}
	}
	return doc, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &RetryableError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &RetryableError{Err: fmt.Errorf("server returned %s", resp.Status)}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxStyleSize))
}

// nameFromURL derives a fallback style name from the URL path.
func nameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "remote style"
	}
	base := path.Base(u.Path)
	base = strings.TrimSuffix(base, style.FileExt)
	if base == "" || base == "." || base == "/" {
		return u.Host
	}
	return base
}
