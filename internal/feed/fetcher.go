package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jmlarsen/skim/internal/config"
	"github.com/jmlarsen/skim/internal/storage"
)

const acceptHeader = "application/rss+xml, application/atom+xml, application/feed+json, application/json, application/xml, text/xml"

// FetchResult carries the raw bytes of one feed document plus the
// response metadata the next conditional GET needs.
type FetchResult struct {
	Body         []byte
	Status       int
	ContentType  string
	ETag         string
	LastModified string
	// NotModified is set on HTTP 304; Body is empty and the rest of
	// the pipeline is skipped for this refresh.
	NotModified bool
}

// Fetcher performs one HTTP GET per feed. It never touches the store.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBody     int64
	maxRetries  int
	ignoreCache bool
}

func NewFetcher(cfg *config.Config) *Fetcher {
	maxRedirects := cfg.Feed.MaxRedirects
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Feed.HTTPTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:  cfg.Feed.UserAgent,
		maxBody:    cfg.Feed.MaxBodyBytes,
		maxRetries: cfg.Feed.MaxRetries,
	}
}

// SetIgnoreCache makes subsequent fetches skip the conditional headers,
// forcing a full response even when the server supports 304s.
func (f *Fetcher) SetIgnoreCache(ignore bool) {
	f.ignoreCache = ignore
}

// Fetch retrieves the feed's document. Transient failures (network
// errors, 5xx, 429) are retried with exponential backoff inside the
// context deadline; client errors and oversized bodies are not. A 429
// carrying a Retry-After hint stretches the next wait to at least the
// requested duration.
func (f *Fetcher) Fetch(ctx context.Context, feed *storage.Feed) (*FetchResult, error) {
	var result *FetchResult
	var hint time.Duration

	operation := func() error {
		res, err := f.fetchOnce(ctx, feed)
		if err != nil {
			var re *RefreshError
			if errors.As(err, &re) {
				switch re.Kind {
				case KindNetwork:
					return err // retryable
				case KindHTTPStatus:
					if re.StatusCode == http.StatusTooManyRequests {
						hint = re.RetryAfter
						return err // retryable
					}
					if re.StatusCode >= 500 {
						return err // retryable
					}
				}
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			&hintedBackOff{base: backoff.NewExponentialBackOff(), hint: &hint},
			uint64(f.maxRetries),
		),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// hintedBackOff defers to its base policy but never waits less than a
// pending Retry-After hint. The hint applies to one wait only.
type hintedBackOff struct {
	base backoff.BackOff
	hint *time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	d := b.base.NextBackOff()
	if *b.hint > d {
		d = *b.hint
	}
	*b.hint = 0
	return d
}

func (b *hintedBackOff) Reset() {
	*b.hint = 0
	b.base.Reset()
}

func (f *Fetcher) fetchOnce(ctx context.Context, feed *storage.Feed) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, refreshErr(KindNetwork, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHeader)

	if !f.ignoreCache {
		if feed.ETag != "" {
			req.Header.Set("If-None-Match", feed.ETag)
		}
		if feed.LastModified != "" {
			req.Header.Set("If-Modified-Since", feed.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{Status: resp.StatusCode, NotModified: true}, nil
	}

	if resp.StatusCode >= 400 {
		re := httpStatusErr(resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			re.RetryAfter = RetryAfter(resp)
		}
		return nil, re
	}

	// Read one byte past the cap to distinguish "exactly at the limit"
	// from "exceeds it".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, refreshErr(KindTooLarge, fmt.Errorf("body exceeds %d bytes", f.maxBody))
	}

	return &FetchResult{
		Body:         body,
		Status:       resp.StatusCode,
		ContentType:  resp.Header.Get("Content-Type"),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, nil
}

func classifyTransportError(ctx context.Context, err error) *RefreshError {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return refreshErr(KindCancelled, err)
		}
		return refreshErr(KindTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return refreshErr(KindTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return refreshErr(KindTimeout, err)
	}

	return refreshErr(KindNetwork, err)
}

// RetryAfter reports how long a 429 response asked us to wait. The
// header comes in two forms, delta-seconds and an HTTP-date; absent or
// unparseable values fall back to 15 minutes.
func RetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 15 * time.Minute
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
		return 0
	}
	return 15 * time.Minute
}
