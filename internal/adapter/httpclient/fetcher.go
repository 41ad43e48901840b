package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hive-corporation/ransomwatch/internal/metrics"
)

const (
	DefaultUserAgent = "ransomwatch/1.0 (+https://github.com/hive-corporation/ransomwatch)"
	DefaultDelay     = time.Second
	DefaultTimeout   = 30 * time.Second

	// maxBodySize caps a single download; advisory PDFs stay well below it
	maxBodySize = 64 << 20
)

// Doer is satisfied by *http.Client and *ResilientClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PoliteFetcher waits a fixed delay before every request and identifies itself
// with a descriptive User-Agent.
type PoliteFetcher struct {
	client    Doer
	delay     time.Duration
	userAgent string
	logger    *zap.Logger
}

// Option configures a PoliteFetcher.
type Option func(*PoliteFetcher)

func WithDelay(d time.Duration) Option {
	return func(f *PoliteFetcher) { f.delay = d }
}

func WithUserAgent(ua string) Option {
	return func(f *PoliteFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *PoliteFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// retryPacer is implemented by clients that may send several physical
// requests for one Do call.
type retryPacer interface {
	SetMinRetryWait(d time.Duration)
}

// NewPoliteFetcher creates a fetcher over client. When client retries on its
// own, its retries are held to the same delay.
func NewPoliteFetcher(client Doer, opts ...Option) *PoliteFetcher {
	f := &PoliteFetcher{
		client:    client,
		delay:     DefaultDelay,
		userAgent: DefaultUserAgent,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if pacer, ok := client.(retryPacer); ok && f.delay > 0 {
		pacer.SetMinRetryWait(f.delay)
	}
	return f
}

// Fetch sleeps for the politeness delay, then GETs url and returns the body.
func (f *PoliteFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := sleep(ctx, f.delay); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	timer := metrics.StartTimer()
	resp, err := f.client.Do(req)
	if err != nil {
		timer.ObserveFetch("error")
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Plain http.Client does not turn error statuses into errors
	if resp.StatusCode >= 400 {
		timer.ObserveFetch("error")
		return nil, fmt.Errorf("fetch %s: %w", url, &StatusError{Code: resp.StatusCode, Status: resp.Status})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		timer.ObserveFetch("error")
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	timer.ObserveFetch("success")

	f.logger.Debug("Fetched", zap.String("url", url), zap.Int("bytes", len(body)))
	return body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
