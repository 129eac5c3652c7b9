// Package httpclient provides the shared, size-capped, redirect-aware
// HTTP client used by the feed fetcher and full-content extractor.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// OutboundRate caps aggregate outbound requests (feed fetches and full-
// content extraction) across the whole process, independent of any
// per-feed pacing the ingestor applies, so a burst of eligible feeds
// never hammers many distinct hosts at once.
const OutboundRate = 5

// PoolMetrics tracks connection pool utilization across callers.
type PoolMetrics struct {
	TotalRequests sync.Map // map[string]*int64
	TotalErrors   sync.Map // map[string]*int64
}

// Pool manages one shared *http.Transport reused by every client this
// process creates, so repeated fetches of the same host reuse
// connections instead of each call paying a fresh handshake.
type Pool struct {
	mu        sync.Mutex
	transport *http.Transport
	metrics   *PoolMetrics
	limiter   *rate.Limiter
}

// NewPool creates a connection pool with production-grade defaults.
func NewPool() *Pool {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &Pool{
		transport: &http.Transport{
			DialContext:           dialer.DialContext,
			MaxIdleConns:          128,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		metrics: &PoolMetrics{},
		limiter: rate.NewLimiter(rate.Limit(OutboundRate), OutboundRate),
	}
}

// Wait blocks until the shared outbound rate limit admits one more
// request, or ctx is done first.
func (p *Pool) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Client returns an *http.Client sharing this pool's transport, with a
// caller-supplied timeout and a label used for metrics attribution.
// Redirects are never followed automatically — callers that want to
// follow them must implement their own policy via CheckRedirect.
func (p *Pool) Client(label string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &metricsRoundTripper{
			inner:   p.transport,
			label:   label,
			metrics: p.metrics,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Metrics returns a snapshot of request/error counts per label.
func (p *Pool) Metrics() map[string]map[string]int64 {
	result := make(map[string]map[string]int64)
	p.metrics.TotalRequests.Range(func(k, v interface{}) bool {
		name := k.(string)
		result[name] = map[string]int64{"total_requests": atomic.LoadInt64(v.(*int64))}
		return true
	})
	p.metrics.TotalErrors.Range(func(k, v interface{}) bool {
		name := k.(string)
		if _, ok := result[name]; !ok {
			result[name] = map[string]int64{}
		}
		result[name]["total_errors"] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return result
}

type metricsRoundTripper struct {
	inner   http.RoundTripper
	label   string
	metrics *PoolMetrics
}

func (m *metricsRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	total := m.counter(&m.metrics.TotalRequests)
	atomic.AddInt64(total, 1)

	resp, err := m.inner.RoundTrip(req)
	if err != nil {
		atomic.AddInt64(m.counter(&m.metrics.TotalErrors), 1)
	}
	return resp, err
}

func (m *metricsRoundTripper) counter(store *sync.Map) *int64 {
	if v, ok := store.Load(m.label); ok {
		return v.(*int64)
	}
	c := new(int64)
	actual, _ := store.LoadOrStore(m.label, c)
	return actual.(*int64)
}

// CappedReader wraps an io.ReadCloser and returns an error once more
// than maxBytes have been read, guarding against a server that lies
// about Content-Length or streams indefinitely.
type CappedReader struct {
	r         io.ReadCloser
	remaining int64
}

// NewCappedReader wraps r so that reads past maxBytes return an error.
func NewCappedReader(r io.ReadCloser, maxBytes int64) *CappedReader {
	return &CappedReader{r: r, remaining: maxBytes}
}

func (c *CappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, fmt.Errorf("httpclient: response body exceeds size cap")
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}

func (c *CappedReader) Close() error { return c.r.Close() }

// ReadCapped reads the full body of resp up to maxBytes, after first
// rejecting based on a declared Content-Length that already exceeds the
// cap.
func ReadCapped(resp *http.Response, maxBytes int64) ([]byte, error) {
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("httpclient: content-length %d exceeds cap %d", resp.ContentLength, maxBytes)
	}
	capped := NewCappedReader(resp.Body, maxBytes)
	return io.ReadAll(capped)
}

// IsSameHostOrUpgrade reports whether redirecting from origHost to
// newHost (with scheme upgrade newScheme) is a "safe" redirect: same
// host, or http→https on the same host.
func IsSameHostOrUpgrade(origScheme, origHost, newScheme, newHost string) bool {
	if !strings.EqualFold(origHost, newHost) {
		return false
	}
	if origScheme == newScheme {
		return true
	}
	return origScheme == "http" && newScheme == "https"
}
