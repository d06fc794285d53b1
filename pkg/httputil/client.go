// Package httputil provides shared HTTP utilities with connection pooling
// and safe response handling for the Trapline gateway.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize is the default maximum size for reading HTTP response bodies.
// This prevents OOM from a malicious or misconfigured remote service.
const MaxResponseSize = 2 * 1024 * 1024 // 2MB

// Shared transport with optimized connection pooling.
// Safe for concurrent use; reusing TCP connections matters here because both
// the inference provider and the report sink see steady request streams.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier defines standard timeout categories for outbound calls.
type TimeoutTier int

const (
	// TierCallback for report sink dispatch (5s)
	TierCallback TimeoutTier = iota
	// TierInference for remote LLM calls; the per-request context deadline
	// from the pipeline is usually tighter than this ceiling (15s)
	TierInference
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierCallback:  5 * time.Second,
	TierInference: 15 * time.Second,
}

// Singleton clients for each timeout tier - initialized once, reused everywhere.
var (
	clientCallback  *http.Client
	clientInference *http.Client
	clientOnce      sync.Once
)

func initClients() {
	clientCallback = &http.Client{
		Timeout:   timeoutDurations[TierCallback],
		Transport: sharedTransport,
	}
	clientInference = &http.Client{
		Timeout:   timeoutDurations[TierInference],
		Transport: sharedTransport,
	}
}

// Client returns a shared HTTP client for the given timeout tier.
// These clients share a connection pool and should be used instead of
// creating new http.Client instances per request.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierCallback:
		return clientCallback
	default:
		return clientInference
	}
}

// CallbackClient returns a client with a 5s timeout for report dispatch.
func CallbackClient() *http.Client {
	return Client(TierCallback)
}

// InferenceClient returns a client sized for remote LLM calls.
func InferenceClient() *http.Client {
	return Client(TierInference)
}

// ReadResponseBody safely reads an HTTP response body with size limits.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose properly drains and closes an HTTP response body.
// This ensures connection reuse in the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
