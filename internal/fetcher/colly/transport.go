package collyfetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/cityscope-ingest/internal/policy/ratelimit"
)

var handshakeRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// portalTransport waits for a per-host token before each request and retries
// TLS handshake timeouts, which the portal produces under load.
type portalTransport struct {
	base    http.RoundTripper
	limiter *ratelimit.Limiter
	backoff []time.Duration
}

func newPortalTransport(base http.RoundTripper, limiter *ratelimit.Limiter) *portalTransport {
	return &portalTransport{base: base, limiter: limiter, backoff: handshakeRetryBackoff}
}

func (t *portalTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("portal transport received nil request")
	}
	if err := t.limiter.Wait(req.Context(), req.URL.String()); err != nil {
		return nil, err
	}

	maxAttempts := len(t.backoff) + 1
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(cloneRequest(req))
		if err == nil {
			return resp, nil
		}
		if !isTransientTLSError(err) || attempt == maxAttempts-1 || req.Body != nil {
			return nil, fmt.Errorf("portal roundtrip: %w", err)
		}
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, err
		}
	}
}

func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Body = req.Body
	return clone
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("handshake backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return strings.Contains(err.Error(), "handshake")
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func newHTTPTransport(insecureSkipVerify bool) *http.Transport {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecureSkipVerify {
		// #nosec G402 -- opt-in for the portal's broken certificate chain.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return transport
}
