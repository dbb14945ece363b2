package provider

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// NewHTTPClient returns an HTTP client for provider APIs. When
// requestsPerSecond is positive, outgoing requests share a limiter with that
// rate so provider quotas are not exceeded.
func NewHTTPClient(timeout time.Duration, requestsPerSecond float64) *http.Client {
	var transport http.RoundTripper = &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		transport = &RateLimitedTransport{
			Base:    transport,
			Limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// RateLimitedTransport waits for its limiter before every request.
type RateLimitedTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

// RoundTrip implements http.RoundTripper.
func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.Limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
