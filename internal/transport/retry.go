// Package transport provides an http.RoundTripper that retries requests
// rejected with transient status codes, using exponential backoff.
package transport

import (
	"io"
	"net/http"
	"time"
)

// Policy configures the retry behavior.
type Policy struct {
	MaxAttempts  int           // total attempts including the first (default 6)
	InitialDelay time.Duration // delay before the first retry (default 1s)
	MaxDelay     time.Duration // backoff cap (default 16s)
}

// DefaultPolicy returns the retry policy used for all store and document
// source calls: up to 6 attempts with delays 1s, 2s, 4s, 8s, 16s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  6,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
	}
}

// Retryable reports whether a status code indicates a transient failure.
func Retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Transport retries requests that come back with a transient status
// (429, 502, 503, 504). Other responses, including non-transient errors,
// are returned to the caller unchanged. When the attempt budget is
// exhausted the last response is returned so the caller sees the final
// failure status.
type Transport struct {
	Base   http.RoundTripper
	Policy Policy
}

// New wraps base with the default retry policy.
func New(base http.RoundTripper) *Transport {
	return &Transport{Base: base, Policy: DefaultPolicy()}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) policy() Policy {
	p := t.Policy
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 6
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 16 * time.Second
	}
	return p
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	p := t.policy()
	delay := p.InitialDelay

	var resp *http.Response
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > p.MaxDelay {
				delay = p.MaxDelay
			}
			if req.GetBody != nil {
				body, berr := req.GetBody()
				if berr != nil {
					return nil, berr
				}
				req.Body = body
			}
		}

		resp, err = t.base().RoundTrip(req)
		if err != nil {
			return nil, err
		}
		if !Retryable(resp.StatusCode) {
			return resp, nil
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		// Drain so the connection can be reused for the retry.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return resp, err
}
