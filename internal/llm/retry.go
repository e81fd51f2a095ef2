package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries int           // retry attempts after the first call (0 = no retries)
	RetryDelay time.Duration // initial delay between retries
	MaxDelay   time.Duration // cap on the exponential backoff
	Timeout    time.Duration // per-request timeout
}

// DefaultRetryConfig returns the retry policy applied to embedding and
// completion calls: up to 6 attempts with delays 1s, 2s, 4s, 8s, 16s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 5,
		RetryDelay: 1 * time.Second,
		MaxDelay:   16 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider wraps a Provider with timeout and retry logic.
type RetryProvider struct {
	inner  Provider
	config *RetryConfig
}

// NewRetryProvider wraps an existing provider with retry logic.
func NewRetryProvider(inner Provider, config *RetryConfig) *RetryProvider {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, config: config}
}

// Name returns the underlying provider name.
func (r *RetryProvider) Name() string { return r.inner.Name() }

// Close releases the underlying provider.
func (r *RetryProvider) Close() error { return r.inner.Close() }

// Complete sends a prompt with timeout and retry logic.
func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.do(ctx, func(attemptCtx context.Context) error {
		var callErr error
		resp, callErr = r.inner.Complete(attemptCtx, prompt, opts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Embed sends an embedding request with timeout and retry logic.
func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := r.do(ctx, func(attemptCtx context.Context) error {
		var callErr error
		vectors, callErr = r.inner.Embed(attemptCtx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (r *RetryProvider) do(ctx context.Context, call func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(attempt)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		err := call(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !r.isRetryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", r.config.MaxRetries, lastErr)
}

// backoff returns the delay for the given attempt using exponential backoff.
func (r *RetryProvider) backoff(attempt int) time.Duration {
	delay := r.config.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
			break
		}
	}
	return delay
}

// isRetryable determines if an error should trigger a retry.
func (r *RetryProvider) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Provider clients fold the HTTP status into the error message.
	errStr := err.Error()
	for _, transient := range []string{"429", "Too Many Requests", "502", "503", "504"} {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	for _, fatal := range []string{"400", "401", "403", "404"} {
		if strings.Contains(errStr, fatal) {
			return false
		}
	}

	// Unknown failures are retried; the budget bounds the damage.
	return true
}
