package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	importerrors "github.com/robso86/jsonschema-mapper/pkg/errors"
	"github.com/robso86/jsonschema-mapper/pkg/resilience"
)

// HTTPReader fetches documents over HTTP(S). Requests go through a circuit
// breaker so a failing schema host is not hammered by every reference to
// it.
type HTTPReader struct {
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	maxBytes int64
	logger   *slog.Logger
}

type HTTPOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	Breaker  resilience.CircuitBreakerConfig
	// Retry repeats transient failures inside one breaker call when
	// MaxAttempts is above one.
	Retry resilience.RetryConfig
}

func NewHTTPReader(opts HTTPOptions) *HTTPReader {
	// A missing or malformed document says nothing about the host's health.
	if opts.Breaker.IsFailure == nil {
		opts.Breaker.IsFailure = transient
	}
	return &HTTPReader{
		client:   &http.Client{Timeout: opts.Timeout},
		breaker:  resilience.NewCircuitBreaker("http-source", opts.Breaker),
		retry:    opts.Retry,
		maxBytes: opts.MaxBytes,
		logger:   slog.Default().With("component", "http-source"),
	}
}

func (r *HTTPReader) ReadResource(ctx context.Context, uri string) ([]byte, error) {
	var body []byte
	err := r.breaker.Execute(func() error {
		b, err := r.fetch(ctx, uri)
		body = b
		return err
	})
	switch {
	case importerrors.Is(err, importerrors.ErrResourceNotFound):
		return nil, fmt.Errorf("%w: %s", importerrors.ErrResourceNotFound, uri)
	case err != nil:
		r.logger.Warn("fetch failed", "uri", uri, "error", err, "breaker", r.breaker.GetState().String())
		return nil, err
	}
	return body, nil
}

func (r *HTTPReader) fetch(ctx context.Context, uri string) ([]byte, error) {
	cfg := r.retry
	cfg.Retryable = transient
	return resilience.Retry(ctx, "fetch "+uri, cfg, func(ctx context.Context) ([]byte, error) {
		return r.get(ctx, uri)
	})
}

func transient(err error) bool {
	return !importerrors.Is(err, importerrors.ErrResourceNotFound) &&
		!importerrors.Is(err, importerrors.ErrInvalidInput)
}

func (r *HTTPReader) get(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", importerrors.ErrInvalidInput, err)
	}
	req.Header.Set("Accept", "application/schema+json, application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", uri, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return nil, importerrors.ErrResourceNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("requesting %s: unexpected status %d", uri, resp.StatusCode)
	}

	var src io.Reader = resp.Body
	if r.maxBytes > 0 {
		src = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", uri, err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", importerrors.ErrInvalidInput, uri, r.maxBytes)
	}
	return data, nil
}
