// Package invoke performs single benchmark invocations over HTTP and turns
// them into timed records. Timing is taken immediately around the request
// on the client side; any response body is preserved verbatim, parsed as
// JSON when possible.
package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/serverlessbench/slb/internal/models"
	"github.com/serverlessbench/slb/internal/provider"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxRetries  = 4
	defaultBackoffBase = time.Second
)

// ConnectivityError indicates the endpoint could not be reached after the
// full retry budget. The whole target is considered unreachable.
type ConnectivityError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("endpoint %s unreachable after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// Client invokes benchmark endpoints.
type Client struct {
	http        *http.Client
	maxRetries  uint64
	backoffBase time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries sets the transport retry budget and the fibonacci backoff
// base.
func WithRetries(max uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max
		c.backoffBase = base
	}
}

// New builds a Client with a 120 second request timeout by default.
func New(opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		maxRetries:  defaultMaxRetries,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke performs one invocation of the target endpoint and returns the
// timed record. Transport failures are retried with fibonacci backoff; the
// recorded timing always belongs to the attempt that produced a response.
// A response with any HTTP status counts as a completed invocation.
func (c *Client) Invoke(ctx context.Context, p provider.Provider, url, method string, body map[string]any) (*models.InvocationRecord, error) {
	if method == "" {
		method = http.MethodPost
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request body: %w", err)
	}

	var rec *models.InvocationRecord
	var badResponse error
	attempts := 0

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(c.backoffBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		pregen := p.PrepareRequest(req.Header)

		begin := time.Now()
		resp, err := c.http.Do(req)
		end := time.Now()
		if err != nil {
			slog.Debug("invocation attempt failed", "url", url, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close() //nolint:errcheck

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("reading response body: %w", err))
		}

		id, err := p.CorrelationID(pregen, resp.Header)
		if err != nil {
			// A response without a correlation id can never be
			// reconciled; retrying will not help.
			badResponse = err
			return err
		}

		rec = &models.InvocationRecord{
			RequestID:    id,
			ClientBegin:  begin.UnixMicro(),
			ClientEnd:    end.UnixMicro(),
			ClientTime:   end.Sub(begin).Seconds(),
			ResponseBody: parseBody(data),
		}
		return nil
	})
	if badResponse != nil {
		return nil, badResponse
	}
	if err != nil {
		return nil, &ConnectivityError{URL: url, Attempts: attempts, Err: err}
	}
	return rec, nil
}

// parseBody decodes the response as JSON when possible and otherwise keeps
// the raw text, so malformed bodies survive into the persisted record.
func parseBody(data []byte) any {
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return string(data)
	}
	return parsed
}
