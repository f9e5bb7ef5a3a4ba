// Package remote is the outbound JSON caller shared by the eligibility and bank clients.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// Kind classifies a failed call.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindStatus      Kind = "status"
	KindMalformed   Kind = "malformed"
	KindTransport   Kind = "transport"
	KindCircuitOpen Kind = "circuit_open"
)

const maxBody = 1 << 20

// Error is a failed remote call. Its text is for logs, never for API clients.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client performs single-attempt JSON POSTs bounded by a timeout and a breaker.
type Client struct {
	op      string
	timeout time.Duration
	http    *http.Client
	breaker *telemetry.CircuitBreaker
}

// New builds a client. op names the call in metrics and errors.
func New(op string, timeout time.Duration, breaker *telemetry.CircuitBreaker) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{op: op, timeout: timeout, http: &http.Client{}, breaker: breaker}
}

// Response is a completed HTTP exchange, whatever its status.
type Response struct {
	StatusCode int
	Body       []byte
}

// PostJSON sends in as JSON. Any HTTP status is returned as a Response; only
// transport failures, timeouts and an open breaker are errors. 5xx counts against the breaker.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, in any) (*Response, error) {
	ctx, span := telemetry.Tracer().Start(ctx, c.op)
	defer span.End()

	if c.breaker != nil && !c.breaker.Allow() {
		span.SetStatus(codes.Error, string(KindCircuitOpen))
		return nil, &Error{Op: c.op, Kind: KindCircuitOpen, Err: errors.New("circuit open")}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return nil, &Error{Op: c.op, Kind: KindMalformed, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: c.op, Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	var out *Response
	if err == nil {
		var b []byte
		b, err = io.ReadAll(io.LimitReader(resp.Body, maxBody))
		resp.Body.Close()
		out = &Response{StatusCode: resp.StatusCode, Body: b}
	}
	ok := err == nil && out.StatusCode < 500
	telemetry.RecordExternalOp(c.op, time.Since(start), ok)
	if c.breaker != nil {
		if ok {
			c.breaker.ReportSuccess()
		} else {
			c.breaker.ReportFailure()
		}
	}
	if err != nil {
		kind := KindTransport
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
			kind = KindTimeout
		}
		span.SetStatus(codes.Error, string(kind))
		return nil, &Error{Op: c.op, Kind: kind, Err: err}
	}
	span.SetAttributes(attribute.Int("http.response.status_code", out.StatusCode))
	return out, nil
}

// StatusError builds the error for an unexpected HTTP status.
func (c *Client) StatusError(r *Response) error {
	snippet := r.Body
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return &Error{Op: c.op, Kind: KindStatus, StatusCode: r.StatusCode, Err: fmt.Errorf("unexpected status: %s", snippet)}
}

// MalformedError wraps a body that could not be decoded.
func (c *Client) MalformedError(r *Response, err error) error {
	return &Error{Op: c.op, Kind: KindMalformed, StatusCode: r.StatusCode, Err: err}
}
