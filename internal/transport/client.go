// Package transport implements the HTTP collaborator the sync engine uses to
// reach the backend: JSON in, JSON out, with the CSRF credential header
// attached to state-mutating requests.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultCSRFCookie = "csrftoken"
	DefaultCSRFHeader = "X-CSRFToken"

	// HeaderBatchID carries the id of a commit batch so the backend can
	// recognise a replay of a batch it already applied.
	HeaderBatchID = "X-Batch-ID"

	maxErrorBody = 512
)

// Client sends JSON requests and decodes JSON responses.
type Client struct {
	http       *http.Client
	csrfCookie string
	csrfHeader string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its cookie jar, if any,
// is used as the source of the CSRF token.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCSRF sets the cookie the CSRF token is read from and the header it is
// sent in.
func WithCSRF(cookie, header string) Option {
	return func(c *Client) {
		if cookie != "" {
			c.csrfCookie = cookie
		}
		if header != "" {
			c.csrfHeader = header
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with its own cookie jar.
func New(opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		http:       &http.Client{Jar: jar, Timeout: 30 * time.Second},
		csrfCookie: DefaultCSRFCookie,
		csrfHeader: DefaultCSRFHeader,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Send performs method on rawURL with body encoded as JSON (nil sends no
// body) and returns the raw JSON response. Non-2xx responses fail with
// *Error; network failures are wrapped with ErrTransport.
func (c *Client) Send(ctx context.Context, method, rawURL string, body any, header http.Header) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutating(method) {
		if token := c.csrfToken(req.URL); token != "" {
			req.Header.Set(c.csrfHeader, token)
		} else {
			c.logger.Debug().Str("url", rawURL).Msg("no csrf cookie for mutating request")
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Method:     method,
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       truncate(strings.TrimSpace(string(data)), maxErrorBody),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s %s: response is not valid JSON", ErrTransport, method, rawURL)
	}
	return json.RawMessage(data), nil
}

// CSRFToken returns the token the client would send to rawURL.
func (c *Client) CSRFToken(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return c.csrfToken(u)
}

func (c *Client) csrfToken(u *url.URL) string {
	if c.http.Jar == nil {
		return ""
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == c.csrfCookie {
			return ck.Value
		}
	}
	return ""
}

func mutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
