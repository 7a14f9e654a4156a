// Package transport is the HTTP adapter used by the chat client: authenticated JSON
// requests plus one long-lived server-sent event stream per exchange.
//
// Every request carries the bearer token held by the configured CredentialStore. A
// 401 answer clears that store, fires the auth-expired handler and surfaces
// ErrAuthExpired to the caller.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds single-shot requests and the wait for stream headers.
	DefaultTimeout = 10 * time.Minute

	maxErrorBody = 4096
)

// CredentialStore supplies the bearer token and forgets it when it expires.
type CredentialStore interface {
	Token() string
	Clear() error
}

// Client issues requests against the chat backend.
type Client struct {
	baseURL       *url.URL
	http          *http.Client
	creds         CredentialStore
	timeout       time.Duration
	onAuthExpired func()
	headers       http.Header
}

// Option configures a Client.
type Option func(*Client) error

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.http = hc
		return nil
	}
}

func WithCredentials(store CredentialStore) Option {
	return func(c *Client) error {
		c.creds = store
		return nil
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.Errorf("negative timeout %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithAuthExpiredHandler registers the side effect run after a 401 (for a browser,
// the redirect to the login page; for the CLI, a hint to log in again).
func WithAuthExpiredHandler(fn func()) Option {
	return func(c *Client) error {
		c.onAuthExpired = fn
		return nil
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) error {
		c.headers.Set(key, value)
		return nil
	}
}

// RequestOption mutates a single outgoing request.
type RequestOption func(*http.Request)

// WithIdempotencyKey tags a send so that the backend can deduplicate retries.
func WithIdempotencyKey(key string) RequestOption {
	return func(r *http.Request) {
		if key != "" {
			r.Header.Set("Idempotency-Key", key)
		}
	}
}

func NewClient(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("transport: empty base url")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "transport: parse base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		headers: http.Header{},
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "transport: apply option")
		}
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Request sends a JSON request and decodes a JSON answer into out (when non-nil).
func (c *Client) Request(
	ctx context.Context,
	method, path string,
	body any,
	query url.Values,
	out any,
	opts ...RequestOption,
) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body, query, opts)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: "request", Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := c.checkStatus("request", method, path, resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Op: "request", Method: method, Path: path, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

// OpenStream posts body to path and returns once response headers have arrived.
// The returned Stream owns the connection; cancelling ctx also tears it down.
func (c *Client) OpenStream(ctx context.Context, path string, body any, opts ...RequestOption) (Stream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	var headerTimer *time.Timer
	if c.timeout > 0 {
		headerTimer = time.AfterFunc(c.timeout, cancel)
	}

	req, err := c.newRequest(streamCtx, http.MethodPost, path, body, nil, opts)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if headerTimer != nil {
		headerTimer.Stop()
	}
	if err != nil {
		cancel()
		return nil, &Error{Op: "stream", Method: http.MethodPost, Path: path, Err: err}
	}
	if err := c.checkStatus("stream", http.MethodPost, path, resp); err != nil {
		_ = resp.Body.Close()
		cancel()
		return nil, err
	}

	log.Debug().Str("component", "transport").Str("path", path).Int("status", resp.StatusCode).Msg("stream opened")
	return newSSEStream(path, resp.Body, cancel), nil
}

func (c *Client) newRequest(
	ctx context.Context,
	method, path string,
	body any,
	query url.Values,
	opts []RequestOption,
) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrapf(err, "transport: encode %s %s body", method, path)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: build %s %s", method, path)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.creds != nil {
		if tok := c.creds.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for _, opt := range opts {
		opt(req)
	}
	return req, nil
}

func (c *Client) checkStatus(op, method, path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.expireCredentials()
		return errors.Wrapf(ErrAuthExpired, "%s %s %s", op, method, path)
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &Error{
		Op:         op,
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(b)),
	}
}

func (c *Client) expireCredentials() {
	if c.creds != nil {
		if err := c.creds.Clear(); err != nil {
			log.Warn().Err(err).Str("component", "transport").Msg("failed to clear credentials after 401")
		}
	}
	if c.onAuthExpired != nil {
		c.onAuthExpired()
	}
}
