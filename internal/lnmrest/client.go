// Package lnmrest implements the signed REST client used by the sync
// process and the live trade executor to talk to the venue's HTTP API.
package lnmrest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.lnmarkets.com"

// Client is the signed REST client. Credentials are not checked: with a
// zero-value Credentials the public endpoints (candles, funding
// settlements, ticker) work unsigned, and private requests are still sent,
// signed with the empty key and secret.
type Client struct {
	baseURL     string
	key         string
	secret      string
	passphrase  string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// Credentials are the venue API credentials used to sign private requests.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the default venue base URL, for testing.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimiter overrides the default outbound rate limiter.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient builds a client. Pass a zero Credentials for public-only use.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		key:        creds.Key,
		secret:     creds.Secret,
		passphrase: creds.Passphrase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		// the venue documents a 1 req/100ms soft limit per endpoint group;
		// one limiter shared across all calls is conservative but simple.
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is returned for any non-2xx venue response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lnmarkets api error (status %d): %s", e.StatusCode, e.Message)
}

// sign implements the venue's HMAC-SHA256 request signature:
// base64(HMAC-SHA256(secret, timestamp_ms + method + path + body_or_query)).
func (c *Client) sign(timestampMs string, method, path, bodyOrQuery string) string {
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(timestampMs + method + path + bodyOrQuery))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// do performs a request. params is used for GET query strings; body, when
// non-nil, is JSON-marshaled for POST/PUT/DELETE. signed requests carry the
// venue's four lnm-access-* headers.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, signed bool, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := c.baseURL + path
	var bodyOrQuery string
	var reqBody io.Reader
	switch {
	case method == http.MethodGet:
		if params != nil {
			bodyOrQuery = params.Encode()
			fullURL += "?" + bodyOrQuery
		}
	case body != nil:
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyOrQuery = string(raw)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("lnm-access-key", c.key)
		req.Header.Set("lnm-access-passphrase", c.passphrase)
		req.Header.Set("lnm-access-timestamp", ts)
		req.Header.Set("lnm-access-signature", c.sign(ts, method, path, bodyOrQuery))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
