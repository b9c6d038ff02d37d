// Package xrpc implements the HTTP transport for AT Protocol XRPC calls:
// query and procedure dispatch, bearer authentication, and typed protocol
// errors.
package xrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the PDS used when a client is constructed with an
	// empty host.
	DefaultHost = "https://bsky.social"

	defaultTimeout = 30 * time.Second
)

// Session holds the credentials and routing information for one account. It
// is passed explicitly to each call that needs it; the client itself keeps
// no session state, so a single client can serve any number of accounts.
type Session struct {
	// DID is the account's decentralized identifier.
	DID string `json:"did"`
	// Handle is the account's handle at session creation time.
	Handle string `json:"handle"`
	// AccessJwt authorizes regular calls.
	AccessJwt string `json:"accessJwt"`
	// RefreshJwt authorizes com.atproto.server.refreshSession only.
	RefreshJwt string `json:"refreshJwt"`
	// ServiceEndpoint is the account's own PDS base URL, resolved from the
	// DID document at login. When set it takes precedence over the
	// client's host for calls made with this session.
	ServiceEndpoint string `json:"serviceEndpoint,omitempty"`
}

// Client issues XRPC requests against a PDS or AppView.
type Client struct {
	// Host is the default service base URL, used when a call carries no
	// session or the session has no service endpoint.
	Host string

	// HTTPClient overrides the HTTP client used for requests. If nil, a
	// client with a 30 second timeout is used.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	// UserAgent is sent as the User-Agent header when set.
	UserAgent string
}

// NewClient returns a client for the given service base URL. An empty host
// selects DefaultHost.
func NewClient(host string) *Client {
	if host == "" {
		host = DefaultHost
	}
	return &Client{
		Host:       host,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// Query performs an HTTP GET XRPC call (a lexicon "query"). sess may be nil
// for unauthenticated endpoints. The response body is decoded into out when
// out is non-nil.
func (c *Client) Query(ctx context.Context, sess *Session, method string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, sess, method, params, "", nil, out)
}

// Procedure performs an HTTP POST XRPC call (a lexicon "procedure") with a
// JSON-encoded input body. input may be nil for body-less procedures.
func (c *Client) Procedure(ctx context.Context, sess *Session, method string, input, out any) error {
	var body io.Reader
	contentType := ""
	if input != nil {
		payload, err := json.Marshal(input)
		if err != nil {
			return fmt.Errorf("xrpc: marshal %s input: %w", method, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.do(ctx, http.MethodPost, sess, method, nil, contentType, body, out)
}

// ProcedureRaw performs a POST with a caller-supplied body and content type,
// for endpoints like uploadBlob that take raw bytes.
func (c *Client) ProcedureRaw(ctx context.Context, sess *Session, method, contentType string, body io.Reader, out any) error {
	return c.do(ctx, http.MethodPost, sess, method, nil, contentType, body, out)
}

func (c *Client) do(ctx context.Context, httpMethod string, sess *Session, method string, params url.Values, contentType string, body io.Reader, out any) error {
	base := c.Host
	if sess != nil && sess.ServiceEndpoint != "" {
		base = sess.ServiceEndpoint
	}
	if base == "" {
		return ErrNoHost
	}

	requestURL := strings.TrimRight(base, "/") + "/xrpc/" + method
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod, requestURL, body)
	if err != nil {
		return fmt.Errorf("xrpc: build request for %s: %w", method, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sess != nil && sess.AccessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+sess.AccessJwt)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("xrpc: %s %s: %w", httpMethod, method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("xrpc: read %s response: %w", method, err)
	}

	c.logger().Debug("xrpc call",
		"method", httpMethod,
		"nsid", method,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp.StatusCode, method, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("xrpc: decode %s response: %w", method, err)
		}
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// LimitParam writes an endpoint limit parameter, clamped into [1, max]. A
// non-positive limit is omitted entirely so the server default applies.
func LimitParam(params url.Values, limit, max int) {
	if limit <= 0 {
		return
	}
	if limit > max {
		limit = max
	}
	params.Set("limit", strconv.Itoa(limit))
}
