// Package graph is the Microsoft Graph session layer: one authenticated
// client per run, with rate limiting, throttling-aware retries, and
// @odata.nextLink pagination.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tenantops/graphadm/internal/retry"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// DefaultScope is the app-permission scope for client-credential tokens.
const DefaultScope = "https://graph.microsoft.com/.default"

const requestTimeout = 60 * time.Second

// Credentials identify the app registration used for the session.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// TokenURL returns the v2 token endpoint for the tenant.
func (c Credentials) TokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.TenantID)
}

// Client is an authenticated Graph session. Construct one per run and pass
// it explicitly; there is no ambient global session.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	policy  retry.Policy
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL overrides the endpoint (tests, the beta surface).
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient replaces the token-injecting HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy overrides the retry policy for all calls on this session.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithRateLimiter replaces the default limiter, e.g. to share one bucket
// across parallel workers.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// NewClient opens a session using the client-credentials flow. The returned
// client is safe for concurrent use.
func NewClient(ctx context.Context, creds Credentials, opts ...Option) *Client {
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL(),
		Scopes:       []string{DefaultScope},
	}

	c := &Client{
		baseURL: DefaultBaseURL,
		http:    cc.Client(ctx),
		limiter: NewRateLimiter(0, 0),
		policy:  retry.Default(),
	}
	c.http.Timeout = requestTimeout

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientForScope opens a session against a non-Graph resource sharing the
// same tenant credentials, e.g. the Exchange Online admin endpoint.
func NewClientForScope(ctx context.Context, creds Credentials, scope, baseURL string, opts ...Option) *Client {
	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL(),
		Scopes:       []string{scope},
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    cc.Client(ctx),
		limiter: NewRateLimiter(0, 0),
		policy:  retry.Default(),
	}
	c.http.Timeout = requestTimeout

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET and decodes the JSON response into out (skipped when
// out is nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out, nil)
}

// GetEventual is Get with the ConsistencyLevel header advanced queries
// ($count, $search, certain $filter forms) require.
func (c *Client) GetEventual(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, nil, out, http.Header{
		"ConsistencyLevel": []string{"eventual"},
	})
}

// Post performs a POST with a JSON body, decoding the response into out
// when out is non-nil.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.call(ctx, http.MethodPost, path, in, out, nil)
}

// Patch performs a PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, in any) error {
	return c.call(ctx, http.MethodPatch, path, in, nil, nil)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil, nil)
}

// call runs one Graph request through the rate limiter and retry executor.
func (c *Client) call(ctx context.Context, method, path string, in, out any, extra http.Header) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
	}

	respBody, err := retry.Do(ctx, c.policy, func() ([]byte, error) {
		return c.doOnce(ctx, method, path, body, extra)
	})
	if err != nil {
		return err
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doOnce performs a single attempt. Failures carry the structured metadata
// the retry executor classifies on.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, extra http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := path
	if !strings.HasPrefix(path, "https://") && !strings.HasPrefix(path, "http://") {
		url = c.baseURL + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-request-id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// No response at all; tag as a service-level failure so it retries.
		return nil, &APIError{Message: err.Error(), ServiceException: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error(), ServiceException: true}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}

	apiErr := &APIError{
		StatusCode:       resp.StatusCode,
		RetryAfterHeader: resp.Header.Get("Retry-After"),
	}
	var oerr odataError
	if jsonErr := json.Unmarshal(data, &oerr); jsonErr == nil {
		apiErr.Code = oerr.Error.Code
		apiErr.Message = oerr.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		// Pause other workers sharing this limiter when the server gave an
		// explicit window; the retry executor handles this call's own wait.
		if secs, perr := strconv.Atoi(apiErr.RetryAfterHeader); perr == nil && secs > 0 {
			c.limiter.RecordThrottle(secs)
		}
	}

	return nil, apiErr
}

// page is the common OData collection envelope.
type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
	Count    *int64 `json:"@odata.count"`
}

// ListAll follows @odata.nextLink until the collection is exhausted and
// returns every item. The first request goes to path; subsequent requests
// follow the absolute nextLink URLs Graph returns.
func ListAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var items []T
	err := ListPages(ctx, c, path, func(batch []T) error {
		items = append(items, batch...)
		return nil
	})
	return items, err
}

// ListPages streams each page's items to fn, stopping on the first error.
// Use this instead of ListAll when reshaping rows incrementally keeps
// memory flat on large tenants.
func ListPages[T any](ctx context.Context, c *Client, path string, fn func(items []T) error) error {
	url := path
	for url != "" {
		var p page[T]
		if err := c.Get(ctx, url, &p); err != nil {
			return err
		}
		if err := fn(p.Value); err != nil {
			return err
		}
		url = p.NextLink
	}
	return nil
}

// Count performs an aggregate $count request, which needs eventual
// consistency headers and $count=true semantics.
func (c *Client) Count(ctx context.Context, path string) (int64, error) {
	var p page[json.RawMessage]
	if err := c.GetEventual(ctx, path, &p); err != nil {
		return 0, err
	}
	if p.Count == nil {
		return int64(len(p.Value)), nil
	}
	return *p.Count, nil
}
