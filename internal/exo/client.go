// Package exo talks to the Exchange Online admin REST endpoint, which
// exposes the EXO PowerShell cmdlets over HTTP. Sessions share the Graph
// layer's credentials, rate limiting, and retry behaviour.
package exo

import (
	"context"
	"fmt"

	"github.com/tenantops/graphadm/internal/graph"
)

// Scope is the app-permission scope for Exchange Online tokens.
const Scope = "https://outlook.office365.com/.default"

const adminAPIBase = "https://outlook.office365.com/adminapi/beta"

// BaseURL returns the tenant-scoped admin API root.
func BaseURL(tenantID string) string {
	return fmt.Sprintf("%s/%s", adminAPIBase, tenantID)
}

// Client invokes EXO cmdlets for one tenant.
type Client struct {
	client *graph.Client
}

// NewClient opens an Exchange Online session with the same app registration
// used for Graph. Options are applied after the defaults, so tests can
// redirect the endpoint.
func NewClient(ctx context.Context, creds graph.Credentials, opts ...graph.Option) *Client {
	gc := graph.NewClientForScope(ctx, creds, Scope, BaseURL(creds.TenantID), opts...)
	return &Client{client: gc}
}

// CmdletInput names the cmdlet to run and its parameters.
type CmdletInput struct {
	CmdletName string         `json:"CmdletName"`
	Parameters map[string]any `json:"Parameters,omitempty"`
}

type invokeRequest struct {
	CmdletInput CmdletInput `json:"CmdletInput"`
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Invoke runs a cmdlet once and decodes the first page of results into out.
func (c *Client) Invoke(ctx context.Context, cmdlet string, params map[string]any, out any) error {
	req := invokeRequest{CmdletInput: CmdletInput{CmdletName: cmdlet, Parameters: params}}
	if err := c.client.Post(ctx, "/InvokeCommand", req, out); err != nil {
		return fmt.Errorf("invoke %s: %w", cmdlet, err)
	}
	return nil
}

// invokePages runs a cmdlet and walks every page of its output, re-posting
// the same request to each @odata.nextLink until the server stops returning
// one.
func invokePages[T any](ctx context.Context, c *Client, cmdlet string, params map[string]any, fn func(items []T) error) error {
	req := invokeRequest{CmdletInput: CmdletInput{CmdletName: cmdlet, Parameters: params}}
	url := "/InvokeCommand"
	for url != "" {
		var pg page[T]
		if err := c.client.Post(ctx, url, req, &pg); err != nil {
			return fmt.Errorf("invoke %s: %w", cmdlet, err)
		}
		if err := fn(pg.Value); err != nil {
			return err
		}
		url = pg.NextLink
	}
	return nil
}
