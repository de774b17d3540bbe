// Package identity covers authentication-method reporting and managed
// identity permission grants.
package identity

import (
	"context"
	"strconv"
	"strings"

	"github.com/tenantops/graphadm/internal/graph"
	"github.com/tenantops/graphadm/internal/graph/apps"
)

// Service exposes identity operations against a Graph session.
type Service struct {
	client *graph.Client
	sps    *apps.Service
}

// NewService wraps a Graph client.
func NewService(client *graph.Client) *Service {
	return &Service{client: client, sps: apps.NewService(client)}
}

// RegistrationDetail is one user's authentication method registration state.
type RegistrationDetail struct {
	ID                string   `json:"id"`
	UserPrincipalName string   `json:"userPrincipalName"`
	UserDisplayName   string   `json:"userDisplayName"`
	IsMFARegistered   bool     `json:"isMfaRegistered"`
	IsMFACapable      bool     `json:"isMfaCapable"`
	IsAdmin           bool     `json:"isAdmin"`
	DefaultMethod     string   `json:"defaultMfaMethod"`
	MethodsRegistered []string `json:"methodsRegistered"`
}

// ListRegistrationDetails pages the tenant-wide registration report,
// handing each page to fn.
func (s *Service) ListRegistrationDetails(ctx context.Context, fn func(details []RegistrationDetail) error) error {
	const path = "/reports/authenticationMethods/userRegistrationDetails?$top=999"
	return graph.ListPages(ctx, s.client, path, fn)
}

// MFAHeader is the MFA registration report header.
var MFAHeader = []string{"UserPrincipalName", "DisplayName", "MfaRegistered", "MfaCapable", "IsAdmin", "DefaultMethod", "Methods"}

// MFARow flattens a registration detail into a report row.
func MFARow(d RegistrationDetail) []string {
	return []string{
		d.UserPrincipalName,
		d.UserDisplayName,
		strconv.FormatBool(d.IsMFARegistered),
		strconv.FormatBool(d.IsMFACapable),
		strconv.FormatBool(d.IsAdmin),
		d.DefaultMethod,
		strings.Join(d.MethodsRegistered, ";"),
	}
}
