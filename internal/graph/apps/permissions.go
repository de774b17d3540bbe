package apps

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tenantops/graphadm/internal/graph"
)

// AppRoleAssignment is an application permission granted to a principal.
type AppRoleAssignment struct {
	ID                   string `json:"id"`
	AppRoleID            string `json:"appRoleId"`
	PrincipalID          string `json:"principalId"`
	PrincipalDisplayName string `json:"principalDisplayName"`
	ResourceID           string `json:"resourceId"`
	ResourceDisplayName  string `json:"resourceDisplayName"`
}

// OAuth2PermissionGrant is a delegated permission grant.
type OAuth2PermissionGrant struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId"`
	ConsentType string `json:"consentType"`
	PrincipalID string `json:"principalId"`
	ResourceID  string `json:"resourceId"`
	Scope       string `json:"scope"`
}

// ListAppRoleAssignments returns the application permissions a service
// principal holds.
func (s *Service) ListAppRoleAssignments(ctx context.Context, spID string) ([]AppRoleAssignment, error) {
	path := fmt.Sprintf("/servicePrincipals/%s/appRoleAssignments", url.PathEscape(spID))
	grants, err := graph.ListAll[AppRoleAssignment](ctx, s.client, path)
	if err != nil {
		return nil, fmt.Errorf("list app role assignments for %s: %w", spID, err)
	}
	return grants, nil
}

// ListOAuth2Grants returns the delegated permission grants where the
// service principal is the client.
func (s *Service) ListOAuth2Grants(ctx context.Context, spID string) ([]OAuth2PermissionGrant, error) {
	path := fmt.Sprintf("/servicePrincipals/%s/oauth2PermissionGrants", url.PathEscape(spID))
	grants, err := graph.ListAll[OAuth2PermissionGrant](ctx, s.client, path)
	if err != nil {
		return nil, fmt.Errorf("list oauth2 grants for %s: %w", spID, err)
	}
	return grants, nil
}

// PermissionRow is one granted permission in the audit report.
type PermissionRow struct {
	ClientName     string
	ClientAppID    string
	PermissionType string // Application or Delegated
	Resource       string
	Permission     string
	ConsentType    string
}

// PermissionAuditHeader is the audit report header.
var PermissionAuditHeader = []string{"ClientName", "ClientAppId", "PermissionType", "Resource", "Permission", "ConsentType"}

// Row flattens the audit entry.
func (p PermissionRow) Row() []string {
	return []string{p.ClientName, p.ClientAppID, p.PermissionType, p.Resource, p.Permission, p.ConsentType}
}

// roleResolver memoises resource service principals within one audit run so
// resolving app-role GUIDs to permission names costs one lookup per
// resource, not per grant.
type roleResolver struct {
	svc   *Service
	cache map[string]map[string]string // resource SP id -> appRoleId -> value
}

func newRoleResolver(svc *Service) *roleResolver {
	return &roleResolver{svc: svc, cache: map[string]map[string]string{}}
}

// roleName resolves an appRoleId against the resource's published appRoles.
// Unknown ids fall back to the raw GUID so the report never drops a grant.
func (r *roleResolver) roleName(ctx context.Context, resourceID, appRoleID string) (string, error) {
	roles, ok := r.cache[resourceID]
	if !ok {
		sp, err := r.svc.GetServicePrincipal(ctx, resourceID)
		if err != nil {
			return "", err
		}
		roles = make(map[string]string, len(sp.AppRoles))
		for _, role := range sp.AppRoles {
			roles[role.ID] = role.Value
		}
		r.cache[resourceID] = roles
	}

	if name := roles[appRoleID]; name != "" {
		return name, nil
	}
	return appRoleID, nil
}

// AuditPermissions walks every service principal and emits one row per
// granted permission, application and delegated alike. Principals whose
// grants cannot be read are reported through onError and skipped; the rest
// of the tenant still gets audited.
func (s *Service) AuditPermissions(
	ctx context.Context,
	emit func(row PermissionRow) error,
	onError func(sp ServicePrincipal, err error),
) error {
	resolver := newRoleResolver(s)

	return s.ListServicePrincipals(ctx, func(sps []ServicePrincipal) error {
		for _, sp := range sps {
			if err := s.auditOne(ctx, sp, resolver, emit); err != nil {
				if ctx.Err() != nil {
					return err
				}
				if onError != nil {
					onError(sp, err)
				}
			}
		}
		return nil
	})
}

func (s *Service) auditOne(
	ctx context.Context,
	sp ServicePrincipal,
	resolver *roleResolver,
	emit func(row PermissionRow) error,
) error {
	roleGrants, err := s.ListAppRoleAssignments(ctx, sp.ID)
	if err != nil {
		return err
	}
	for _, g := range roleGrants {
		name, err := resolver.roleName(ctx, g.ResourceID, g.AppRoleID)
		if err != nil {
			name = g.AppRoleID
		}
		row := PermissionRow{
			ClientName:     sp.DisplayName,
			ClientAppID:    sp.AppID,
			PermissionType: "Application",
			Resource:       g.ResourceDisplayName,
			Permission:     name,
			ConsentType:    "AllPrincipals",
		}
		if err := emit(row); err != nil {
			return err
		}
	}

	scopeGrants, err := s.ListOAuth2Grants(ctx, sp.ID)
	if err != nil {
		return err
	}
	for _, g := range scopeGrants {
		for _, scope := range strings.Fields(g.Scope) {
			row := PermissionRow{
				ClientName:     sp.DisplayName,
				ClientAppID:    sp.AppID,
				PermissionType: "Delegated",
				Resource:       g.ResourceID,
				Permission:     scope,
				ConsentType:    g.ConsentType,
			}
			if err := emit(row); err != nil {
				return err
			}
		}
	}
	return nil
}
