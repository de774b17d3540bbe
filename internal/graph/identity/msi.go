package identity

import (
	"context"
	"fmt"
	"net/url"
)

// GraphAppID is the well-known appId of the Microsoft Graph service
// principal, identical in every tenant.
const GraphAppID = "00000003-0000-0000-c000-000000000000"

// GrantResult records the outcome of one requested permission grant.
type GrantResult struct {
	Permission string
	AppRoleID  string
	Skipped    bool
	Err        error
}

// GrantHeader is the grant report header.
var GrantHeader = []string{"Permission", "AppRoleId", "Status"}

// Row flattens a grant outcome into a report row.
func (r GrantResult) Row() []string {
	status := "Success"
	switch {
	case r.Err != nil:
		status = fmt.Sprintf("Error: %v", r.Err)
	case r.Skipped:
		status = "Skipped: already granted"
	}
	return []string{r.Permission, r.AppRoleID, status}
}

type appRoleGrant struct {
	PrincipalID string `json:"principalId"`
	ResourceID  string `json:"resourceId"`
	AppRoleID   string `json:"appRoleId"`
}

// GrantGraphRoles assigns Graph application permissions to a managed
// identity's service principal. Permission names are matched against the
// Graph service principal's published appRoles; assignments that already
// exist report as skipped. Failing to resolve the Graph principal or the
// identity's current assignments aborts the run, individual grant failures
// do not.
func (s *Service) GrantGraphRoles(ctx context.Context, msiObjectID string, permissions []string) ([]GrantResult, error) {
	graphSP, err := s.sps.FindServicePrincipalByAppID(ctx, GraphAppID)
	if err != nil {
		return nil, fmt.Errorf("resolve Microsoft Graph service principal: %w", err)
	}

	roleByName := make(map[string]string, len(graphSP.AppRoles))
	for _, role := range graphSP.AppRoles {
		roleByName[role.Value] = role.ID
	}

	existing, err := s.sps.ListAppRoleAssignments(ctx, msiObjectID)
	if err != nil {
		return nil, fmt.Errorf("list current assignments: %w", err)
	}
	held := make(map[string]bool, len(existing))
	for _, a := range existing {
		if a.ResourceID == graphSP.ID {
			held[a.AppRoleID] = true
		}
	}

	path := fmt.Sprintf("/servicePrincipals/%s/appRoleAssignments", url.PathEscape(msiObjectID))
	results := make([]GrantResult, 0, len(permissions))
	for _, perm := range permissions {
		res := GrantResult{Permission: perm}
		roleID, ok := roleByName[perm]
		if !ok {
			res.Err = fmt.Errorf("permission %q is not a Microsoft Graph app role", perm)
			results = append(results, res)
			continue
		}
		res.AppRoleID = roleID

		if held[roleID] {
			res.Skipped = true
			results = append(results, res)
			continue
		}

		grant := appRoleGrant{PrincipalID: msiObjectID, ResourceID: graphSP.ID, AppRoleID: roleID}
		if err := s.client.Post(ctx, path, grant, nil); err != nil {
			res.Err = fmt.Errorf("grant %s: %w", perm, err)
		}
		results = append(results, res)
	}
	return results, nil
}
