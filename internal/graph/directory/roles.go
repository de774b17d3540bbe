package directory

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tenantops/graphadm/internal/graph"
)

// DirectoryRole is an activated admin role.
type DirectoryRole struct {
	ID             string `json:"id"`
	DisplayName    string `json:"displayName"`
	Description    string `json:"description"`
	RoleTemplateID string `json:"roleTemplateId"`
}

// ListDirectoryRoles returns all activated directory roles. Graph only
// returns roles that have at least one assignment in the tenant's history.
func (s *Service) ListDirectoryRoles(ctx context.Context) ([]DirectoryRole, error) {
	roles, err := graph.ListAll[DirectoryRole](ctx, s.client, "/directoryRoles")
	if err != nil {
		return nil, fmt.Errorf("list directory roles: %w", err)
	}
	return roles, nil
}

// ListRoleMembers returns the members of one role.
func (s *Service) ListRoleMembers(ctx context.Context, roleID string) ([]DirectoryObject, error) {
	path := fmt.Sprintf("/directoryRoles/%s/members?$select=id,displayName,userPrincipalName", url.PathEscape(roleID))
	members, err := graph.ListAll[DirectoryObject](ctx, s.client, path)
	if err != nil {
		return nil, fmt.Errorf("list members of role %s: %w", roleID, err)
	}
	return members, nil
}

// RoleMembershipHeader is the admin-role report header.
var RoleMembershipHeader = []string{"RoleName", "RoleTemplateId", "MemberUpn", "MemberDisplayName", "MemberType"}

// RoleMemberRow reshapes one (role, member) pair into a report row.
func RoleMemberRow(role DirectoryRole, member DirectoryObject) []string {
	return []string{
		role.DisplayName,
		role.RoleTemplateID,
		member.UserPrincipalName,
		member.DisplayName,
		memberType(member),
	}
}

// memberType strips the OData type down to the object kind, e.g.
// "#microsoft.graph.user" -> "user".
func memberType(obj DirectoryObject) string {
	if i := strings.LastIndex(obj.ODataType, "."); i >= 0 {
		return obj.ODataType[i+1:]
	}
	return obj.ODataType
}
