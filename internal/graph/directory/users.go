// Package directory covers the Entra directory objects the admin reports
// walk: users, groups, roles, and license SKUs.
package directory

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tenantops/graphadm/internal/graph"
)

// userSelect keeps user pages to the fields the reports reshape.
const userSelect = "id,displayName,userPrincipalName,accountEnabled,usageLocation,assignedLicenses"

// User is an Entra user as returned by /users.
type User struct {
	ID                string            `json:"id"`
	DisplayName       string            `json:"displayName"`
	UserPrincipalName string            `json:"userPrincipalName"`
	AccountEnabled    bool              `json:"accountEnabled"`
	UsageLocation     string            `json:"usageLocation"`
	AssignedLicenses  []AssignedLicense `json:"assignedLicenses"`
}

// AssignedLicense is one SKU assignment on a user.
type AssignedLicense struct {
	SKUID string `json:"skuId"`
}

// Service executes directory operations over one Graph session.
type Service struct {
	client *graph.Client
}

// NewService wraps a Graph session.
func NewService(client *graph.Client) *Service {
	return &Service{client: client}
}

// ResolveUser looks a user up by UPN or object ID.
func (s *Service) ResolveUser(ctx context.Context, upnOrID string) (*User, error) {
	var u User
	path := fmt.Sprintf("/users/%s?$select=%s", url.PathEscape(upnOrID), userSelect)
	if err := s.client.Get(ctx, path, &u); err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", upnOrID, err)
	}
	return &u, nil
}

// ListUsers streams all users page by page.
func (s *Service) ListUsers(ctx context.Context, fn func(users []User) error) error {
	path := fmt.Sprintf("/users?$select=%s&$top=999", userSelect)
	return graph.ListPages(ctx, s.client, path, fn)
}

// NewUser describes a user to create.
type NewUser struct {
	DisplayName       string
	UserPrincipalName string
	MailNickname      string
	UsageLocation     string
	// LicenseSKU optionally names a SKU part number to assign after
	// creation, e.g. "ENTERPRISEPACK".
	LicenseSKU string
}

// Validate checks the fields Graph requires on POST /users.
func (u NewUser) Validate() error {
	if u.DisplayName == "" {
		return fmt.Errorf("directory: displayName is required")
	}
	if !strings.Contains(u.UserPrincipalName, "@") {
		return fmt.Errorf("directory: userPrincipalName %q is not a UPN", u.UserPrincipalName)
	}
	if u.MailNickname == "" {
		return fmt.Errorf("directory: mailNickname is required")
	}
	return nil
}

// createUserRequest is the POST /users body.
type createUserRequest struct {
	AccountEnabled    bool            `json:"accountEnabled"`
	DisplayName       string          `json:"displayName"`
	UserPrincipalName string          `json:"userPrincipalName"`
	MailNickname      string          `json:"mailNickname"`
	UsageLocation     string          `json:"usageLocation,omitempty"`
	PasswordProfile   passwordProfile `json:"passwordProfile"`
}

type passwordProfile struct {
	Password                      string `json:"password"`
	ForceChangePasswordNextSignIn bool   `json:"forceChangePasswordNextSignIn"`
}

// CreateUser creates one user with a generated initial password and returns
// the created object plus the password for the run report.
func (s *Service) CreateUser(ctx context.Context, nu NewUser) (*User, string, error) {
	if err := nu.Validate(); err != nil {
		return nil, "", err
	}

	password := generatePassword()
	req := createUserRequest{
		AccountEnabled:    true,
		DisplayName:       nu.DisplayName,
		UserPrincipalName: nu.UserPrincipalName,
		MailNickname:      nu.MailNickname,
		UsageLocation:     nu.UsageLocation,
		PasswordProfile: passwordProfile{
			Password:                      password,
			ForceChangePasswordNextSignIn: true,
		},
	}

	var created User
	if err := s.client.Post(ctx, "/users", req, &created); err != nil {
		return nil, "", fmt.Errorf("create user %s: %w", nu.UserPrincipalName, err)
	}
	return &created, password, nil
}

// assignLicenseRequest is the POST /users/{id}/assignLicense body.
type assignLicenseRequest struct {
	AddLicenses    []AssignedLicense `json:"addLicenses"`
	RemoveLicenses []string          `json:"removeLicenses"`
}

// AssignLicense adds one SKU to a user. RemoveLicenses must be present and
// empty or Graph rejects the request.
func (s *Service) AssignLicense(ctx context.Context, userID, skuID string) error {
	req := assignLicenseRequest{
		AddLicenses:    []AssignedLicense{{SKUID: skuID}},
		RemoveLicenses: []string{},
	}
	path := fmt.Sprintf("/users/%s/assignLicense", url.PathEscape(userID))
	if err := s.client.Post(ctx, path, req, nil); err != nil {
		return fmt.Errorf("assign license to %s: %w", userID, err)
	}
	return nil
}

// CountUsers returns the tenant user count via an advanced $count query.
func (s *Service) CountUsers(ctx context.Context) (int64, error) {
	return s.client.Count(ctx, "/users?$count=true&$top=1")
}

// generatePassword produces a random initial password meeting Entra
// complexity defaults. Users must change it at first sign-in.
func generatePassword() string {
	// Two UUIDs give 256 bits of randomness; the fixed prefix guarantees
	// the character-class requirements.
	return "Xq7!" + uuid.NewString() + strings.ToUpper(uuid.NewString()[:8])
}

// UserLicenseHeader is the per-user license report header.
var UserLicenseHeader = []string{"UserPrincipalName", "DisplayName", "Enabled", "UsageLocation", "LicenseCount", "SkuIds"}

// UserLicenseRow reshapes one user into a license report row.
func UserLicenseRow(u User) []string {
	skus := make([]string, 0, len(u.AssignedLicenses))
	for _, l := range u.AssignedLicenses {
		skus = append(skus, l.SKUID)
	}
	return []string{
		u.UserPrincipalName,
		u.DisplayName,
		strconv.FormatBool(u.AccountEnabled),
		u.UsageLocation,
		strconv.Itoa(len(skus)),
		strings.Join(skus, ";"),
	}
}
