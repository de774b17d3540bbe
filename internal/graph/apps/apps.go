// Package apps covers app registrations and enterprise applications
// (service principals): inventory, bulk registration, and permission audit.
package apps

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/tenantops/graphadm/internal/graph"
)

// spSelect trims service principal pages to the audited fields.
const spSelect = "id,appId,displayName,publisherName,servicePrincipalType,accountEnabled,signInAudience,appRoles,appOwnerOrganizationId"

// ServicePrincipal is an enterprise application.
type ServicePrincipal struct {
	ID                     string    `json:"id"`
	AppID                  string    `json:"appId"`
	DisplayName            string    `json:"displayName"`
	PublisherName          string    `json:"publisherName"`
	ServicePrincipalType   string    `json:"servicePrincipalType"`
	AccountEnabled         bool      `json:"accountEnabled"`
	SignInAudience         string    `json:"signInAudience"`
	AppRoles               []AppRole `json:"appRoles"`
	AppOwnerOrganizationID string    `json:"appOwnerOrganizationId"`
}

// AppRole is an application permission a resource exposes.
type AppRole struct {
	ID          string `json:"id"`
	Value       string `json:"value"`
	DisplayName string `json:"displayName"`
}

// Application is an app registration.
type Application struct {
	ID             string `json:"id"`
	AppID          string `json:"appId"`
	DisplayName    string `json:"displayName"`
	SignInAudience string `json:"signInAudience"`
}

// Service executes application operations over one Graph session.
type Service struct {
	client *graph.Client
}

// NewService wraps a Graph session.
func NewService(client *graph.Client) *Service {
	return &Service{client: client}
}

// ListServicePrincipals streams every service principal in the tenant.
func (s *Service) ListServicePrincipals(ctx context.Context, fn func(sps []ServicePrincipal) error) error {
	path := fmt.Sprintf("/servicePrincipals?$select=%s&$top=999", spSelect)
	return graph.ListPages(ctx, s.client, path, fn)
}

// FindServicePrincipalByAppID resolves a service principal by its appId.
func (s *Service) FindServicePrincipalByAppID(ctx context.Context, appID string) (*ServicePrincipal, error) {
	filter := url.PathEscape(fmt.Sprintf("appId eq '%s'", appID))
	path := fmt.Sprintf("/servicePrincipals?$filter=%s&$select=%s", filter, spSelect)
	sps, err := graph.ListAll[ServicePrincipal](ctx, s.client, path)
	if err != nil {
		return nil, fmt.Errorf("find service principal %s: %w", appID, err)
	}
	if len(sps) == 0 {
		return nil, fmt.Errorf("find service principal %s: %w", appID, graph.ErrNotFound)
	}
	return &sps[0], nil
}

// GetServicePrincipal fetches one service principal by object ID.
func (s *Service) GetServicePrincipal(ctx context.Context, id string) (*ServicePrincipal, error) {
	var sp ServicePrincipal
	path := fmt.Sprintf("/servicePrincipals/%s?$select=%s", url.PathEscape(id), spSelect)
	if err := s.client.Get(ctx, path, &sp); err != nil {
		return nil, fmt.Errorf("get service principal %s: %w", id, err)
	}
	return &sp, nil
}

// EnterpriseAppHeader is the enterprise app inventory report header.
var EnterpriseAppHeader = []string{"DisplayName", "AppId", "ObjectId", "Publisher", "Type", "Enabled", "SignInAudience"}

// EnterpriseAppRow reshapes one service principal into an inventory row.
func EnterpriseAppRow(sp ServicePrincipal) []string {
	return []string{
		sp.DisplayName,
		sp.AppID,
		sp.ID,
		sp.PublisherName,
		sp.ServicePrincipalType,
		strconv.FormatBool(sp.AccountEnabled),
		sp.SignInAudience,
	}
}

// NewApplication describes an app registration to create.
type NewApplication struct {
	DisplayName    string
	SignInAudience string
	RedirectURIs   []string
}

// Validate checks required fields.
func (a NewApplication) Validate() error {
	if a.DisplayName == "" {
		return errors.New("apps: displayName is required")
	}
	return nil
}

// createApplicationRequest is the POST /applications body.
type createApplicationRequest struct {
	DisplayName    string   `json:"displayName"`
	SignInAudience string   `json:"signInAudience,omitempty"`
	Web            *webInfo `json:"web,omitempty"`
}

type webInfo struct {
	RedirectURIs []string `json:"redirectUris"`
}

// CreateApplication registers one application and its backing service
// principal, mirroring what the portal's "New registration" does.
func (s *Service) CreateApplication(ctx context.Context, na NewApplication) (*Application, *ServicePrincipal, error) {
	if err := na.Validate(); err != nil {
		return nil, nil, err
	}

	req := createApplicationRequest{
		DisplayName:    na.DisplayName,
		SignInAudience: na.SignInAudience,
	}
	if len(na.RedirectURIs) > 0 {
		req.Web = &webInfo{RedirectURIs: na.RedirectURIs}
	}

	var app Application
	if err := s.client.Post(ctx, "/applications", req, &app); err != nil {
		return nil, nil, fmt.Errorf("create application %s: %w", na.DisplayName, err)
	}

	var sp ServicePrincipal
	spReq := map[string]string{"appId": app.AppID}
	if err := s.client.Post(ctx, "/servicePrincipals", spReq, &sp); err != nil {
		return &app, nil, fmt.Errorf("create service principal for %s: %w", na.DisplayName, err)
	}
	return &app, &sp, nil
}

// ParseNewApplications reads the bulk-registration input CSV with the
// header DisplayName,SignInAudience,RedirectUris. Redirect URIs within a
// cell are separated by semicolons.
func ParseNewApplications(r io.Reader) ([]NewApplication, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse applications: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("parse applications: empty input")
	}

	start := 0
	if strings.EqualFold(records[0][0], "displayname") {
		start = 1
	}

	var out []NewApplication
	for i, rec := range records[start:] {
		na := NewApplication{DisplayName: strings.TrimSpace(rec[0])}
		if len(rec) > 1 {
			na.SignInAudience = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			for _, u := range strings.Split(rec[2], ";") {
				if u = strings.TrimSpace(u); u != "" {
					na.RedirectURIs = append(na.RedirectURIs, u)
				}
			}
		}
		if na.DisplayName == "" && na.SignInAudience == "" && len(na.RedirectURIs) == 0 {
			continue
		}
		if err := na.Validate(); err != nil {
			return nil, fmt.Errorf("parse applications: row %d: %w", i+start+1, err)
		}
		out = append(out, na)
	}
	return out, nil
}

// CreateAppResult records the outcome for one bulk-registration row.
type CreateAppResult struct {
	Input              NewApplication
	AppID              string
	ObjectID           string
	ServicePrincipalID string
	Err                error
}

// BulkAppHeader is the bulk-registration report header.
var BulkAppHeader = []string{"DisplayName", "AppId", "ObjectId", "ServicePrincipalId", "Status"}

// Row reshapes an outcome into a report row.
func (r CreateAppResult) Row() []string {
	status := "Success"
	if r.Err != nil {
		status = fmt.Sprintf("Error: %v", r.Err)
	}
	return []string{r.Input.DisplayName, r.AppID, r.ObjectID, r.ServicePrincipalID, status}
}

// CreateApplications registers each application in sequence, recording
// per-row outcomes.
func (s *Service) CreateApplications(ctx context.Context, inputs []NewApplication) []CreateAppResult {
	results := make([]CreateAppResult, 0, len(inputs))
	for _, na := range inputs {
		res := CreateAppResult{Input: na}
		app, sp, err := s.CreateApplication(ctx, na)
		if app != nil {
			res.AppID = app.AppID
			res.ObjectID = app.ID
		}
		if sp != nil {
			res.ServicePrincipalID = sp.ID
		}
		res.Err = err
		results = append(results, res)
	}
	return results
}
