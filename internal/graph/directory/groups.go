package directory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/tenantops/graphadm/internal/graph"
)

// directoryObjectsBase is the prefix @odata.id references require.
const directoryObjectsBase = "https://graph.microsoft.com/v1.0/directoryObjects/"

// Group is an Entra group.
type Group struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	Mail            string   `json:"mail"`
	MailEnabled     bool     `json:"mailEnabled"`
	GroupTypes      []string `json:"groupTypes"`
	SecurityEnabled bool     `json:"securityEnabled"`
}

// DirectoryObject is the minimal shape shared by owner/member references.
type DirectoryObject struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	ODataType         string `json:"@odata.type"`
}

// ResolveGroup fetches a group by object ID.
func (s *Service) ResolveGroup(ctx context.Context, groupID string) (*Group, error) {
	var g Group
	path := fmt.Sprintf("/groups/%s?$select=id,displayName,mail,mailEnabled,groupTypes,securityEnabled", url.PathEscape(groupID))
	if err := s.client.Get(ctx, path, &g); err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", groupID, err)
	}
	return &g, nil
}

// ListGroupOwners returns all current owners of a group.
func (s *Service) ListGroupOwners(ctx context.Context, groupID string) ([]DirectoryObject, error) {
	path := fmt.Sprintf("/groups/%s/owners?$select=id,displayName,userPrincipalName", url.PathEscape(groupID))
	owners, err := graph.ListAll[DirectoryObject](ctx, s.client, path)
	if err != nil {
		return nil, fmt.Errorf("list owners of %s: %w", groupID, err)
	}
	return owners, nil
}

// AddGroupOwner adds a user as owner via the $ref collection.
func (s *Service) AddGroupOwner(ctx context.Context, groupID, userID string) error {
	body := map[string]string{"@odata.id": directoryObjectsBase + userID}
	path := fmt.Sprintf("/groups/%s/owners/$ref", url.PathEscape(groupID))
	if err := s.client.Post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("add owner %s to group %s: %w", userID, groupID, err)
	}
	return nil
}

// OwnerAssignment is one row of the add-owners input file.
type OwnerAssignment struct {
	GroupID  string
	OwnerUPN string
}

// ParseOwnerAssignments reads the input CSV (header: GroupId,OwnerUpn).
// Blank lines are skipped; a malformed row fails the whole parse so a bad
// file is caught before any mutation happens.
func ParseOwnerAssignments(r io.Reader) ([]OwnerAssignment, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse owner assignments: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse owner assignments: empty input")
	}

	// Tolerate a header row.
	start := 0
	if strings.EqualFold(records[0][0], "groupid") {
		start = 1
	}

	assignments := make([]OwnerAssignment, 0, len(records)-start)
	for i, rec := range records[start:] {
		if len(rec) < 2 {
			return nil, fmt.Errorf("parse owner assignments: row %d has %d columns, want 2", i+start+1, len(rec))
		}
		groupID := strings.TrimSpace(rec[0])
		upn := strings.TrimSpace(rec[1])
		if groupID == "" && upn == "" {
			continue
		}
		if groupID == "" || upn == "" {
			return nil, fmt.Errorf("parse owner assignments: row %d is incomplete", i+start+1)
		}
		assignments = append(assignments, OwnerAssignment{GroupID: groupID, OwnerUPN: upn})
	}
	return assignments, nil
}

// AddOwnerResult records the outcome for one input row.
type AddOwnerResult struct {
	Assignment OwnerAssignment
	GroupName  string
	Skipped    bool
	Err        error
}

// AddOwnersHeader is the add-owners report header.
var AddOwnersHeader = []string{"GroupId", "GroupName", "OwnerUpn", "Status"}

// Row reshapes an outcome into a report row.
func (r AddOwnerResult) Row() []string {
	status := "Success"
	switch {
	case r.Err != nil:
		status = fmt.Sprintf("Error: %v", r.Err)
	case r.Skipped:
		status = "Skipped: already an owner"
	}
	return []string{r.Assignment.GroupID, r.GroupName, r.Assignment.OwnerUPN, status}
}

// AddOwners applies each assignment, skipping users who already own the
// group. Per-row failures are recorded, not fatal: the remaining rows still
// run, matching how a bulk admin script reports partial success.
func (s *Service) AddOwners(ctx context.Context, assignments []OwnerAssignment) []AddOwnerResult {
	results := make([]AddOwnerResult, 0, len(assignments))
	for _, a := range assignments {
		results = append(results, s.addOwner(ctx, a))
	}
	return results
}

func (s *Service) addOwner(ctx context.Context, a OwnerAssignment) AddOwnerResult {
	res := AddOwnerResult{Assignment: a}

	group, err := s.ResolveGroup(ctx, a.GroupID)
	if err != nil {
		res.Err = err
		return res
	}
	res.GroupName = group.DisplayName

	user, err := s.ResolveUser(ctx, a.OwnerUPN)
	if err != nil {
		res.Err = err
		return res
	}

	owners, err := s.ListGroupOwners(ctx, a.GroupID)
	if err != nil {
		res.Err = err
		return res
	}
	for _, o := range owners {
		if o.ID == user.ID {
			res.Skipped = true
			return res
		}
	}

	res.Err = s.AddGroupOwner(ctx, a.GroupID, user.ID)
	return res
}
