package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseNewUsers reads the bulk-create input CSV with the header
// DisplayName,UserPrincipalName,MailNickname,UsageLocation,LicenseSku.
// The last two columns are optional.
func ParseNewUsers(r io.Reader) ([]NewUser, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse users: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("parse users: empty input")
	}

	start := 0
	if strings.EqualFold(records[0][0], "displayname") {
		start = 1
	}

	users := make([]NewUser, 0, len(records)-start)
	for i, rec := range records[start:] {
		if len(rec) < 3 {
			return nil, fmt.Errorf("parse users: row %d has %d columns, want at least 3", i+start+1, len(rec))
		}
		nu := NewUser{
			DisplayName:       strings.TrimSpace(rec[0]),
			UserPrincipalName: strings.TrimSpace(rec[1]),
			MailNickname:      strings.TrimSpace(rec[2]),
		}
		if len(rec) > 3 {
			nu.UsageLocation = strings.TrimSpace(rec[3])
		}
		if len(rec) > 4 {
			nu.LicenseSKU = strings.TrimSpace(rec[4])
		}
		if nu == (NewUser{}) {
			continue
		}
		if err := nu.Validate(); err != nil {
			return nil, fmt.Errorf("parse users: row %d: %w", i+start+1, err)
		}
		users = append(users, nu)
	}
	return users, nil
}

// CreateUserResult records the outcome for one bulk-create row.
type CreateUserResult struct {
	Input           NewUser
	UserID          string
	InitialPassword string
	LicenseAssigned bool
	Err             error
}

// BulkCreateHeader is the bulk-create report header.
var BulkCreateHeader = []string{"UserPrincipalName", "DisplayName", "UserId", "InitialPassword", "LicenseSku", "LicenseAssigned", "Status"}

// Row reshapes an outcome into a report row.
func (r CreateUserResult) Row() []string {
	status := "Success"
	if r.Err != nil {
		status = fmt.Sprintf("Error: %v", r.Err)
	}
	return []string{
		r.Input.UserPrincipalName,
		r.Input.DisplayName,
		r.UserID,
		r.InitialPassword,
		r.Input.LicenseSKU,
		fmt.Sprintf("%t", r.LicenseAssigned),
		status,
	}
}

// CreateUsers creates each user in sequence. License SKU names are resolved
// once against the tenant's inventory before any user is created; an input
// naming an unknown SKU fails fast instead of half-applying.
func (s *Service) CreateUsers(ctx context.Context, users []NewUser) ([]CreateUserResult, error) {
	skuIDs, err := s.resolveInputSKUs(ctx, users)
	if err != nil {
		return nil, err
	}

	results := make([]CreateUserResult, 0, len(users))
	for _, nu := range users {
		res := CreateUserResult{Input: nu}

		created, password, err := s.CreateUser(ctx, nu)
		if err != nil {
			res.Err = err
			results = append(results, res)
			continue
		}
		res.UserID = created.ID
		res.InitialPassword = password

		if nu.LicenseSKU != "" {
			if err := s.AssignLicense(ctx, created.ID, skuIDs[nu.LicenseSKU]); err != nil {
				res.Err = err
			} else {
				res.LicenseAssigned = true
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// resolveInputSKUs maps every SKU part number named in the input to its
// GUID, or fails naming the first unknown one.
func (s *Service) resolveInputSKUs(ctx context.Context, users []NewUser) (map[string]string, error) {
	wanted := map[string]string{}
	for _, nu := range users {
		if nu.LicenseSKU != "" {
			wanted[nu.LicenseSKU] = ""
		}
	}
	if len(wanted) == 0 {
		return wanted, nil
	}

	skus, err := s.ListSubscribedSKUs(ctx)
	if err != nil {
		return nil, err
	}
	for part := range wanted {
		sku, ok := FindSKUByPartNumber(skus, part)
		if !ok {
			return nil, fmt.Errorf("directory: tenant has no SKU %q", part)
		}
		wanted[part] = sku.SKUID
	}
	return wanted, nil
}
