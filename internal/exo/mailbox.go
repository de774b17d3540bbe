package exo

import (
	"context"
	"strconv"
)

// Mailbox is the subset of Get-EXOMailbox output the inventory reports on.
type Mailbox struct {
	UserPrincipalName     string `json:"UserPrincipalName"`
	DisplayName           string `json:"DisplayName"`
	Alias                 string `json:"Alias"`
	RecipientTypeDetails  string `json:"RecipientTypeDetails"`
	Database              string `json:"Database"`
	LitigationHoldEnabled bool   `json:"LitigationHoldEnabled"`
}

// mailboxProperties keeps the cmdlet from serialising every mailbox
// attribute.
var mailboxProperties = []string{
	"UserPrincipalName", "DisplayName", "Alias",
	"RecipientTypeDetails", "Database", "LitigationHoldEnabled",
}

// ListMailboxes pages the full mailbox inventory, handing each page to fn.
func (c *Client) ListMailboxes(ctx context.Context, fn func(boxes []Mailbox) error) error {
	params := map[string]any{
		"ResultSize": "Unlimited",
		"Properties": mailboxProperties,
	}
	return invokePages(ctx, c, "Get-EXOMailbox", params, fn)
}

// MailboxHeader is the mailbox inventory report header.
var MailboxHeader = []string{"UserPrincipalName", "DisplayName", "Alias", "Type", "Database", "LitigationHold"}

// MailboxRow flattens a mailbox into a report row.
func MailboxRow(m Mailbox) []string {
	return []string{
		m.UserPrincipalName,
		m.DisplayName,
		m.Alias,
		m.RecipientTypeDetails,
		m.Database,
		strconv.FormatBool(m.LitigationHoldEnabled),
	}
}
