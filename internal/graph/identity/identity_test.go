package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantops/graphadm/internal/graph"
	"github.com/tenantops/graphadm/internal/retry"
)

func testService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := graph.NewClient(context.Background(), graph.Credentials{},
		graph.WithBaseURL(srv.URL),
		graph.WithHTTPClient(srv.Client()),
		graph.WithRetryPolicy(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}),
	)
	return NewService(client)
}

func graphSPHandler(mux *http.ServeMux) {
	mux.HandleFunc("/servicePrincipals", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[{"id":"graph-sp","appId":"%s","displayName":"Microsoft Graph","appRoles":[
			{"id":"role-dir","value":"Directory.Read.All"},
			{"id":"role-mail","value":"Mail.Send"}]}]}`, GraphAppID)
	})
}

func TestListRegistrationDetails_Pages(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/reports/authenticationMethods/userRegistrationDetails", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[
			{"userPrincipalName":"ada@contoso.com","userDisplayName":"Ada","isMfaRegistered":true,"isMfaCapable":true,"defaultMfaMethod":"microsoftAuthenticatorPush","methodsRegistered":["microsoftAuthenticatorPush","softwareOneTimePasscode"]}],
			"@odata.nextLink":"%s/page2"}`, srvURL)
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"userPrincipalName":"bob@contoso.com","userDisplayName":"Bob","isAdmin":true}]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL

	client := graph.NewClient(context.Background(), graph.Credentials{},
		graph.WithBaseURL(srv.URL), graph.WithHTTPClient(srv.Client()))
	svc := NewService(client)

	var rows [][]string
	err := svc.ListRegistrationDetails(context.Background(), func(details []RegistrationDetail) error {
		for _, d := range details {
			rows = append(rows, MFARow(d))
		}
		return nil
	})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t,
		[]string{"ada@contoso.com", "Ada", "true", "true", "false", "microsoftAuthenticatorPush", "microsoftAuthenticatorPush;softwareOneTimePasscode"},
		rows[0])
	assert.Equal(t,
		[]string{"bob@contoso.com", "Bob", "false", "false", "true", "", ""},
		rows[1])
}

func TestGrantGraphRoles(t *testing.T) {
	var granted []appRoleGrant
	mux := http.NewServeMux()
	graphSPHandler(mux)
	mux.HandleFunc("/servicePrincipals/msi-1/appRoleAssignments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var g appRoleGrant
			require.NoError(t, json.NewDecoder(r.Body).Decode(&g))
			granted = append(granted, g)
			fmt.Fprint(w, `{"id":"assignment-1"}`)
			return
		}
		fmt.Fprint(w, `{"value":[{"appRoleId":"role-mail","resourceId":"graph-sp"}]}`)
	})

	svc := testService(t, mux)
	results, err := svc.GrantGraphRoles(context.Background(), "msi-1",
		[]string{"Directory.Read.All", "Mail.Send", "Bogus.Permission"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, []string{"Directory.Read.All", "role-dir", "Success"}, results[0].Row())

	assert.True(t, results[1].Skipped)
	assert.Equal(t, []string{"Mail.Send", "role-mail", "Skipped: already granted"}, results[1].Row())

	require.Error(t, results[2].Err)
	assert.Contains(t, results[2].Row()[2], "not a Microsoft Graph app role")

	require.Len(t, granted, 1, "only the missing permission is posted")
	assert.Equal(t, appRoleGrant{PrincipalID: "msi-1", ResourceID: "graph-sp", AppRoleID: "role-dir"}, granted[0])
}

func TestGrantGraphRoles_GraphPrincipalMissing(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	}))

	_, err := svc.GrantGraphRoles(context.Background(), "msi-1", []string{"Directory.Read.All"})
	require.ErrorIs(t, err, graph.ErrNotFound)
}

func TestGrantGraphRoles_PostFailureRecorded(t *testing.T) {
	mux := http.NewServeMux()
	graphSPHandler(mux)
	mux.HandleFunc("/servicePrincipals/msi-1/appRoleAssignments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":"Authorization_RequestDenied","message":"denied"}}`)
			return
		}
		fmt.Fprint(w, `{"value":[]}`)
	})

	svc := testService(t, mux)
	results, err := svc.GrantGraphRoles(context.Background(), "msi-1", []string{"Directory.Read.All", "Mail.Send"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, graph.ErrForbidden)
	assert.ErrorIs(t, results[1].Err, graph.ErrForbidden, "later grants still attempted")
}
