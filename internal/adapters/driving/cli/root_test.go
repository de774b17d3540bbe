package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantops/graphadm/internal/config"
	"github.com/tenantops/graphadm/internal/exo"
	"github.com/tenantops/graphadm/internal/graph"
	"github.com/tenantops/graphadm/internal/retry"
)

// stubSession points every command at a local server for the duration of a
// test.
func stubSession(t *testing.T, handler http.Handler) {
	t.Helper()
	srv := httptest.NewServer(handler)

	old := newSession
	newSession = func(ctx context.Context) (*session, error) {
		opts := []graph.Option{
			graph.WithBaseURL(srv.URL),
			graph.WithHTTPClient(srv.Client()),
			graph.WithRetryPolicy(retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond}),
			graph.WithRateLimiter(graph.NewRateLimiter(1000, 1000)),
		}
		return &session{
			cfg:    &config.Config{},
			client: graph.NewClient(ctx, graph.Credentials{}, opts...),
			newEXO: func() *exo.Client {
				return exo.NewClient(ctx, graph.Credentials{TenantID: "tenant-1"}, opts...)
			},
		}, nil
	}
	t.Cleanup(func() {
		newSession = old
		srv.Close()
	})
}

// execute runs the root command with args, capturing its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		outputPath = ""
		configPath = ""
		verbose = false
		grantPermissions = nil
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

// readReport parses a CSV report written by a command under test.
func readReport(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "graphadm", rootCmd.Use)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "report")
	assert.Contains(t, names, "group")
	assert.Contains(t, names, "user")
	assert.Contains(t, names, "app")
	assert.Contains(t, names, "audit")
	assert.Contains(t, names, "identity")
	assert.Contains(t, names, "version")
}

func TestReportCmd_HasSubcommands(t *testing.T) {
	names := make([]string, 0)
	for _, cmd := range reportCmd.Commands() {
		names = append(names, cmd.Name())
	}

	assert.Contains(t, names, "licenses")
	assert.Contains(t, names, "apps")
	assert.Contains(t, names, "mfa")
	assert.Contains(t, names, "roles")
	assert.Contains(t, names, "mailboxes")
	assert.Contains(t, names, "mailbox-count")
}

func TestVersionCmd(t *testing.T) {
	originalVersion := version
	defer func() { version = originalVersion }()
	SetVersion("1.2.3")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")
}

func TestExecute_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "graphadm")
}

func TestReportApps_WritesCSV(t *testing.T) {
	stubSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[
			{"id":"sp-1","appId":"app-1","displayName":"App One","accountEnabled":true},
			{"id":"sp-2","appId":"app-2","displayName":"App Two"}]}`)
	}))
	out := filepath.Join(t.TempDir(), "apps.csv")

	stdout, err := execute(t, "report", "apps", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote 2 enterprise apps")

	rows := readReport(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, "DisplayName", rows[0][0])
	assert.Equal(t, "App One", rows[1][0])
}

func TestReportMFA_WritesCSV(t *testing.T) {
	stubSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[
			{"userPrincipalName":"ada@contoso.com","userDisplayName":"Ada","isMfaRegistered":true},
			{"userPrincipalName":"bob@contoso.com","userDisplayName":"Bob"}]}`)
	}))
	out := filepath.Join(t.TempDir(), "mfa.csv")

	stdout, err := execute(t, "report", "mfa", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 without MFA")

	rows := readReport(t, out)
	require.Len(t, rows, 3)
}

func TestGroupAddOwners_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/groups/g-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"g-1","displayName":"Finance"}`)
	})
	mux.HandleFunc("/users/alice@contoso.com", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"u-1","displayName":"Alice","userPrincipalName":"alice@contoso.com"}`)
	})
	mux.HandleFunc("/groups/g-1/owners", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[]}`)
	})
	mux.HandleFunc("/groups/g-1/owners/$ref", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stubSession(t, mux)

	input := filepath.Join(t.TempDir(), "owners.csv")
	require.NoError(t, os.WriteFile(input, []byte("GroupId,OwnerUpn\ng-1,alice@contoso.com\n"), 0644))
	out := filepath.Join(t.TempDir(), "result.csv")

	stdout, err := execute(t, "group", "add-owners", input, "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 of 1 succeeded")

	rows := readReport(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"g-1", "Finance", "alice@contoso.com", "Success"}, rows[1])
}

func TestGroupAddOwners_MissingInput(t *testing.T) {
	_, err := execute(t, "group", "add-owners", filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestIdentityGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/servicePrincipals", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"graph-sp","appId":"00000003-0000-0000-c000-000000000000","appRoles":[{"id":"role-1","value":"Directory.Read.All"}]}]}`)
	})
	mux.HandleFunc("/servicePrincipals/msi-1/appRoleAssignments", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fmt.Fprint(w, `{"id":"assignment-1"}`)
			return
		}
		fmt.Fprint(w, `{"value":[]}`)
	})
	stubSession(t, mux)

	stdout, err := execute(t, "identity", "grant", "msi-1", "-p", "Directory.Read.All")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Directory.Read.All")
	assert.Contains(t, stdout, "Success")
}

func TestIdentityGrant_RequiresPermission(t *testing.T) {
	_, err := execute(t, "identity", "grant", "msi-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--permission")
}

func TestReportMailboxCount(t *testing.T) {
	stubSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"Alias":"x"}]}`)
	}))
	out := filepath.Join(t.TempDir(), "count.csv")

	stdout, err := execute(t, "report", "mailbox-count", "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Total mailboxes: 36")

	rows := readReport(t, out)
	require.Len(t, rows, 37)
}
