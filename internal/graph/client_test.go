package graph

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

	"github.com/tenantops/graphadm/internal/retry"
)

// testClient wires a Client to an httptest server, bypassing token exchange.
func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := &Client{
		baseURL: srv.URL,
		http:    srv.Client(),
		limiter: NewRateLimiter(1000, 1000),
		policy:  retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
	}
	return c, srv
}

func TestClient_GetDecodesJSON(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/alice@contoso.com", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("client-request-id"))
		fmt.Fprint(w, `{"id":"u-1","displayName":"Alice"}`)
	}))

	var out struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName"`
	}
	err := c.Get(context.Background(), "/users/alice@contoso.com", &out)

	require.NoError(t, err)
	assert.Equal(t, "u-1", out.ID)
	assert.Equal(t, "Alice", out.DisplayName)
}

func TestClient_PostSendsBody(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "https://graph.microsoft.com/v1.0/users/u-2", in["@odata.id"])

		w.WriteHeader(http.StatusNoContent)
	}))

	err := c.Post(context.Background(), "/groups/g-1/owners/$ref",
		map[string]string{"@odata.id": "https://graph.microsoft.com/v1.0/users/u-2"}, nil)
	require.NoError(t, err)
}

func TestClient_ErrorCarriesODataMetadata(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"Request_ResourceNotFound","message":"no such user"}}`)
	}))

	err := c.Get(context.Background(), "/users/ghost", nil)

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Request_ResourceNotFound", apiErr.Code)
	assert.Equal(t, "no such user", apiErr.Message)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_RetriesServiceUnavailable(t *testing.T) {
	calls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))

	err := c.Get(context.Background(), "/organization", nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestClient_ThrottleRetryAfterHonoured(t *testing.T) {
	calls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":"activityLimitReached","message":"slow down"}}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))

	start := time.Now()
	err := c.Get(context.Background(), "/users", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Less(t, time.Since(start), 5*time.Second,
		"Retry-After: 0 overrides the computed backoff")
}

func TestClient_FatalErrorNotRetried(t *testing.T) {
	calls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"Authorization_RequestDenied","message":"insufficient privileges"}}`)
	}))

	err := c.Get(context.Background(), "/users", nil)

	require.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, calls)
}

func TestClient_GetEventualSetsConsistencyHeader(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eventual", r.Header.Get("ConsistencyLevel"))
		fmt.Fprint(w, `{"@odata.count":12,"value":[]}`)
	}))

	n, err := c.Count(context.Background(), "/users/$count")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

func TestListAll_FollowsNextLinks(t *testing.T) {
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"value":[{"id":"u-1"},{"id":"u-2"}],"@odata.nextLink":"%s/users-page2"}`, srv.URL)
	})
	mux.HandleFunc("/users-page2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"value":[{"id":"u-3"}]}`)
	})

	c, s := testClient(t, mux)
	srv = s

	type user struct {
		ID string `json:"id"`
	}
	users, err := ListAll[user](context.Background(), c, "/users")

	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "u-3", users[2].ID)
}

func TestListPages_StopsOnCallbackError(t *testing.T) {
	pages := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		fmt.Fprint(w, `{"value":[{}],"@odata.nextLink":"https://never.invalid/next"}`)
	}))

	stop := fmt.Errorf("stop here")
	err := ListPages(context.Background(), c, "/users", func(items []json.RawMessage) error {
		return stop
	})

	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, pages, "no further pages fetched after callback error")
}

func TestClient_AbsoluteURLNotPrefixed(t *testing.T) {
	c, srv := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/absolute", r.URL.Path)
		fmt.Fprint(w, `{}`)
	}))

	err := c.Get(context.Background(), srv.URL+"/absolute", nil)
	require.NoError(t, err)
}

func TestCredentials_TokenURL(t *testing.T) {
	creds := Credentials{TenantID: "11111111-2222-3333-4444-555555555555"}
	assert.Equal(t,
		"https://login.microsoftonline.com/11111111-2222-3333-4444-555555555555/oauth2/v2.0/token",
		creds.TokenURL())
}
