package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyops/canopy/internal/auth"
	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/console"
	"github.com/canopyops/canopy/internal/remote"
)

type fixture struct {
	mux   *http.ServeMux
	auth  *auth.Auth
	token string
}

// newFixture wires the full API against fake backend services and
// returns a mux plus a valid session token.
func newFixture(t *testing.T, identity, captures, tokens http.Handler) *fixture {
	t.Helper()
	if identity == nil {
		identity = defaultIdentity()
	}
	if captures == nil {
		captures = envOK()
	}
	if tokens == nil {
		tokens = envOK()
	}
	idSrv := httptest.NewServer(identity)
	capSrv := httptest.NewServer(captures)
	tokSrv := httptest.NewServer(tokens)
	t.Cleanup(func() {
		idSrv.Close()
		capSrv.Close()
		tokSrv.Close()
	})

	store, err := cache.Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	session := console.NewTokenStore()
	timeout := 5 * time.Second
	c := console.New(console.Options{
		Identity: remote.NewIdentityClient(idSrv.URL, timeout, session),
		Captures: remote.NewCaptureClient(capSrv.URL, timeout, session),
		Tokens:   remote.NewTokenClient(tokSrv.URL, timeout, session),
		Store:    store,
		Session:  session,
		PageSize: 50,
	})
	t.Cleanup(c.Close)

	a := auth.New("test-secret", 60)
	token, err := a.GenerateToken("admin", "u1")
	require.NoError(t, err)

	mux := http.NewServeMux()
	New(c, store, a).RegisterRoutes(mux)
	return &fixture{mux: mux, auth: a, token: token}
}

func (f *fixture) do(method, path string, body any, authed bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, path, &buf)
	if authed {
		r.Header.Set("Authorization", "Bearer "+f.token)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

func envOK() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
}

func defaultIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/auth/admin/login" {
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "hunter2" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "bad credentials"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"data": map[string]any{
					"accessToken":  "at",
					"refreshToken": "rt",
					"user":         map[string]string{"id": "u1", "username": "admin"},
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	})
}

func TestAuthGate(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	protected := []struct{ method, path string }{
		{"GET", "/api/session"},
		{"GET", "/api/stats"},
		{"GET", "/api/trees"},
		{"GET", "/api/trees/t1"},
		{"GET", "/api/planters"},
		{"POST", "/api/reload"},
		{"POST", "/api/trees/t1/decision"},
		{"POST", "/api/trees/t1/mint"},
		{"GET", "/api/query?q=t1"},
		{"GET", "/api/view"},
		{"GET", "/api/audit"},
	}
	for _, route := range protected {
		w := f.do(route.method, route.path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}

func TestLoginIssuesSessionToken(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	w := f.do("POST", "/api/login", map[string]string{"username": "admin", "password": "hunter2"}, false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string      `json:"token"`
		User  remote.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "admin", resp.User.Username)

	claims, err := f.auth.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestLoginBadCredentials(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	w := f.do("POST", "/api/login", map[string]string{"username": "admin", "password": "wrong"}, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do("POST", "/api/login", map[string]string{"username": "admin"}, false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTreeNotFound(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	w := f.do("GET", "/api/trees/ghost", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecisionValidation(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	w := f.do("POST", "/api/trees/t1/decision", map[string]string{"status": "maybe"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do("POST", "/api/trees/ghost/decision", map[string]string{"status": "verified"}, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsShape(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	w := f.do("GET", "/api/stats", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stats console.Stats     `json:"stats"`
		Load  console.LoadState `json:"load"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Stats.TotalTrees)
	assert.False(t, resp.Load.Loading)
}

func TestViewParamsRoundTrip(t *testing.T) {
	f := newFixture(t, nil, nil, nil)

	w := f.do("PUT", "/api/view", map[string]string{"filterStatus": "verified"}, true)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", "/api/view", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var view console.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, "verified", view.FilterStatus)
}

func TestAuditEndpoint(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	w := f.do("GET", "/api/audit", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Entries []cache.AuditEntry `json:"entries"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}
