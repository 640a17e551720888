package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/console"
	"github.com/canopyops/canopy/internal/remote"
)

func env(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// fakeConsole wires a console against fake backends: an identity
// service accepting admin/hunter2, a capture service with one page of
// records, and a token service answering everything with success.
func fakeConsole(t *testing.T) *console.Console {
	t.Helper()
	identity := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/admin/login" {
			env(w, map[string]any{"success": true})
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			env(w, map[string]any{"success": false, "error": "bad credentials"})
			return
		}
		env(w, map[string]any{"success": true, "data": map[string]any{
			"accessToken":  "at",
			"refreshToken": "rt",
			"user":         map[string]string{"id": "u1", "username": "admin"},
		}})
	}))
	captures := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at" {
			w.WriteHeader(http.StatusUnauthorized)
			env(w, map[string]any{"success": false, "error": "token required"})
			return
		}
		env(w, map[string]any{
			"success":    true,
			"data":       []map[string]any{{"id": "t1", "status": "verified", "plantedBy": "Alice"}},
			"pagination": map[string]int{"totalPages": 1},
		})
	}))
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env(w, map[string]any{"success": true})
	}))
	t.Cleanup(func() {
		identity.Close()
		captures.Close()
		tokens.Close()
	})

	store, err := cache.Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	session := console.NewTokenStore()
	timeout := 5 * time.Second
	c := console.New(console.Options{
		Identity: remote.NewIdentityClient(identity.URL, timeout, session),
		Captures: remote.NewCaptureClient(captures.URL, timeout, session),
		Tokens:   remote.NewTokenClient(tokens.URL, timeout, session),
		Store:    store,
		Session:  session,
		PageSize: 50,
	})
	t.Cleanup(c.Close)
	return c
}

func TestBootstrapLoadsSession(t *testing.T) {
	c := fakeConsole(t)

	require.NoError(t, Bootstrap(context.Background(), c, "admin", "hunter2"))

	// The tools serve a populated, authenticated console.
	trees := c.Trees()
	require.Len(t, trees, 1)
	assert.Equal(t, "t1", trees[0].TreeID)
	assert.Equal(t, "admin", c.Operator())

	srv := NewServer(c)
	assert.NotNil(t, srv)
}

func TestBootstrapBadCredentials(t *testing.T) {
	c := fakeConsole(t)

	err := Bootstrap(context.Background(), c, "admin", "wrong")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.Empty(t, c.Trees())
}

func TestBootstrapRequiresCredentials(t *testing.T) {
	c := fakeConsole(t)

	assert.Error(t, Bootstrap(context.Background(), c, "", ""))
	assert.Error(t, Bootstrap(context.Background(), c, "admin", ""))
}
