package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/remote"
)

// backends bundles one fake HTTP server per service.
type backends struct {
	identity *httptest.Server
	captures *httptest.Server
	tokens   *httptest.Server
}

func newBackends(t *testing.T, identity, captures, tokens http.Handler) *backends {
	t.Helper()
	if identity == nil {
		identity = http.NotFoundHandler()
	}
	if captures == nil {
		captures = http.NotFoundHandler()
	}
	if tokens == nil {
		tokens = okHandler()
	}
	b := &backends{
		identity: httptest.NewServer(identity),
		captures: httptest.NewServer(captures),
		tokens:   httptest.NewServer(tokens),
	}
	t.Cleanup(func() {
		b.identity.Close()
		b.captures.Close()
		b.tokens.Close()
	})
	return b
}

func newTestConsole(t *testing.T, b *backends, pageSize int) *Console {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "console.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	session := NewTokenStore()
	timeout := 5 * time.Second
	c := New(Options{
		Identity: remote.NewIdentityClient(b.identity.URL, timeout, session),
		Captures: remote.NewCaptureClient(b.captures.URL, timeout, session),
		Tokens:   remote.NewTokenClient(b.tokens.URL, timeout, session),
		Store:    store,
		Session:  session,
		PageSize: pageSize,
	})
	t.Cleanup(c.Close)
	return c
}

// writeEnv writes a success envelope with the given data payload.
func writeEnv(w http.ResponseWriter, data any) {
	writeEnvPage(w, data, nil)
}

func writeEnvPage(w http.ResponseWriter, data any, pagination *remote.Pagination) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":    true,
		"data":       data,
		"pagination": pagination,
	})
}

func writeEnvError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}

// okHandler answers every request with an empty success envelope.
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnv(w, nil)
	})
}
