package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/canopyops/canopy/internal/auth"
	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/console"
	"github.com/canopyops/canopy/internal/remote"
	"github.com/canopyops/canopy/internal/tree"
)

// maxBodySize is the maximum HTTP body size for mutation endpoints.
const maxBodySize = 64 * 1024 // 64KB

type API struct {
	console *console.Console
	store   *cache.Store
	auth    *auth.Auth
}

func New(c *console.Console, s *cache.Store, a *auth.Auth) *API {
	return &API{console: c, store: s, auth: a}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	// Session
	mux.HandleFunc("POST /api/login", a.handleLogin)
	mux.HandleFunc("POST /api/logout", a.handleLogout)
	mux.HandleFunc("GET /api/session", a.handleSession)

	// Tree set
	mux.HandleFunc("POST /api/reload", a.handleReload)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.HandleFunc("GET /api/trees", a.handleListTrees)
	mux.HandleFunc("GET /api/trees/{id}", a.handleGetTree)

	// Planters
	mux.HandleFunc("GET /api/planters", a.handleListPlanters)
	mux.HandleFunc("GET /api/planters/lookup", a.handleLookupPlanter)

	// Mutations
	mux.HandleFunc("POST /api/trees/{id}/decision", a.handleDecision)
	mux.HandleFunc("POST /api/trees/{id}/mint", a.handleMint)

	// Ledger query
	mux.HandleFunc("GET /api/query", a.handleQuery)

	// Reactive view
	mux.HandleFunc("PUT /api/view", a.handleSetView)
	mux.HandleFunc("GET /api/view", a.handleGetView)

	// Audit trail
	mux.HandleFunc("GET /api/audit", a.handleAudit)
}

// --- Session ---

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, "username and password are required", http.StatusBadRequest)
		return
	}

	user, err := a.console.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, remote.ErrUnauthorized) {
			jsonError(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		slog.Error("login failed", "error", err)
		jsonError(w, "identity service unavailable", http.StatusBadGateway)
		return
	}

	token, err := a.auth.GenerateToken(user.Username, user.ID)
	if err != nil {
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}

	// The session is usable immediately; the Tree set fills in behind.
	a.console.StartLoad()

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": token,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	a.console.Logout(r.Context())
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"username": claims.Username,
		"load":     a.console.LoadState(),
	})
}

// --- Tree set ---

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	a.console.StartLoad()
	jsonResp(w, http.StatusAccepted, a.console.LoadState())
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"stats":   a.console.Stats(),
		"metrics": a.console.Metrics(),
		"load":    a.console.LoadState(),
	})
}

func (a *API) handleListTrees(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	query := r.URL.Query().Get("q")
	trees := a.console.FilterTrees(status, query)

	jsonResp(w, http.StatusOK, map[string]interface{}{
		"trees": trees,
		"count": len(trees),
	})
}

func (a *API) handleGetTree(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	t, ok := a.console.Tree(id)
	if !ok {
		jsonError(w, "tree not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, t)
}

// --- Planters ---

func (a *API) handleListPlanters(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	profiles := a.console.PlanterMatches(r.URL.Query().Get("q"))
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"planters": profiles,
		"count":    len(profiles),
	})
}

func (a *API) handleLookupPlanter(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	p, ok := a.console.LookupProfile(q)
	if !ok {
		jsonError(w, "planter not found", http.StatusNotFound)
		return
	}
	jsonResp(w, http.StatusOK, p)
}

// --- Mutations ---

func (a *API) handleDecision(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := a.console.ApplyDecision(r.Context(), id, tree.Status(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, console.ErrInvalidStatus):
			jsonError(w, "status must be 'verified' or 'rejected'", http.StatusBadRequest)
		case errors.Is(err, console.ErrTreeNotFound):
			jsonError(w, "tree not found", http.StatusNotFound)
		case errors.Is(err, remote.ErrUnauthorized):
			jsonError(w, "backend session expired", http.StatusUnauthorized)
		default:
			slog.Error("applying decision", "tree_id", id, "error", err)
			jsonError(w, "capture service error", http.StatusBadGateway)
		}
		return
	}

	t, _ := a.console.Tree(id)
	jsonResp(w, http.StatusOK, t)
}

func (a *API) handleMint(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id := r.PathValue("id")
	err := a.console.Mint(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, console.ErrTreeNotFound):
			jsonError(w, "tree not found", http.StatusNotFound)
		case errors.Is(err, console.ErrNotVerified):
			jsonError(w, "tree must be verified before minting", http.StatusConflict)
		case errors.Is(err, remote.ErrUnauthorized):
			jsonError(w, "backend session expired", http.StatusUnauthorized)
		default:
			slog.Error("minting token", "tree_id", id, "error", err)
			jsonError(w, "token service error", http.StatusBadGateway)
		}
		return
	}

	t, _ := a.console.Tree(id)
	jsonResp(w, http.StatusOK, t)
}

// --- Ledger query ---

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		jsonError(w, "q is required", http.StatusBadRequest)
		return
	}

	t, err := a.console.Lookup(r.Context(), q)
	if err != nil {
		switch {
		case errors.Is(err, console.ErrTreeNotFound), errors.Is(err, remote.ErrNotFound):
			jsonError(w, "no tree matches the query", http.StatusNotFound)
		default:
			slog.Error("ledger query", "query", q, "error", err)
			jsonError(w, "capture service error", http.StatusBadGateway)
		}
		return
	}
	jsonResp(w, http.StatusOK, t)
}

// --- Reactive view ---

// handleSetView feeds the view parameters. Search inputs settle after
// their quiet periods, so an immediate GET /api/view may still show the
// previous values.
func (a *API) handleSetView(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req struct {
		FilterStatus *string `json:"filterStatus"`
		SearchQuery  *string `json:"searchQuery"`
		PlanterQuery *string `json:"planterQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if req.FilterStatus != nil {
		a.console.SetFilterStatus(*req.FilterStatus)
	}
	if req.SearchQuery != nil {
		a.console.SetSearchQuery(*req.SearchQuery)
	}
	if req.PlanterQuery != nil {
		a.console.SetPlanterSearch(*req.PlanterQuery)
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleGetView(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jsonResp(w, http.StatusOK, a.console.View())
}

// --- Audit ---

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if a.auth.ExtractClaims(r) == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if l, err := strconv.Atoi(s); err == nil && l > 0 {
			limit = l
		}
	}
	entries := a.store.RecentAudit(limit)
	jsonResp(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// --- Helpers ---

func jsonResp(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
