// Package console is the reconciliation engine behind the operator
// dashboard. It pulls the complete capture set from the submission
// service, normalizes it into the canonical Tree shape, enriches it
// with cached planter names and confirmed mints, derives the aggregate
// views, and applies verification and mint decisions back through the
// backends.
//
// The Console owns all session state behind one mutex; every mutation
// is a single atomic swap, and stale background work (name resolution,
// a superseded load) is discarded via a generation check before apply.
package console

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/remote"
	"github.com/canopyops/canopy/internal/tree"
	"github.com/canopyops/canopy/pkg/debounce"
)

// Options wires the console's collaborators.
type Options struct {
	Identity *remote.IdentityClient
	Captures *remote.CaptureClient
	Tokens   *remote.TokenClient
	Store    *cache.Store
	Session  *TokenStore

	PageSize        int
	SearchDebounce  time.Duration
	PlanterDebounce time.Duration
}

// Console is the application-state container: the Tree set, the token
// metrics snapshot, the operator session, and the debounced view
// parameters.
type Console struct {
	identity *remote.IdentityClient
	captures *remote.CaptureClient
	tokensvc *remote.TokenClient
	store    *cache.Store
	session  *TokenStore
	pageSize int

	bg       context.Context
	cancelBg context.CancelFunc

	searchDeb  *debounce.Debouncer[string]
	planterDeb *debounce.Debouncer[string]

	mu           sync.RWMutex
	trees        []tree.Tree
	metrics      json.RawMessage
	loading      bool
	loadErr      string
	loadedAt     time.Time
	operator     string
	gen          int
	searchQuery  string
	planterQuery string
	filterStatus string
}

func New(opts Options) *Console {
	if opts.PageSize <= 0 {
		opts.PageSize = 200
	}
	bg, cancel := context.WithCancel(context.Background())
	c := &Console{
		identity:     opts.Identity,
		captures:     opts.Captures,
		tokensvc:     opts.Tokens,
		store:        opts.Store,
		session:      opts.Session,
		pageSize:     opts.PageSize,
		bg:           bg,
		cancelBg:     cancel,
		filterStatus: "all",
	}
	c.searchDeb = debounce.New(opts.SearchDebounce, func(q string) {
		c.mu.Lock()
		c.searchQuery = q
		c.mu.Unlock()
	})
	c.planterDeb = debounce.New(opts.PlanterDebounce, func(q string) {
		c.mu.Lock()
		c.planterQuery = q
		c.mu.Unlock()
	})
	return c
}

// Close tears the console down. In-flight background tasks notice the
// cancelled context and discard their results instead of applying them.
func (c *Console) Close() {
	c.cancelBg()
	c.searchDeb.Stop()
	c.planterDeb.Stop()
}

// --- Operator session ---

// Login authenticates the operator against the identity service, keeps
// the backend token pair, and remembers the operator for audit fields.
// The Tree set is not touched here; callers kick StartLoad afterwards.
func (c *Console) Login(ctx context.Context, username, password string) (*remote.User, error) {
	res, err := c.identity.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	c.session.Set(res.AccessToken, res.RefreshToken)
	c.mu.Lock()
	c.operator = res.User.Username
	c.mu.Unlock()
	user := res.User
	return &user, nil
}

// Logout invalidates the backend refresh token (errors ignored) and
// clears local session state. The Tree set survives so the view stays
// usable until the next login replaces it.
func (c *Console) Logout(ctx context.Context) {
	if rt := c.session.RefreshToken(); rt != "" {
		if err := c.identity.Logout(ctx, rt); err != nil {
			slog.Debug("backend logout failed", "error", err)
		}
	}
	c.session.Clear()
	c.mu.Lock()
	c.operator = ""
	c.mu.Unlock()
}

// RefreshSession exchanges the refresh token for a new pair.
func (c *Console) RefreshSession(ctx context.Context) error {
	rt := c.session.RefreshToken()
	if rt == "" {
		return ErrNotLoggedIn
	}
	res, err := c.identity.Refresh(ctx, rt)
	if err != nil {
		return err
	}
	c.session.Set(res.AccessToken, res.RefreshToken)
	return nil
}

// Operator returns the logged-in operator's username, or "".
func (c *Console) Operator() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.operator
}

// --- View parameters ---

// SetSearchQuery feeds the free-text search input. The value settles
// after the search quiet period; intermediate keystrokes are discarded.
func (c *Console) SetSearchQuery(q string) { c.searchDeb.Set(q) }

// SetPlanterSearch feeds the planter lookup input (its own, shorter
// quiet period, independent of the search timer).
func (c *Console) SetPlanterSearch(q string) { c.planterDeb.Set(q) }

// SetFilterStatus switches the status filter immediately.
func (c *Console) SetFilterStatus(status string) {
	if status == "" {
		status = "all"
	}
	c.mu.Lock()
	c.filterStatus = status
	c.mu.Unlock()
}

// --- Read accessors ---

// Trees returns a copy of the current Tree set.
func (c *Console) Trees() []tree.Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]tree.Tree, len(c.trees))
	copy(out, c.trees)
	return out
}

// Tree returns one tree by id.
func (c *Console) Tree(id string) (tree.Tree, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.trees {
		if c.trees[i].TreeID == id {
			return c.trees[i], true
		}
	}
	return tree.Tree{}, false
}

// Metrics returns the last token-service dashboard payload, or nil if
// the fetch failed or never ran.
func (c *Console) Metrics() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metrics
}

// LoadState describes the session load for the status endpoint.
type LoadState struct {
	Loading   bool      `json:"loading"`
	LoadError string    `json:"loadError,omitempty"`
	TreeCount int       `json:"treeCount"`
	LoadedAt  time.Time `json:"loadedAt,omitzero"`
}

func (c *Console) LoadState() LoadState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return LoadState{
		Loading:   c.loading,
		LoadError: c.loadErr,
		TreeCount: len(c.trees),
		LoadedAt:  c.loadedAt,
	}
}
