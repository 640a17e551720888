package console

import (
	"sort"
	"strings"
	"time"

	"github.com/canopyops/canopy/internal/tree"
)

// Stats are the dashboard summary counts, one pass over the Tree set.
type Stats struct {
	TotalTrees   int `json:"totalTrees"`
	MintedTokens int `json:"mintedTokens"`
	Verified     int `json:"verified"`
	Pending      int `json:"pending"`
	Rejected     int `json:"rejected"`
}

func (c *Console) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s Stats
	for i := range c.trees {
		s.TotalTrees++
		if c.trees[i].MintedToken {
			s.MintedTokens++
		}
		switch c.trees[i].Status {
		case tree.StatusVerified:
			s.Verified++
		case tree.StatusPending:
			s.Pending++
		case tree.StatusRejected:
			s.Rejected++
		}
	}
	return s
}

// FilterTrees returns the trees passing the status filter ("all" or a
// concrete status) AND the case-insensitive search text, matched as a
// substring of species, planter label, or tree id.
func (c *Console) FilterTrees(status, query string) []tree.Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return filterTrees(c.trees, status, query)
}

func filterTrees(trees []tree.Tree, status, query string) []tree.Tree {
	if status == "" {
		status = "all"
	}
	query = strings.ToLower(query)

	out := []tree.Tree{}
	for i := range trees {
		t := &trees[i]
		if status != "all" && string(t.Status) != status {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Species), query) &&
			!strings.Contains(strings.ToLower(t.Planter), query) &&
			!strings.Contains(strings.ToLower(t.TreeID), query) {
			continue
		}
		out = append(out, *t)
	}
	return out
}

// RecentTree is the id+status pair shown in a profile's recent list.
type RecentTree struct {
	TreeID string      `json:"treeId"`
	Status tree.Status `json:"status"`
}

// Profile aggregates every tree submitted under one planter key. It is
// rebuilt from scratch on each read, never incrementally patched.
type Profile struct {
	Planter        string       `json:"planter"`
	PlanterKey     string       `json:"planterKey"`
	Total          int          `json:"total"`
	Verified       int          `json:"verified"`
	Pending        int          `json:"pending"`
	Rejected       int          `json:"rejected"`
	LatestActivity time.Time    `json:"latestActivity"`
	RecentTrees    []RecentTree `json:"recentTrees"`
	Trees          []tree.Tree  `json:"trees"`
}

// Profiles groups the Tree set by planter key. Within each profile the
// trees are newest-first and recentTrees keeps the three most recent;
// the list itself is ordered by planter label, case-insensitively.
func (c *Console) Profiles() []Profile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return buildProfiles(c.trees)
}

func buildProfiles(trees []tree.Tree) []Profile {
	byKey := make(map[string]*Profile)
	var order []string

	for i := range trees {
		t := &trees[i]
		key := t.PlanterKey
		if key == "" {
			key = strings.ToLower(t.Planter)
		}
		p, ok := byKey[key]
		if !ok {
			p = &Profile{Planter: t.Planter, PlanterKey: key}
			byKey[key] = p
			order = append(order, key)
		}
		p.Total++
		switch t.Status {
		case tree.StatusVerified:
			p.Verified++
		case tree.StatusPending:
			p.Pending++
		case tree.StatusRejected:
			p.Rejected++
		}
		p.Trees = append(p.Trees, *t)
	}

	profiles := make([]Profile, 0, len(byKey))
	for _, key := range order {
		p := byKey[key]
		sort.SliceStable(p.Trees, func(i, j int) bool {
			return p.Trees[i].Timestamp.After(p.Trees[j].Timestamp)
		})
		p.LatestActivity = p.Trees[0].Timestamp
		n := len(p.Trees)
		if n > 3 {
			n = 3
		}
		p.RecentTrees = make([]RecentTree, 0, n)
		for _, t := range p.Trees[:n] {
			p.RecentTrees = append(p.RecentTrees, RecentTree{TreeID: t.TreeID, Status: t.Status})
		}
		profiles = append(profiles, *p)
	}

	sort.SliceStable(profiles, func(i, j int) bool {
		return strings.ToLower(profiles[i].Planter) < strings.ToLower(profiles[j].Planter)
	})
	return profiles
}

// PlanterMatches filters the profiles by a label/key substring; an
// empty query returns all profiles.
func (c *Console) PlanterMatches(query string) []Profile {
	profiles := c.Profiles()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return profiles
	}
	out := []Profile{}
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Planter), query) ||
			strings.Contains(p.PlanterKey, query) {
			out = append(out, p)
		}
	}
	return out
}

// Profile returns one profile by its planter key.
func (c *Console) Profile(key string) (Profile, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range c.Profiles() {
		if p.PlanterKey == key {
			return p, true
		}
	}
	return Profile{}, false
}

// LookupProfile resolves a planter by name: an exact case-insensitive
// label match wins, else the first substring match. No match reports
// false, leaving the caller's current view unchanged.
func (c *Console) LookupProfile(query string) (Profile, bool) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return Profile{}, false
	}
	profiles := c.Profiles()
	for _, p := range profiles {
		if strings.ToLower(p.Planter) == query {
			return p, true
		}
	}
	for _, p := range profiles {
		if strings.Contains(strings.ToLower(p.Planter), query) {
			return p, true
		}
	}
	return Profile{}, false
}

// View is the settled reactive view: the filtered Tree subset and the
// planter matches under the current (debounced) parameters.
type View struct {
	FilterStatus string      `json:"filterStatus"`
	SearchQuery  string      `json:"searchQuery"`
	PlanterQuery string      `json:"planterQuery"`
	Trees        []tree.Tree `json:"trees"`
	Planters     []Profile   `json:"planters"`
}

// View recomputes the aggregate views from the current Tree set and the
// settled input parameters. There are no timers in here — debouncing
// happens on the input side only.
func (c *Console) View() View {
	c.mu.RLock()
	status := c.filterStatus
	search := c.searchQuery
	planter := c.planterQuery
	trees := filterTrees(c.trees, status, search)
	c.mu.RUnlock()

	return View{
		FilterStatus: status,
		SearchQuery:  search,
		PlanterQuery: planter,
		Trees:        trees,
		Planters:     c.PlanterMatches(planter),
	}
}
