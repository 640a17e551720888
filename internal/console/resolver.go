package console

import (
	"context"
	"log/slog"
	"strings"

	"github.com/canopyops/canopy/internal/tree"
)

// resolvePlanterNames looks up every distinct ledger id whose display
// name is not yet cached, all lookups in flight at once, and applies
// the batch atomically after the last one settles. Individual failures
// are dropped without failing the batch; the cache is rewritten only
// when something actually resolved. Results arriving after the console
// is torn down or after a newer load are discarded.
func (c *Console) resolvePlanterNames(ctx context.Context, gen int) {
	cached := c.store.PlanterNames()

	c.mu.RLock()
	seen := make(map[string]struct{})
	var missing []string
	for i := range c.trees {
		id := c.trees[i].LedgerID
		if id == "" {
			continue
		}
		if _, ok := cached[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return
	}

	type result struct {
		ledgerID string
		name     string
	}
	ch := make(chan result, len(missing))
	for _, id := range missing {
		go func(ledgerID string) {
			user, err := c.identity.GetUser(ctx, ledgerID)
			if err != nil || user == nil {
				ch <- result{}
				return
			}
			ch <- result{ledgerID: ledgerID, name: user.DisplayName()}
		}(id)
	}

	resolved := make(map[string]string)
	for range missing {
		r := <-ch
		if r.ledgerID != "" && r.name != "" {
			resolved[r.ledgerID] = r.name
		}
	}
	if len(resolved) == 0 {
		return
	}

	if err := c.store.PutPlanterNames(resolved); err != nil {
		slog.Error("persisting planter names", "error", err)
	}

	if ctx.Err() != nil {
		return
	}

	for id, name := range resolved {
		cached[id] = name
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	applyPlanterNames(c.trees, cached)
}

// applyPlanterNames patches resolved display names into trees that
// never got a proper label: only "Unknown" trees and trees labeled with
// their own ledger id are touched. A richer label from the raw record
// is never overwritten by a background resolution.
func applyPlanterNames(trees []tree.Tree, names map[string]string) {
	for i := range trees {
		t := &trees[i]
		if t.LedgerID == "" {
			continue
		}
		name, ok := names[t.LedgerID]
		if !ok || name == "" {
			continue
		}
		if t.Planter != "Unknown" && t.Planter != t.LedgerID {
			continue
		}
		t.Planter = name
		t.PlanterKey = strings.ToLower(name)
	}
}
