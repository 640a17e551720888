package console

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/canopyops/canopy/internal/remote"
	"github.com/canopyops/canopy/internal/tree"
	"golang.org/x/sync/errgroup"
)

// StartLoad kicks a session load on the console's background context
// and returns immediately. A load already in flight is left alone.
func (c *Console) StartLoad() {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return
	}
	c.loading = true
	c.loadErr = ""
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	go func() {
		if err := c.load(c.bg, gen); err != nil {
			slog.Error("session load failed", "error", err)
		}
	}()
}

// Load runs a session load synchronously. An expired backend session is
// refreshed once and the load retried.
func (c *Console) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrLoadInProgress
	}
	c.loading = true
	c.loadErr = ""
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	err := c.load(ctx, gen)
	if errors.Is(err, remote.ErrUnauthorized) && c.session.RefreshToken() != "" {
		if rerr := c.RefreshSession(ctx); rerr == nil {
			c.mu.Lock()
			c.loading = true
			c.loadErr = ""
			c.gen++
			gen = c.gen
			c.mu.Unlock()
			err = c.load(ctx, gen)
		}
	}
	return err
}

// load is the session load proper: full pagination in parallel with a
// best-effort metrics fetch, then normalization and cache merge, then
// fire-and-forget name resolution. A failed load keeps the previous
// Tree set and records the error; results are discarded if the context
// died or a newer load superseded this one.
func (c *Console) load(ctx context.Context, gen int) error {
	var (
		records []remote.Capture
		metrics json.RawMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := c.fetchAllCaptures(gctx)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	g.Go(func() error {
		// Metrics are decoration; a failure leaves them absent.
		m, err := c.tokensvc.DashboardMetrics(gctx)
		if err == nil {
			metrics = m
		}
		return nil
	})
	err := g.Wait()

	if ctx.Err() != nil {
		// Consumer went away mid-load; discard everything.
		c.finishLoad(gen, func() {})
		return ctx.Err()
	}
	if err != nil {
		c.finishLoad(gen, func() {
			c.loadErr = err.Error()
		})
		return err
	}

	now := time.Now().UTC()
	minted := c.store.MintedIDs()
	names := c.store.PlanterNames()

	trees := make([]tree.Tree, 0, len(records))
	for i := range records {
		trees = append(trees, tree.Normalize(&records[i], minted, now))
	}
	applyPlanterNames(trees, names)

	applied := false
	c.finishLoad(gen, func() {
		c.trees = trees
		c.metrics = metrics
		c.loadedAt = now
		applied = true
	})
	if applied {
		go c.resolvePlanterNames(ctx, gen)
	}
	return nil
}

// finishLoad applies a load outcome under the lock, unless a newer load
// has taken over in the meantime.
func (c *Console) finishLoad(gen int, apply func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.loading = false
	apply()
}
