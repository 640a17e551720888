package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/canopyops/canopy/internal/remote"
	"github.com/canopyops/canopy/internal/tree"
)

// ApplyDecision records a verification decision remotely, then patches
// the local tree. The remote call goes first: on failure the Tree set
// is left exactly as it was and the error surfaces to the caller with
// no automatic retry. The minted flag is never touched here.
func (c *Console) ApplyDecision(ctx context.Context, treeID string, status tree.Status) error {
	if status != tree.StatusVerified && status != tree.StatusRejected {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, ok := c.Tree(treeID); !ok {
		return ErrTreeNotFound
	}

	approved := status == tree.StatusVerified
	if err := c.captures.Approve(ctx, treeID, approved); err != nil {
		return err
	}

	now := time.Now().UTC()
	c.mu.Lock()
	operator := c.operator
	for i := range c.trees {
		if c.trees[i].TreeID != treeID {
			continue
		}
		t := &c.trees[i]
		t.Status = status
		t.LastModified = now
		vd := now
		t.VerificationDate = &vd
		if operator != "" {
			t.VerifiedBy = operator
		} else if t.VerifiedBy == "" {
			t.VerifiedBy = "system"
		}
		break
	}
	c.mu.Unlock()

	c.store.AppendAudit("decision", treeID, operatorOrSystem(operator), string(status))
	return nil
}

// Mint issues a token for a verified tree. Already-minted trees are a
// no-op; unverified trees fail locally without any remote call. A
// backend "token already exists" answer is reconciled exactly like a
// success: the tree really is minted, whoever got there first.
func (c *Console) Mint(ctx context.Context, treeID string) error {
	t, ok := c.Tree(treeID)
	if !ok {
		return ErrTreeNotFound
	}
	if t.MintedToken {
		return nil
	}
	if t.Status != tree.StatusVerified {
		return ErrNotVerified
	}

	planterID := t.Planter
	if t.Raw != nil && t.Raw.UserID != "" {
		planterID = t.Raw.UserID
	}

	err := c.tokensvc.Issue(ctx, remote.IssueRequest{
		CaptureID:   t.TreeID,
		PlanterID:   planterID,
		TreeSpecies: t.Species,
	})
	if err != nil && !errors.Is(err, remote.ErrTokenExists) {
		return err
	}

	now := time.Now().UTC()
	c.mu.Lock()
	operator := c.operator
	for i := range c.trees {
		if c.trees[i].TreeID == treeID {
			c.trees[i].MintedToken = true
			c.trees[i].LastModified = now
			break
		}
	}
	c.mu.Unlock()

	if serr := c.store.AddMinted(treeID); serr != nil {
		slog.Error("recording minted id", "tree_id", treeID, "error", serr)
	}
	detail := "minted"
	if err != nil {
		detail = "reconciled existing token"
	}
	c.store.AppendAudit("mint", treeID, operatorOrSystem(operator), detail)

	go c.refreshMetrics(c.bg)
	return nil
}

// refreshMetrics re-fetches the token dashboard. Best effort: a failure
// clears the snapshot rather than erroring anything.
func (c *Console) refreshMetrics(ctx context.Context) {
	m, err := c.tokensvc.DashboardMetrics(ctx)
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.metrics = nil
		return
	}
	c.metrics = m
}

// Lookup resolves a tree by id or blockchain transaction hash. Local
// trees win; otherwise the capture service is asked directly and the
// record normalized for display.
func (c *Console) Lookup(ctx context.Context, query string) (tree.Tree, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return tree.Tree{}, ErrTreeNotFound
	}

	c.mu.RLock()
	for i := range c.trees {
		if c.trees[i].TreeID == query || (c.trees[i].BlockchainHash != "" && c.trees[i].BlockchainHash == query) {
			t := c.trees[i]
			c.mu.RUnlock()
			return t, nil
		}
	}
	c.mu.RUnlock()

	rec, err := c.captures.Get(ctx, query)
	if err != nil {
		return tree.Tree{}, err
	}
	return tree.Normalize(rec, c.store.MintedIDs(), time.Now().UTC()), nil
}

func operatorOrSystem(operator string) string {
	if operator == "" {
		return "system"
	}
	return operator
}
