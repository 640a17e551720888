// Package mcp registers the console tools on an MCP server so agent
// clients can inspect and act on the Tree set over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/canopyops/canopy/internal/console"
	"github.com/canopyops/canopy/internal/tree"
)

// Bootstrap establishes the backend session the tools depend on: the
// operator login (stdio has no login endpoint) followed by the initial
// session load, so the Tree set is populated before the first tool
// call and mutations carry a valid bearer token.
func Bootstrap(ctx context.Context, c *console.Console, username, password string) error {
	if username == "" || password == "" {
		return errors.New("operator credentials required")
	}
	if _, err := c.Login(ctx, username, password); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	if err := c.Load(ctx); err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	return nil
}

// NewServer creates an MCPServer with all console tools registered.
func NewServer(c *console.Console) *server.MCPServer {
	srv := server.NewMCPServer(
		"canopy",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	registerListTrees(srv, c)
	registerGetTree(srv, c)
	registerTreeStats(srv, c)
	registerPlanterProfile(srv, c)
	registerApproveCapture(srv, c)
	registerMintToken(srv, c)

	return srv
}

// --- list_trees ---

func registerListTrees(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]string{"type": "string", "description": "Filter: pending, verified, rejected, or all"},
			"query":  map[string]string{"type": "string", "description": "Substring match on species, planter, or tree id"},
			"limit":  map[string]any{"type": "integer", "description": "Max results", "default": 50},
		},
	})
	tool := mcp.NewToolWithRawSchema("list_trees", "List trees in the current session, optionally filtered by status and search text", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		trees := c.FilterTrees(stringArg(args, "status"), stringArg(args, "query"))
		limit := intArg(args, "limit", 50)
		if limit > 0 && len(trees) > limit {
			trees = trees[:limit]
		}
		return jsonResult(map[string]any{"trees": trees, "count": len(trees)})
	})
}

// --- get_tree ---

func registerGetTree(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tree_id": map[string]string{"type": "string", "description": "Tree id or blockchain transaction hash"},
		},
		"required": []string{"tree_id"},
	})
	tool := mcp.NewToolWithRawSchema("get_tree", "Retrieve one tree by id or blockchain hash", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		t, err := c.Lookup(ctx, stringArg(req.GetArguments(), "tree_id"))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(t)
	})
}

// --- tree_stats ---

func registerTreeStats(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	})
	tool := mcp.NewToolWithRawSchema("tree_stats", "Dashboard summary counts for the current Tree set", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{
			"stats": c.Stats(),
			"load":  c.LoadState(),
		})
	})
}

// --- planter_profile ---

func registerPlanterProfile(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"planter": map[string]string{"type": "string", "description": "Planter name (exact match wins, else first substring match)"},
		},
		"required": []string{"planter"},
	})
	tool := mcp.NewToolWithRawSchema("planter_profile", "Aggregate profile for one planter: counts, latest activity, recent trees", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		p, ok := c.LookupProfile(stringArg(req.GetArguments(), "planter"))
		if !ok {
			return mcp.NewToolResultError("planter not found"), nil
		}
		return jsonResult(p)
	})
}

// --- approve_capture ---

func registerApproveCapture(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tree_id": map[string]string{"type": "string", "description": "Tree to decide on"},
			"status":  map[string]any{"type": "string", "description": "Decision", "enum": []string{"verified", "rejected"}},
		},
		"required": []string{"tree_id", "status"},
	})
	tool := mcp.NewToolWithRawSchema("approve_capture", "Record a verification decision for a tree", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		id := stringArg(args, "tree_id")
		if err := c.ApplyDecision(ctx, id, tree.Status(stringArg(args, "status"))); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t, _ := c.Tree(id)
		return jsonResult(t)
	})
}

// --- mint_token ---

func registerMintToken(srv *server.MCPServer, c *console.Console) {
	schema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tree_id": map[string]string{"type": "string", "description": "Verified tree to mint a token for"},
		},
		"required": []string{"tree_id"},
	})
	tool := mcp.NewToolWithRawSchema("mint_token", "Issue a token for a verified tree (no-op if already minted)", schema)

	srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := stringArg(req.GetArguments(), "tree_id")
		if err := c.Mint(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		t, _ := c.Tree(id)
		return jsonResult(t)
	})
}

// --- helpers ---

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return def
	}
}
