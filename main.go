package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/canopyops/canopy/internal/api"
	"github.com/canopyops/canopy/internal/auth"
	"github.com/canopyops/canopy/internal/cache"
	"github.com/canopyops/canopy/internal/config"
	"github.com/canopyops/canopy/internal/console"
	consolemcp "github.com/canopyops/canopy/internal/mcp"
	"github.com/canopyops/canopy/internal/remote"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "version":
		fmt.Printf("canopy %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`canopy — tree capture operator console

Usage:
  canopy serve [--config config.toml] [--addr :8090]
  canopy mcp [--config config.toml] [--username u --password p]
  canopy version
  canopy help

Commands:
  serve     Start the console HTTP server
  mcp       Serve the console tools over MCP stdio
  version   Print version
  help      Show this help`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	c, store, err := buildConsole(cfg)
	if err != nil {
		log.Fatalf("starting console: %v", err)
	}
	defer c.Close()
	defer store.Close()

	a := auth.New(cfg.Auth.SessionSecret, cfg.Auth.TokenExpiryMin)
	apiHandler := api.New(c, store, a)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	log.Printf("canopy %s listening on %s", version, cfg.Server.Addr)
	log.Printf("cache: %s", cfg.Cache.Path)
	log.Printf("identity: %s", cfg.Services.IdentityURL)
	log.Printf("captures: %s", cfg.Services.CaptureURL)
	log.Printf("tokens: %s", cfg.Services.TokenURL)

	if err := http.ListenAndServe(cfg.Server.Addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	username := fs.String("username", "", "operator username (overrides config)")
	password := fs.String("password", "", "operator password (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if *username != "" {
		cfg.MCP.Username = *username
	}
	if *password != "" {
		cfg.MCP.Password = *password
	}

	c, store, err := buildConsole(cfg)
	if err != nil {
		log.Fatalf("starting console: %v", err)
	}
	defer c.Close()
	defer store.Close()

	if err := consolemcp.Bootstrap(context.Background(), c, cfg.MCP.Username, cfg.MCP.Password); err != nil {
		log.Fatalf("establishing operator session: %v", err)
	}

	srv := consolemcp.NewServer(c)
	if err := server.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func buildConsole(cfg *config.Config) (*console.Console, *cache.Store, error) {
	store, err := cache.Open(cfg.Cache.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache: %w", err)
	}

	session := console.NewTokenStore()
	timeout := cfg.ServiceTimeout()

	c := console.New(console.Options{
		Identity:        remote.NewIdentityClient(cfg.Services.IdentityURL, timeout, session),
		Captures:        remote.NewCaptureClient(cfg.Services.CaptureURL, timeout, session),
		Tokens:          remote.NewTokenClient(cfg.Services.TokenURL, timeout, session),
		Store:           store,
		Session:         session,
		PageSize:        cfg.Console.PageSize,
		SearchDebounce:  cfg.SearchDebounce(),
		PlanterDebounce: cfg.PlanterDebounce(),
	})
	return c, store, nil
}
