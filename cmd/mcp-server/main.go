package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/mcpkit/mcp-server/authhook"
	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/examples"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/mcpkit/mcp-server/sidecar"
	"github.com/mcpkit/mcp-server/transport"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	defaultServerName    = "MCP Server"
	defaultServerVersion = "1.0.0"
	defaultHTTPAddr      = ":8080"
)

// Config is the server's command-line and environment surface, grounded on
// the teacher's go-arg Config struct: every field doubles as an env var
// under the MCP_ prefix.
type Config struct {
	TransportType  string        `arg:"--transport,env:MCP_TRANSPORT" default:"stdio" help:"Transport type (stdio|http)"`
	HTTPAddr       string        `arg:"--addr,env:MCP_ADDR" default:":8080" help:"HTTP listen address"`
	ServerName     string        `arg:"--name,env:MCP_SERVER_NAME" default:"MCP Server" help:"Server name"`
	ServerVersion  string        `arg:"--version,env:MCP_SERVER_VERSION" default:"1.0.0" help:"Server version"`
	RequestTimeout time.Duration `arg:"--request-timeout,env:MCP_REQUEST_TIMEOUT" default:"30s" help:"Request timeout"`
	LogLevel       string        `arg:"--log-level,env:MCP_LOG_LEVEL" default:"info" help:"Log level (debug|info|warn|error)"`
	LogJSON        bool          `arg:"--log-json,env:MCP_LOG_JSON" help:"Output logs in JSON format"`
	SidecarFile    string        `arg:"--sidecar,env:MCP_SIDECAR_FILE" help:"Optional side-car YAML file listing additional tools/resources/prompts"`
	APIKey         string        `arg:"--api-key,env:MCP_API_KEY" help:"If set, gate the HTTP transport behind this X-API-Key value"`
}

func (Config) Description() string {
	return `MCP Server - A Model Context Protocol server implementation

This application provides a sample MCP server exercising tools, resources,
and prompts through the Model Context Protocol (MCP). It supports both
stdio and HTTP transports for integration with various MCP clients.

Configuration can be provided via command line arguments or environment
variables. Every environment variable uses the prefix "MCP_" (for example
MCP_TRANSPORT, MCP_ADDR); --help lists the variable for each option.

Examples:
  # Run with stdio transport (default)
  mcp-server

  # Run with HTTP transport on a custom address
  mcp-server --transport http --addr :3000

  # Load additional handlers from a side-car registry file
  mcp-server --sidecar ./handlers.yaml`
}

func (Config) Version() string {
	return "mcp-server 1.0.0"
}

func (c *Config) Validate() error {
	switch c.TransportType {
	case transportStdio, transportHTTP:
	default:
		return fmt.Errorf("invalid transport type: %s (must be '%s' or '%s')", c.TransportType, transportStdio, transportHTTP)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout: %v (must be positive)", c.RequestTimeout)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.LogLevel)
	}

	return nil
}

func parseArgs() (*Config, error) {
	var cfg Config

	parser, err := arg.NewParser(arg.Config{Program: "mcp-server"}, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create argument parser: %w", err)
	}

	if err := parser.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func main() {
	cfg, err := parseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// buildRegistry wires the demo examples package in explicitly
// (Design Notes §9 decision 1: DiscoverExplicit is the primary discovery
// path) and layers an optional side-car file of additional handlers on
// top (decision 1's third option) when --sidecar names one.
func buildRegistry(cfg *Config, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)

	if _, err := reg.DiscoverExplicit(
		examples.CalculatorTool{},
		examples.CounterTool{},
		examples.ReadmeResource{},
		examples.GreetingPrompt{},
	); err != nil {
		return nil, fmt.Errorf("failed to register built-in examples: %w", err)
	}

	if cfg.SidecarFile != "" {
		factory := sidecar.Factory{
			"calculator": examples.CalculatorTool{},
			"counter":    examples.CounterTool{},
			"readme":     examples.ReadmeResource{},
			"greeting":   examples.GreetingPrompt{},
		}
		if _, err := sidecar.LoadSidecar(reg, factory, cfg.SidecarFile); err != nil {
			return nil, fmt.Errorf("failed to load sidecar file: %w", err)
		}
	}

	return reg, nil
}

func run(cfg *Config) error {
	logger := newLogger(cfg.LogLevel, cfg.LogJSON)

	reg, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := engine.New(cfg.ServerName, cfg.ServerVersion, reg,
		engine.WithLogger(logger),
		engine.WithRequestTimeout(cfg.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	tp, err := createTransport(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	return tp.Start(ctx, srv)
}

func createTransport(cfg *Config, logger *slog.Logger) (transport.Transport, error) {
	switch strings.ToLower(cfg.TransportType) {
	case transportStdio:
		return transport.NewStdio(), nil
	case transportHTTP:
		opts := []transport.HTTPOption{transport.WithHTTPLogger(logger)}
		if cfg.APIKey != "" {
			validator := authhook.NewAPIKeyValidator(map[string]string{"default": cfg.APIKey})
			opts = append(opts, transport.WithAuth(validator, authhook.HeaderAPIKey))
		}
		return transport.NewHTTP(cfg.HTTPAddr, opts...), nil
	default:
		return nil, fmt.Errorf("invalid transport type: %s (must be '%s' or '%s')", cfg.TransportType, transportStdio, transportHTTP)
	}
}

func newLogger(level string, json bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
