// Package engine implements the JSON-RPC request processor (C4): the
// initialize-before-use lifecycle gate, the method dispatch table, and
// streaming tool orchestration.
package engine

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/mcpkit/mcp-server/reqcontext"
)

// HandlerModule lets a caller pre-empt the registry-backed default
// behavior of the three list entries (tools/list, resources/list,
// prompts/list) without touching the registry itself (SPEC_FULL.md §4.4).
// The other dispatch table entries are always served from the registry.
// Each method is optional — a nil HandlerModule, or one that returns
// handled == false from a method, falls through to the registry-backed
// default.
type HandlerModule interface {
	ListTools(ctx context.Context) ([]registry.ToolEntry, bool, error)
	ListResources(ctx context.Context) ([]registry.ResourceEntry, bool, error)
	ListPrompts(ctx context.Context) ([]registry.PromptEntry, bool, error)
}

// sessionState is the per-client lifecycle gate: Design Notes §9 decision 2
// scopes `initialized`/`clientCapabilities` per reqcontext.ClientID rather
// than server-global, since a single engine instance commonly serves many
// independent HTTP/SSE clients. Stdio's one implicit client still behaves
// exactly like the server-global model the distilled spec describes.
type sessionState struct {
	mu                 sync.Mutex
	initialized        bool
	clientCapabilities map[string]any
}

// Server is the request engine: immutable configuration plus per-client
// lifecycle state, dispatching JSON-RPC requests to registry-resolved
// handlers.
type Server struct {
	registry *registry.Registry
	handlers HandlerModule
	info     mcp.ServerInfo
	logger   *slog.Logger
	config   *serverConfig

	sessions sync.Map // reqcontext.ClientID -> *sessionState

	idGen reqcontext.IDGenerator
}

type serverConfig struct {
	requestTimeout  time.Duration
	shutdownTimeout time.Duration
	logLevel        string
	logJSON         bool
	customLogger    *slog.Logger
	handlerModule   HandlerModule
}

// Option configures a Server at construction time.
type Option func(*serverConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *serverConfig) { cfg.customLogger = logger }
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(cfg *serverConfig) { cfg.requestTimeout = timeout }
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *serverConfig) { cfg.shutdownTimeout = timeout }
}

func WithLogLevel(level string) Option {
	return func(cfg *serverConfig) { cfg.logLevel = level }
}

func WithLogJSON(enabled bool) Option {
	return func(cfg *serverConfig) { cfg.logJSON = enabled }
}

// WithHandlerModule attaches an override for the default, registry-backed
// listing behavior.
func WithHandlerModule(h HandlerModule) Option {
	return func(cfg *serverConfig) { cfg.handlerModule = h }
}

// New creates a request engine bound to reg, using the options pattern
// generalized from the teacher's NewMCPServer constructor.
func New(name, version string, reg *registry.Registry, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("engine: registry cannot be nil")
	}

	cfg := &serverConfig{
		requestTimeout:  30 * time.Second,
		shutdownTimeout: 5 * time.Second,
		logLevel:        "info",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var logger *slog.Logger
	if cfg.customLogger != nil {
		logger = cfg.customLogger
	} else {
		logger = defaultLogger(cfg.logLevel, cfg.logJSON)
	}

	return &Server{
		registry: reg,
		handlers: cfg.handlerModule,
		logger:   logger,
		config:   cfg,
		info:     mcp.ServerInfo{Name: name, Version: version},
	}, nil
}

func (s *Server) sessionFor(id reqcontext.ClientID) *sessionState {
	v, _ := s.sessions.LoadOrStore(id, &sessionState{})
	return v.(*sessionState)
}

// Initialize handles the "initialize" method: stores the negotiated
// client capabilities for this client and flips its initialized gate.
func (s *Server) Initialize(ctx *reqcontext.RequestContext, clientCapabilities map[string]any) (mcp.InitializeResult, error) {
	sess := s.sessionFor(ctx.ClientID())
	sess.mu.Lock()
	sess.initialized = true
	sess.clientCapabilities = clientCapabilities
	sess.mu.Unlock()

	return mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		Capabilities: map[string]any{
			"resources": map[string]any{"listResources": map[string]bool{"dynamic": true}, "getResource": map[string]bool{"dynamic": true}},
			"prompts":   map[string]any{"listPrompts": map[string]bool{"dynamic": true}, "getPrompt": map[string]bool{"dynamic": true}},
			"tools":     map[string]any{"listTools": map[string]bool{"dynamic": true}, "executeTool": map[string]bool{"dynamic": true}},
		},
		ServerInfo: s.info,
	}, nil
}

// HandleRequest dispatches one JSON-RPC request and delivers the response
// (or error) through ctx.ConnectionHandle(). Notifications (requests with
// no id) are never responded to — per invariant, the caller should check
// req.IsNotification() before routing here if it wants to skip dispatch
// entirely for them, but HandleRequest also enforces this itself.
// A handler panic is recovered here and answered with -32603.
func (s *Server) HandleRequest(ctx *reqcontext.RequestContext, req mcp.Request) (err error) {
	if req.IsNotification() {
		s.logger.Debug("ignoring notification", "method", req.Method, "client", ctx.ClientID())
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "method", req.Method, "id", req.ID, "recovered", r)
			err = s.sendError(ctx, req.ID, mcp.ErrorCodeInternalError, "handler panicked", nil)
		}
	}()

	s.logger.Debug("dispatching request", "method", req.Method, "id", req.ID, "client", ctx.ClientID())

	method := stripMCPPrefix(req.Method)

	if method != "initialize" && method != "ping" {
		sess := s.sessionFor(ctx.ClientID())
		sess.mu.Lock()
		initialized := sess.initialized
		sess.mu.Unlock()
		if !initialized {
			return s.sendError(ctx, req.ID, mcp.ErrorCodeNotInitialized, "server not initialized for this client", nil)
		}
	}

	switch method {
	case "initialize":
		caps, _ := req.Params.(map[string]any)
		result, err := s.Initialize(ctx, caps)
		if err != nil {
			return s.sendError(ctx, req.ID, mcp.ErrorCodeInternalError, "failed to initialize", err.Error())
		}
		return s.sendResponse(ctx, req.ID, result)
	case "ping":
		return s.sendResponse(ctx, req.ID, map[string]any{})
	case "tools/list":
		return s.handleToolsList(ctx, req.ID)
	case "tools/execute", "tools/call":
		return s.handleToolsExecute(ctx, req)
	case "resources/list":
		return s.handleResourcesList(ctx, req.ID)
	case "resources/get", "resources/read":
		return s.handleResourcesGet(ctx, req)
	case "prompts/list":
		return s.handlePromptsList(ctx, req.ID)
	case "prompts/get":
		return s.handlePromptsGet(ctx, req)
	default:
		s.logger.Warn("unknown method requested", "method", req.Method, "id", req.ID)
		return s.sendError(ctx, req.ID, mcp.ErrorCodeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
	}
}

func stripMCPPrefix(method string) string {
	const prefix = "mcp/"
	if len(method) > len(prefix) && method[:len(prefix)] == prefix {
		return method[len(prefix):]
	}
	return method
}

func (s *Server) handleToolsList(ctx *reqcontext.RequestContext, id any) error {
	if s.handlers != nil {
		if entries, handled, err := s.handlers.ListTools(ctx); handled {
			if err != nil {
				return s.sendError(ctx, id, mcp.ErrorCodeInternalError, "failed to list tools", err.Error())
			}
			return s.sendResponse(ctx, id, map[string]any{"tools": toolsToWire(entries)})
		}
	}
	entries := s.registry.Tools()
	return s.sendResponse(ctx, id, map[string]any{"tools": toolsToWire(entries)})
}

func (s *Server) handleResourcesList(ctx *reqcontext.RequestContext, id any) error {
	if s.handlers != nil {
		if entries, handled, err := s.handlers.ListResources(ctx); handled {
			if err != nil {
				return s.sendError(ctx, id, mcp.ErrorCodeInternalError, "failed to list resources", err.Error())
			}
			return s.sendResponse(ctx, id, map[string]any{"resources": resourcesToWire(entries)})
		}
	}
	entries := s.registry.Resources()
	return s.sendResponse(ctx, id, map[string]any{"resources": resourcesToWire(entries)})
}

func (s *Server) handlePromptsList(ctx *reqcontext.RequestContext, id any) error {
	if s.handlers != nil {
		if entries, handled, err := s.handlers.ListPrompts(ctx); handled {
			if err != nil {
				return s.sendError(ctx, id, mcp.ErrorCodeInternalError, "failed to list prompts", err.Error())
			}
			return s.sendResponse(ctx, id, map[string]any{"prompts": promptsToWire(entries)})
		}
	}
	entries := s.registry.Prompts()
	return s.sendResponse(ctx, id, map[string]any{"prompts": promptsToWire(entries)})
}

func (s *Server) handleToolsExecute(ctx *reqcontext.RequestContext, req mcp.Request) error {
	name, args, err := parseNameAndArgs(req.Params)
	if err != nil {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, "invalid tool call parameters", err.Error())
	}

	entry, ok := s.registry.Tool(name)
	if !ok {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, fmt.Sprintf("unknown tool %q", name), nil)
	}

	if ctx.Streaming() {
		if st, ok := entry.Handler.(mcp.StreamingTool); ok {
			if err := s.sendResponse(ctx, req.ID, map[string]any{"status": "streaming_started"}); err != nil {
				return err
			}
			s.dispatchStreaming(ctx, req.ID, st, args)
			return nil
		}
	}

	result, err := entry.Handler.Handle(ctx, args)
	if err != nil {
		return s.sendHandlerError(ctx, req.ID, err)
	}
	return s.sendResponse(ctx, req.ID, result)
}

// dispatchStreaming spawns the detached emitter goroutine per SPEC_FULL.md
// §4.4: emit writes directly through ctx.ConnectionHandle(), never back
// through the engine's own HandleRequest path.
func (s *Server) dispatchStreaming(ctx *reqcontext.RequestContext, id any, st mcp.StreamingTool, args map[string]any) {
	conn := ctx.ConnectionHandle()
	emit := func(progress any) {
		if conn == nil {
			return
		}
		_ = conn.Send(mcp.Notification{
			JSONRPC: mcp.JSONRPCVersion,
			Method:  "progress",
			Params:  progress,
		})
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("streaming tool panicked", "id", id, "recovered", r)
				if conn != nil {
					_ = conn.Send(mcp.Response{
						JSONRPC: mcp.JSONRPCVersion,
						ID:      id,
						Error:   &mcp.ErrorResponse{Code: mcp.ErrorCodeInternalError, Message: "handler panicked"},
					})
				}
			}
		}()

		result, err := st.HandleStream(ctx, args, emit)
		if conn == nil {
			return
		}
		if err != nil {
			_ = conn.Send(errorToResponse(id, err))
			return
		}
		_ = conn.Send(mcp.Response{
			JSONRPC: mcp.JSONRPCVersion,
			ID:      id,
			Result:  map[string]any{"status": "complete", "data": result},
		})
	}()
}

func (s *Server) handleResourcesGet(ctx *reqcontext.RequestContext, req mcp.Request) error {
	uri, err := parseURI(req.Params)
	if err != nil {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, "invalid resource read parameters", err.Error())
	}

	entry, ok := s.registry.Resource(uri)
	if !ok {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, fmt.Sprintf("unknown resource %q", uri), nil)
	}

	result, err := entry.Handler.Read(ctx, paramsFromRequest(req.Params))
	if err != nil {
		return s.sendHandlerError(ctx, req.ID, err)
	}
	return s.sendResponse(ctx, req.ID, result)
}

func (s *Server) handlePromptsGet(ctx *reqcontext.RequestContext, req mcp.Request) error {
	name, args, err := parseNameAndArgs(req.Params)
	if err != nil {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, "invalid prompt parameters", err.Error())
	}

	entry, ok := s.registry.Prompt(name)
	if !ok {
		return s.sendError(ctx, req.ID, mcp.ErrorCodeInvalidParams, fmt.Sprintf("unknown prompt %q", name), nil)
	}

	result, err := entry.Handler.Get(ctx, args)
	if err != nil {
		return s.sendHandlerError(ctx, req.ID, err)
	}
	return s.sendResponse(ctx, req.ID, result)
}

func (s *Server) sendHandlerError(ctx *reqcontext.RequestContext, id any, err error) error {
	if f, ok := mcp.AsFailure(err); ok {
		return s.sendError(ctx, id, f.Code(), f.Error(), nil)
	}
	return s.sendError(ctx, id, mcp.ErrorCodeInternalError, err.Error(), nil)
}

func errorToResponse(id any, err error) mcp.Response {
	if f, ok := mcp.AsFailure(err); ok {
		return mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Error: &mcp.ErrorResponse{Code: f.Code(), Message: f.Error()}}
	}
	return mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Error: &mcp.ErrorResponse{Code: mcp.ErrorCodeInternalError, Message: err.Error()}}
}

func (s *Server) sendResponse(ctx *reqcontext.RequestContext, id any, result any) error {
	conn := ctx.ConnectionHandle()
	if conn == nil {
		return fmt.Errorf("engine: missing connection handle in context")
	}
	return conn.Send(mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: id, Result: result})
}

func (s *Server) sendError(ctx *reqcontext.RequestContext, id any, code int, message string, data any) error {
	conn := ctx.ConnectionHandle()
	if conn == nil {
		return fmt.Errorf("engine: missing connection handle in context")
	}
	return conn.Send(mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Error:   &mcp.ErrorResponse{Code: code, Message: message, Data: data},
	})
}

func parseNameAndArgs(params any) (string, map[string]any, error) {
	m, ok := params.(map[string]any)
	if !ok {
		return "", nil, fmt.Errorf("params must be an object")
	}
	name, ok := m["name"].(string)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("name parameter is required and must be a string")
	}
	args := map[string]any{}
	if raw, exists := m["arguments"]; exists {
		if argMap, ok := raw.(map[string]any); ok {
			args = argMap
		}
	}
	return name, args, nil
}

func parseURI(params any) (string, error) {
	m, ok := params.(map[string]any)
	if !ok {
		return "", fmt.Errorf("params must be an object")
	}
	uri, ok := m["uri"].(string)
	if !ok || uri == "" {
		return "", fmt.Errorf("uri parameter is required and must be a string")
	}
	return uri, nil
}

func paramsFromRequest(params any) map[string]any {
	m, ok := params.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func toolsToWire(entries []registry.ToolEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id": e.Name, "name": e.Name, "description": e.Description, "parameters": e.Parameters,
		})
	}
	return out
}

func resourcesToWire(entries []registry.ResourceEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id": e.URI, "name": e.URI, "description": e.Description, "mimeType": e.MimeType,
		})
	}
	return out
}

func promptsToWire(entries []registry.PromptEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]any{
			"id": e.Name, "name": e.Name, "description": e.Description, "arguments": e.Arguments,
		})
	}
	return out
}

func defaultLogger(logLevel string, logJSON bool) *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	log.SetOutput(os.Stderr)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if logJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
