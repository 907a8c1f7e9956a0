package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/mcpkit/mcp-server/authhook"
	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/reqcontext"
)

const (
	headerClientID       = "X-Client-Id"
	headerAccept         = "Accept"
	headerContentType    = "Content-Type"
	mimeNDJSON           = "application/x-ndjson"
	mimeJSON             = "application/json"
	defaultReadTimeout   = 30 * time.Second
	defaultWriteTimeout  = 30 * time.Second
	defaultIdleTimeout   = 120 * time.Second
	defaultShutdownGrace = 5 * time.Second
)

// HTTP serves the plain request/response, SSE, and NDJSON-streaming
// transports behind one chi router, matching genai-toolbox's mcpRouter
// layout: distinct routes sharing one *http.Server and one client registry.
type HTTP struct {
	addr       string
	httpServer *http.Server
	srv        *engine.Server
	logger     *slog.Logger
	idGen      reqcontext.IDGenerator

	sse    *sseManager
	authMW func(http.Handler) http.Handler
}

// HTTPOption configures an HTTP transport at construction time.
type HTTPOption func(*HTTP)

// WithHTTPLogger overrides the default stderr text logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) { h.logger = logger }
}

// WithAuth gates every route behind authhook.Middleware(v, headerType).
// Unset by default — authentication is opt-in per SPEC_FULL.md §2, never
// part of the core dispatch path.
func WithAuth(v authhook.Validator, headerType authhook.HeaderType) HTTPOption {
	return func(h *HTTP) { h.authMW = authhook.Middleware(v, headerType) }
}

// NewHTTP creates an HTTP transport listening on addr (e.g. ":8080").
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:   addr,
		logger: slog.Default(),
		sse:    newSSEManager(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler binds srv and returns the chi router as a plain http.Handler,
// for embedding this transport's routes into a caller-owned *http.Server
// or httptest.Server instead of letting Start own the listener.
func (h *HTTP) Handler(srv *engine.Server) http.Handler {
	h.srv = srv
	return h.router()
}

func (h *HTTP) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))
	if h.authMW != nil {
		r.Use(h.authMW)
	}

	r.Post("/", h.handleUnified)
	r.Get("/sse", h.handleSSEConnect)
	r.Post("/sse/messages", h.handleSSEMessage)

	return r
}

// Start builds the chi router, binds srv, and serves until ctx is
// cancelled, at which point it shuts down gracefully.
func (h *HTTP) Start(ctx context.Context, srv *engine.Server) error {
	h.srv = srv
	h.httpServer = &http.Server{
		Addr:         h.addr,
		Handler:      h.router(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	h.sse.start(ctx)

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("starting http transport", "addr", h.addr)
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownGrace)
		defer cancel()
		return h.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleUnified is the plain-HTTP and NDJSON-streaming entry point: one
// POST, content-negotiated by Accept. When the client's Accept includes
// application/x-ndjson the response is a chunked NDJSON stream (see
// ndjson.go); otherwise it is a single JSON object.
func (h *HTTP) handleUnified(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get(headerContentType)) {
		render.Status(r, http.StatusUnsupportedMediaType)
		render.JSON(w, r, unsupportedMediaResponse())
		return
	}

	if acceptsNDJSON(r.Header.Get(headerAccept)) {
		h.handleNDJSON(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, parseErrorResponse(err))
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, parseErrorResponse(err))
		return
	}
	if err := validateEnvelope(req); err != nil {
		render.JSON(w, r, invalidRequestResponse(req.ID, err.Error()))
		return
	}
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	clientID := h.clientIDFor(r)
	conn := &singleResponseConn{}
	rc := reqcontext.New(r.Context(),
		reqcontext.WithConnectionHandle(conn),
		reqcontext.WithClientID(clientID),
		reqcontext.WithRequestID(fmt.Sprintf("%v", req.ID)),
	)

	if err := h.srv.HandleRequest(rc, req); err != nil {
		h.logger.Error("http: error handling request", "error", err)
		render.JSON(w, r, mcp.Response{JSONRPC: mcp.JSONRPCVersion, ID: req.ID, Error: &mcp.ErrorResponse{Code: mcp.ErrorCodeInternalError, Message: err.Error()}})
		return
	}
	render.JSON(w, r, conn.response)
}

func (h *HTTP) clientIDFor(r *http.Request) reqcontext.ClientID {
	if v := r.Header.Get(headerClientID); v != "" {
		return reqcontext.ClientID(v)
	}
	return h.idGen.NewClientID()
}

func acceptsNDJSON(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		if strings.TrimSpace(part) == mimeNDJSON {
			return true
		}
	}
	return false
}

// isJSONContentType reports whether contentType names application/json,
// ignoring any trailing parameters (e.g. "application/json; charset=utf-8").
func isJSONContentType(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, mimeJSON)
}

// unsupportedMediaResponse builds the -32001 response for a POST whose
// Content-Type is missing or not application/json (spec.md §4.6 "Unknown/
// unsupported media returns 415"). -32001 is the boundary code spec.md §7
// reserves for authentication/media errors.
func unsupportedMediaResponse() mcp.Response {
	return mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      nil,
		Error: &mcp.ErrorResponse{
			Code:    mcp.ErrorCodeAuthOrMedia,
			Message: "unsupported media type",
		},
	}
}

// singleResponseConn is the ConnectionHandle for one plain-HTTP request: it
// captures the single mcp.Response the engine sends so the handler can
// serialize it as the HTTP response body. A plain-HTTP request is never
// flagged streaming, so the engine calls a streaming tool's Handle, not
// HandleStream; any notification sent here is discarded.
type singleResponseConn struct {
	response mcp.Response
}

func (c *singleResponseConn) Send(msg any) error {
	if resp, ok := msg.(mcp.Response); ok {
		c.response = resp
	}
	return nil
}

// Send implements transport.Transport.Send for persistent SSE clients
// registered in h.sse; it has no effect on ephemeral plain-HTTP requests,
// which have already completed by the time Send could be called.
func (h *HTTP) Send(clientID reqcontext.ClientID, msg any) error {
	return h.sse.send(clientID, msg)
}

// Broadcast delivers msg to every connected SSE client. Returns
// ErrBroadcastNotSupported if there are none.
func (h *HTTP) Broadcast(msg any) error {
	return h.sse.broadcast(msg)
}

// Close terminates one SSE client's connection.
func (h *HTTP) Close(clientID reqcontext.ClientID) error {
	h.sse.remove(clientID)
	return nil
}

// Shutdown stops accepting connections and closes every SSE client.
func (h *HTTP) Shutdown(ctx context.Context) error {
	h.sse.closeAll()

	if h.httpServer == nil {
		return nil
	}
	return h.httpServer.Shutdown(ctx)
}
