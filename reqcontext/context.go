// Package reqcontext implements the per-request Context and identifier
// generation component (C7): a context.Context carrying the connection
// handle, request id, client capabilities snapshot, streaming flag, client
// id, and an open-ended custom-data map.
package reqcontext

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ClientID identifies one logical transport connection. Stdio has exactly
// one implicit client for the process lifetime; HTTP/SSE/NDJSON assign one
// per connection (from a client-supplied header, or generated).
type ClientID string

// ConnectionHandle is how a streaming tool's emitter goroutine writes
// progress notifications directly back to a transport connection, bypassing
// the engine's own request/response dispatch path entirely (SPEC_FULL.md
// §4.4 — this is the fix for the latent "write to own mailbox" bug
// Design Notes §9 calls out).
type ConnectionHandle interface {
	// Send delivers one JSON-RPC message (a mcp.Response or mcp.Notification)
	// to this connection. Safe to call after the connection has closed —
	// implementations must treat that as a no-op, not an error worth
	// propagating to the emitting goroutine.
	Send(msg any) error
}

// RequestContext wraps context.Context so it can be passed anywhere a
// context.Context is expected, while carrying the additional per-request
// state every handler invocation needs.
//
// A RequestContext is immutable once created (invariant: spec.md §3.3) —
// construct a new one with With* rather than mutating fields in place.
// The custom-data map is the one mutable exception, guarded by its own
// mutex, since a single request's own goroutine is the only writer for the
// duration of one Handle/Read/Get call.
type RequestContext struct {
	context.Context

	connectionHandle   ConnectionHandle
	requestID          string
	clientID           ClientID
	clientCapabilities map[string]any
	streaming          bool

	dataMu sync.Mutex
	data   map[string]any
}

// Option configures a RequestContext at construction time.
type Option func(*RequestContext)

// WithConnectionHandle attaches the transport connection a streaming
// emitter should write progress notifications through.
func WithConnectionHandle(h ConnectionHandle) Option {
	return func(rc *RequestContext) { rc.connectionHandle = h }
}

// WithRequestID sets the JSON-RPC request id this Context was built for.
func WithRequestID(id string) Option {
	return func(rc *RequestContext) { rc.requestID = id }
}

// WithClientID sets the logical client this Context's connection belongs to.
func WithClientID(id ClientID) Option {
	return func(rc *RequestContext) { rc.clientID = id }
}

// WithClientCapabilities attaches the capabilities snapshot negotiated at
// initialize time for this client.
func WithClientCapabilities(caps map[string]any) Option {
	return func(rc *RequestContext) { rc.clientCapabilities = caps }
}

// WithStreaming flags this Context as a streaming tool invocation, so the
// engine dispatches HandleStream instead of Handle when both are available.
func WithStreaming(streaming bool) Option {
	return func(rc *RequestContext) { rc.streaming = streaming }
}

// New builds a RequestContext wrapping parent, generalizing the teacher's
// functional-options server construction pattern to per-request state.
func New(parent context.Context, opts ...Option) *RequestContext {
	if parent == nil {
		parent = context.Background()
	}
	rc := &RequestContext{
		Context: parent,
		data:    map[string]any{},
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// ConnectionHandle returns the attached transport connection, or nil if
// none was set (e.g. a context built purely for testing a handler).
func (rc *RequestContext) ConnectionHandle() ConnectionHandle { return rc.connectionHandle }

// RequestID returns the JSON-RPC request id this Context was built for.
func (rc *RequestContext) RequestID() string { return rc.requestID }

// ClientID returns the logical client this Context's connection belongs to.
func (rc *RequestContext) ClientID() ClientID { return rc.clientID }

// ClientCapabilities returns the capabilities snapshot negotiated at
// initialize time.
func (rc *RequestContext) ClientCapabilities() map[string]any { return rc.clientCapabilities }

// Streaming reports whether the engine should dispatch this invocation as a
// streaming tool call.
func (rc *RequestContext) Streaming() bool { return rc.streaming }

// Put stores val under key in this Context's custom-data map.
func (rc *RequestContext) Put(key string, val any) {
	rc.dataMu.Lock()
	defer rc.dataMu.Unlock()
	rc.data[key] = val
}

// Get retrieves the value stored under key, or def if absent.
func (rc *RequestContext) Get(key string, def any) any {
	rc.dataMu.Lock()
	defer rc.dataMu.Unlock()
	if v, ok := rc.data[key]; ok {
		return v
	}
	return def
}

// IDGenerator produces identifiers unique within the server process
// lifetime, backed by github.com/google/uuid.
type IDGenerator struct{}

// NewRequestID generates a fresh request id. Transports never use it to
// fill in an id a client omitted: an id-less message is a notification.
func (IDGenerator) NewRequestID() string { return uuid.NewString() }

// NewClientID generates a fresh client id for a transport connection
// lacking a client-supplied identifier (e.g. no X-Client-Id header).
func (IDGenerator) NewClientID() ClientID { return ClientID(uuid.NewString()) }
