// Package transport implements the transport abstraction (C5) and its four
// concrete transports (C6): stdio, plain HTTP, Server-Sent Events, and
// chunked NDJSON streaming. Every transport decodes inbound JSON-RPC
// messages, builds a reqcontext.RequestContext with a stable client id, and
// calls into the engine; responses flow back through a ConnectionHandle
// rather than a return value, so streaming progress notifications and
// terminal results share one delivery path.
package transport

import (
	"errors"
	"fmt"

	"context"

	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/reqcontext"
)

// ErrBroadcastNotSupported is returned by HTTP.Broadcast when no SSE client
// is connected: plain request/response and NDJSON exchanges have no
// persistent channel to broadcast over.
var ErrBroadcastNotSupported = errors.New("transport: broadcast not supported")

// Transport is the interface every wire protocol binding satisfies
// (SPEC_FULL.md §4.5). A transport MUST preserve per-client FIFO ordering
// for outbound messages; inbound messages from a single client are
// delivered to the engine in arrival order.
type Transport interface {
	// Start begins listening for requests on this transport. It blocks
	// until the context is cancelled or an unrecoverable error occurs.
	Start(ctx context.Context, srv *engine.Server) error

	// Send delivers one message to one client.
	Send(clientID reqcontext.ClientID, msg any) error

	// Broadcast delivers one message to every attached client. Transports
	// without that concept return ErrBroadcastNotSupported.
	Broadcast(msg any) error

	// Close terminates one client's connection.
	Close(clientID reqcontext.ClientID) error

	// Shutdown terminates all clients and stops the transport.
	Shutdown(ctx context.Context) error
}

// parseErrorResponse builds the -32700 response for a message this
// transport could not decode at all. Per SPEC_FULL.md §9, no attempt is
// made to recover a partial id from the malformed payload — id is always
// nil here — and no incremental/streaming JSON parsing is attempted: one
// frame (one stdio line, one HTTP body) is exactly one JSON-RPC message.
func parseErrorResponse(err error) mcp.Response {
	return mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      nil,
		Error: &mcp.ErrorResponse{
			Code:    mcp.ErrorCodeParseError,
			Message: "parse error",
			Data:    err.Error(),
		},
	}
}

func invalidRequestResponse(id any, reason string) mcp.Response {
	return mcp.Response{
		JSONRPC: mcp.JSONRPCVersion,
		ID:      id,
		Error: &mcp.ErrorResponse{
			Code:    mcp.ErrorCodeInvalidRequest,
			Message: reason,
		},
	}
}

func validateEnvelope(req mcp.Request) error {
	if req.Method == "" {
		return fmt.Errorf("missing method")
	}
	if req.JSONRPC != "" && req.JSONRPC != mcp.JSONRPCVersion {
		return fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}
	return nil
}
