package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/reqcontext"
)

// ndjsonStreamTimeout bounds how long handleNDJSON waits for a streaming
// tool invocation's terminal message before giving up on the connection.
const ndjsonStreamTimeout = 2 * time.Minute

// ndjsonConn adapts one chunked HTTP response to reqcontext.ConnectionHandle:
// each Send call writes one compact JSON object followed by a newline and
// flushes immediately. done is closed exactly once, the moment a terminal
// mcp.Response (as opposed to an mcp.Notification progress event) is sent,
// so the handler goroutine knows when it may return. After that terminal
// message, or once handleNDJSON has returned, Send writes nothing and
// returns nil.
type ndjsonConn struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    chan struct{}
	closed  bool
}

func (c *ndjsonConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: failed to marshal ndjson line: %w", err)
	}
	if _, err := fmt.Fprintf(c.w, "%s\n", payload); err != nil {
		return err
	}
	c.flusher.Flush()

	if resp, ok := msg.(mcp.Response); ok && isTerminal(resp) && !c.closed {
		c.closed = true
		close(c.done)
	}
	return nil
}

// isTerminal reports whether resp actually ends the exchange. A streaming
// tool call produces two mcp.Response messages on the same id: an
// immediate "streaming_started" acknowledgment and, later, the true
// terminal result — only the latter should end the NDJSON stream.
func isTerminal(resp mcp.Response) bool {
	if resp.Error != nil {
		return true
	}
	if m, ok := resp.Result.(map[string]any); ok {
		if status, ok := m["status"].(string); ok && status == "streaming_started" {
			return false
		}
	}
	return true
}

// handleNDJSON serves one POST as a chunked NDJSON stream: a
// "streaming_started" status line (for streaming tools), zero or more
// progress notifications, then one terminal object carrying the result or
// an error — per SPEC_FULL.md §4.6. A non-streaming tool call still
// produces exactly one line, its ordinary response.
func (h *HTTP) handleNDJSON(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONLine(w, parseErrorResponse(err))
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONLine(w, parseErrorResponse(err))
		return
	}
	if err := validateEnvelope(req); err != nil {
		writeJSONLine(w, invalidRequestResponse(req.ID, err.Error()))
		return
	}
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", mimeNDJSON)
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	conn := &ndjsonConn{w: w, flusher: flusher, done: make(chan struct{})}
	clientID := h.clientIDFor(r)

	rc := reqcontext.New(r.Context(),
		reqcontext.WithConnectionHandle(conn),
		reqcontext.WithClientID(clientID),
		reqcontext.WithRequestID(fmt.Sprintf("%v", req.ID)),
		reqcontext.WithStreaming(true),
	)

	if err := h.srv.HandleRequest(rc, req); err != nil {
		h.logger.Error("ndjson: error handling request", "error", err)
		return
	}

	select {
	case <-conn.done:
	case <-r.Context().Done():
	case <-time.After(ndjsonStreamTimeout):
		h.logger.Warn("ndjson: stream timed out waiting for terminal message", "request_id", fmt.Sprintf("%v", req.ID))
	}

	conn.mu.Lock()
	conn.closed = true
	conn.mu.Unlock()
}

func writeJSONLine(w http.ResponseWriter, v any) {
	payload, _ := json.Marshal(v)
	w.Header().Set("Content-Type", mimeNDJSON)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s\n", payload)
}
