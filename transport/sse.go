package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/reqcontext"
)

// sseSessionTimeout is how long an SSE session may sit idle before the
// cleanup routine evicts it, matching genai-toolbox's 10-minute sweep.
const sseSessionTimeout = 10 * time.Minute

// sseSession is one connected SSE client: its outbound event queue, a
// done channel the connect handler closes on disconnect, and the time of
// its last activity for the cleanup sweep.
type sseSession struct {
	queue      chan string
	done       chan struct{}
	lastActive time.Time
}

// sseManager owns every live SSE session, grounded on genai-toolbox's
// sseManager (internal/server/mcp.go): a mutex-guarded map plus a
// background ticker evicting sessions idle past sseSessionTimeout.
type sseManager struct {
	mu       sync.Mutex
	sessions map[reqcontext.ClientID]*sseSession
}

func newSSEManager() *sseManager {
	return &sseManager{sessions: map[reqcontext.ClientID]*sseSession{}}
}

func (m *sseManager) start(ctx context.Context) {
	go m.cleanupRoutine(ctx)
}

func (m *sseManager) add(id reqcontext.ClientID, s *sseSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
}

func (m *sseManager) get(id reqcontext.ClientID) (*sseSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if ok {
		s.lastActive = time.Now()
	}
	return s, ok
}

func (m *sseManager) remove(id reqcontext.ClientID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		close(s.done)
		delete(m.sessions, id)
	}
}

func (m *sseManager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		close(s.done)
		delete(m.sessions, id)
	}
}

func (m *sseManager) send(id reqcontext.ClientID, msg any) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: unknown sse client %q", id)
	}
	return enqueueSSEEvent(s.queue, msg)
}

func (m *sseManager) broadcast(msg any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return ErrBroadcastNotSupported
	}
	for _, s := range m.sessions {
		_ = enqueueSSEEvent(s.queue, msg)
	}
	return nil
}

func (m *sseManager) cleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(sseSessionTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for id, s := range m.sessions {
				if now.Sub(s.lastActive) > sseSessionTimeout {
					close(s.done)
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}

// enqueueSSEEvent frames msg as one SSE "message" event and enqueues it.
// A full queue drops the event rather than blocking the sender — a slow
// or wedged client must not stall the engine.
func enqueueSSEEvent(queue chan string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: failed to marshal sse event: %w", err)
	}
	event := fmt.Sprintf("event: message\ndata: %s\n\n", payload)
	select {
	case queue <- event:
		return nil
	default:
		return fmt.Errorf("transport: sse event queue full for this client")
	}
}

// sseConn adapts one sseSession to reqcontext.ConnectionHandle so a
// streaming tool's emitter goroutine can write progress notifications
// straight to the SSE channel.
type sseConn struct {
	session *sseSession
}

func (c sseConn) Send(msg any) error {
	return enqueueSSEEvent(c.session.queue, msg)
}

// handleSSEConnect opens the long-lived event stream: GET /sse. The server
// assigns a client id, sends a "connected" event carrying it, then relays
// queued events until the client disconnects.
func (h *HTTP) handleSSEConnect(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID := h.idGen.NewClientID()
	session := &sseSession{
		queue:      make(chan string, 100),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}
	h.sse.add(clientID, session)
	defer h.sse.remove(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	connected, _ := json.Marshal(map[string]string{"client_id": string(clientID)})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
	flusher.Flush()

	clientGone := r.Context().Done()
	for {
		select {
		case event := <-session.queue:
			fmt.Fprint(w, event)
			flusher.Flush()
		case <-session.done:
			return
		case <-clientGone:
			return
		}
	}
}

// handleSSEMessage is the sibling POST path an SSE client uses to submit a
// JSON-RPC request: POST /sse/messages?client_id=<id>. The response is
// delivered asynchronously over the client's SSE channel, not in this
// POST's body — the handler just acknowledges receipt.
func (h *HTTP) handleSSEMessage(w http.ResponseWriter, r *http.Request) {
	clientID := reqcontext.ClientID(r.URL.Query().Get("client_id"))
	session, ok := h.sse.get(clientID)
	if !ok {
		render.JSON(w, r, invalidRequestResponse(nil, fmt.Sprintf("unknown sse client %q", clientID)))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		render.JSON(w, r, parseErrorResponse(err))
		return
	}

	var req mcp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		_ = enqueueSSEEvent(session.queue, parseErrorResponse(err))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := validateEnvelope(req); err != nil {
		_ = enqueueSSEEvent(session.queue, invalidRequestResponse(req.ID, err.Error()))
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	rc := reqcontext.New(r.Context(),
		reqcontext.WithConnectionHandle(sseConn{session}),
		reqcontext.WithClientID(clientID),
		reqcontext.WithRequestID(fmt.Sprintf("%v", req.ID)),
		reqcontext.WithStreaming(true),
	)
	if err := h.srv.HandleRequest(rc, req); err != nil {
		h.logger.Error("sse: error handling request", "error", err)
	}
	w.WriteHeader(http.StatusAccepted)
}
