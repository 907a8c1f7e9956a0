package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/reqcontext"
)

// DefaultStdioTimeout bounds how long a single request may run before its
// context is cancelled.
const DefaultStdioTimeout = 30 * time.Second

// Stdio is the line-framed JSON-RPC transport: one message per line on
// stdin, responses and notifications written newline-terminated to stdout.
// Stdio serves exactly one implicit client for the process's lifetime.
type Stdio struct {
	in       io.Reader
	out      io.Writer
	clientID reqcontext.ClientID
	writeMu  sync.Mutex
}

// NewStdio creates a Stdio transport reading os.Stdin and writing
// os.Stdout, with a freshly generated client id.
func NewStdio() *Stdio {
	var gen reqcontext.IDGenerator
	return &Stdio{in: os.Stdin, out: os.Stdout, clientID: gen.NewClientID()}
}

// NewStdioWithIO creates a Stdio transport over arbitrary in/out streams,
// for tests and for embedding stdio framing over a non-OS pipe.
func NewStdioWithIO(in io.Reader, out io.Writer) *Stdio {
	var gen reqcontext.IDGenerator
	return &Stdio{in: in, out: out, clientID: gen.NewClientID()}
}

// Start reads lines from in until EOF or ctx is cancelled, dispatching
// each to srv and writing its response back to out.
func (t *Stdio) Start(ctx context.Context, srv *engine.Server) error {
	log.Println("starting stdio transport")

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineChan := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			case lineChan <- scanner.Text():
			}
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("stdio transport shutting down")
			return nil
		case err := <-errChan:
			log.Printf("error reading stdin: %v", err)
			return err
		case line, ok := <-lineChan:
			if !ok {
				log.Println("stdin closed, stdio transport exiting")
				return nil
			}
			if line == "" {
				continue
			}
			t.handleLine(ctx, srv, line)
		}
	}
}

// handleLine decodes exactly one JSON-RPC message from line. A decode
// failure never attempts mid-object recovery (one line is one message);
// it is reported with id nil per SPEC_FULL.md §9.
func (t *Stdio) handleLine(ctx context.Context, srv *engine.Server, line string) {
	var req mcp.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		t.writeResponse(parseErrorResponse(err))
		return
	}
	if err := validateEnvelope(req); err != nil {
		t.writeResponse(invalidRequestResponse(req.ID, err.Error()))
		return
	}
	if req.IsNotification() {
		log.Printf("stdio: received notification %s", req.Method)
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, DefaultStdioTimeout)
	defer cancel()

	rc := reqcontext.New(reqCtx,
		reqcontext.WithConnectionHandle(stdioConn{t}),
		reqcontext.WithClientID(t.clientID),
		reqcontext.WithRequestID(fmt.Sprintf("%v", req.ID)),
	)
	if err := srv.HandleRequest(rc, req); err != nil {
		log.Printf("stdio: error handling request: %v", err)
	}
}

// stdioConn adapts *Stdio to reqcontext.ConnectionHandle, so a streaming
// tool's emitter goroutine can write progress notifications to stdout the
// same way the main read loop writes responses — both serialized by
// writeMu so they never interleave partial lines.
type stdioConn struct{ t *Stdio }

func (c stdioConn) Send(msg any) error { return c.t.writeResponse(msg) }

// Send implements transport.Transport.Send: stdio has exactly one client,
// so clientID is ignored.
func (t *Stdio) Send(_ reqcontext.ClientID, msg any) error {
	return t.writeResponse(msg)
}

func (t *Stdio) writeResponse(msg any) error {
	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("stdio: failed to marshal response: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	fmt.Fprintln(t.out, string(jsonBytes))
	return nil
}

// Broadcast is not meaningful for a single-client transport; it behaves
// identically to Send since stdio has exactly one client.
func (t *Stdio) Broadcast(msg any) error {
	return t.writeResponse(msg)
}

// Close is a no-op: stdio's lifetime is the process's lifetime.
func (t *Stdio) Close(reqcontext.ClientID) error { return nil }

// Shutdown is a no-op; Start returns on context cancellation or stdin EOF.
func (t *Stdio) Shutdown(context.Context) error { return nil }
