package transport_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/mcpkit/mcp-server/transport"
)

// synchronizedBuffer lets the test goroutine read lines the stdio
// transport is concurrently writing, without a data race.
type synchronizedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *synchronizedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *synchronizedBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	scanner := bufio.NewScanner(strings.NewReader(b.buf.String()))
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func newTestStdio(t *testing.T, input string) (*synchronizedBuffer, func()) {
	t.Helper()
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterTool("echo", echoTool{}))

	srv, err := engine.New("Test Server", "1.0.0", reg, engine.WithLogLevel("error"))
	require.NoError(t, err)

	out := &synchronizedBuffer{}
	st := transport.NewStdioWithIO(strings.NewReader(input), out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Start(ctx, srv)
	}()

	return out, func() {
		cancel()
		<-done
	}
}

func TestStdioDispatchesLineAndWritesResponse(t *testing.T) {
	out, stop := newTestStdio(t, `{"jsonrpc":"2.0","id":"1","method":"initialize"}`+"\n")
	defer stop()

	require.Eventually(t, func() bool { return len(out.lines()) == 1 }, 2*time.Second, 10*time.Millisecond)

	var resp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(out.lines()[0]), &resp))
	assert.Nil(t, resp.Error)
}

func TestStdioParseErrorGetsNilID(t *testing.T) {
	out, stop := newTestStdio(t, "not json\n")
	defer stop()

	require.Eventually(t, func() bool { return len(out.lines()) == 1 }, 2*time.Second, 10*time.Millisecond)

	var resp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(out.lines()[0]), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrorCodeParseError, resp.Error.Code)
	assert.Nil(t, resp.ID)
}

func TestStdioNotificationProducesNoResponse(t *testing.T) {
	out, stop := newTestStdio(t, `{"jsonrpc":"2.0","method":"progress"}`+"\n")
	defer stop()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, out.lines())
}

// TestStdioParseErrorThenInitializeRecovers grounds spec.md §8 scenario 5:
// a malformed line on a connection does not poison subsequent lines — the
// parse error response for the bad line is followed by a normal response
// to the next, well-formed request.
func TestStdioParseErrorThenInitializeRecovers(t *testing.T) {
	out, stop := newTestStdio(t,
		"{invalid json\n"+
			`{"jsonrpc":"2.0","id":"1","method":"initialize"}`+"\n")
	defer stop()

	require.Eventually(t, func() bool { return len(out.lines()) == 2 }, 2*time.Second, 10*time.Millisecond)

	var parseErr mcp.Response
	require.NoError(t, json.Unmarshal([]byte(out.lines()[0]), &parseErr))
	require.NotNil(t, parseErr.Error)
	assert.Equal(t, mcp.ErrorCodeParseError, parseErr.Error.Code)
	assert.Nil(t, parseErr.ID)

	var initResp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(out.lines()[1]), &initResp))
	require.Nil(t, initResp.Error)
	assert.Equal(t, "1", initResp.ID)
}

func TestStdioInitializeThenToolsExecute(t *testing.T) {
	out, stop := newTestStdio(t,
		`{"jsonrpc":"2.0","id":"1","method":"initialize"}`+"\n"+
			`{"jsonrpc":"2.0","id":"2","method":"tools/execute","params":{"name":"echo","arguments":{"text":"hi"}}}`+"\n")
	defer stop()

	require.Eventually(t, func() bool { return len(out.lines()) == 2 }, 2*time.Second, 10*time.Millisecond)

	var resp mcp.Response
	require.NoError(t, json.Unmarshal([]byte(out.lines()[1]), &resp))
	assert.Nil(t, resp.Error)
}
