package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcpkit/mcp-server/engine"
	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/mcpkit/mcp-server/reqcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	mu        sync.Mutex
	responses []mcp.Response
	notifs    []mcp.Notification
}

func (c *recordingConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch m := msg.(type) {
	case mcp.Response:
		c.responses = append(c.responses, m)
	case mcp.Notification:
		c.notifs = append(c.notifs, m)
	}
	return nil
}

func (c *recordingConn) last() mcp.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses[len(c.responses)-1]
}

func (c *recordingConn) responseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.responses)
}

type echoTool struct{}

func (echoTool) Handle(_ context.Context, params map[string]any) (mcp.ToolResult, error) {
	return mcp.Text(params["text"].(string)), nil
}

type failingTool struct{}

func (failingTool) Handle(_ context.Context, _ map[string]any) (mcp.ToolResult, error) {
	return mcp.ToolResult{}, mcp.NewNotFound("thing not found")
}

type countdownTool struct{}

func (countdownTool) Handle(ctx context.Context, params map[string]any) (mcp.ToolResult, error) {
	return countdownTool{}.HandleStream(ctx, params, func(any) {})
}

func (countdownTool) HandleStream(_ context.Context, _ map[string]any, emit mcp.ProgressFunc) (mcp.ToolResult, error) {
	emit(map[string]any{"step": 1})
	emit(map[string]any{"step": 2})
	return mcp.Text("done"), nil
}

func newTestServer(t *testing.T) (*engine.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(nil)
	require.NoError(t, reg.RegisterTool("echo", echoTool{}))
	require.NoError(t, reg.RegisterTool("fails", failingTool{}))
	require.NoError(t, reg.RegisterTool("countdown", countdownTool{}))

	srv, err := engine.New("Test Server", "1.0.0", reg, engine.WithLogLevel("error"))
	require.NoError(t, err)
	return srv, reg
}

func TestMethodBeforeInitializeIsRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(conn), reqcontext.WithClientID("c1"))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "tools/list", ID: "1"}))
	require.Len(t, conn.responses, 1)
	require.NotNil(t, conn.last().Error)
	assert.Equal(t, mcp.ErrorCodeNotInitialized, conn.last().Error.Code)
}

func TestInitializeThenToolsList(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(conn), reqcontext.WithClientID("c1"))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "initialize", ID: "1"}))
	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "tools/list", ID: "2"}))

	require.Len(t, conn.responses, 2)
	result, ok := conn.last().Result.(map[string]any)
	require.True(t, ok)
	tools, ok := result["tools"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, tools, 3)
}

func TestInitializeIsPerClient(t *testing.T) {
	srv, _ := newTestServer(t)
	connA := &recordingConn{}
	ctxA := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(connA), reqcontext.WithClientID("a"))
	require.NoError(t, srv.HandleRequest(ctxA, mcp.Request{Method: "initialize", ID: "1"}))

	connB := &recordingConn{}
	ctxB := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(connB), reqcontext.WithClientID("b"))
	require.NoError(t, srv.HandleRequest(ctxB, mcp.Request{Method: "tools/list", ID: "1"}))

	require.NotNil(t, connB.last().Error)
	assert.Equal(t, mcp.ErrorCodeNotInitialized, connB.last().Error.Code)
}

func TestToolsExecuteSuccess(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(conn), reqcontext.WithClientID("c1"))
	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "initialize", ID: "1"}))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{
		Method: "tools/execute", ID: "2",
		Params: map[string]any{"name": "echo", "arguments": map[string]any{"text": "hi"}},
	}))

	result, ok := conn.last().Result.(mcp.ToolResult)
	require.True(t, ok)
	assert.Equal(t, "hi", result.Content[0].Text)
}

func TestToolsExecuteHandlerFailureMapsToInvalidParams(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(conn), reqcontext.WithClientID("c1"))
	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "initialize", ID: "1"}))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{
		Method: "tools/execute", ID: "2",
		Params: map[string]any{"name": "fails", "arguments": map[string]any{}},
	}))

	require.NotNil(t, conn.last().Error)
	assert.Equal(t, mcp.ErrorCodeInvalidParams, conn.last().Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(), reqcontext.WithConnectionHandle(conn), reqcontext.WithClientID("c1"))
	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "initialize", ID: "1"}))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "bogus/method", ID: "2"}))
	require.NotNil(t, conn.last().Error)
	assert.Equal(t, mcp.ErrorCodeMethodNotFound, conn.last().Error.Code)
}

func TestStreamingToolEmitsProgressThenTerminal(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := &recordingConn{}
	ctx := reqcontext.New(context.Background(),
		reqcontext.WithConnectionHandle(conn),
		reqcontext.WithClientID("c1"),
		reqcontext.WithStreaming(true),
	)
	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{Method: "initialize", ID: "1"}))

	require.NoError(t, srv.HandleRequest(ctx, mcp.Request{
		Method: "tools/execute", ID: "2",
		Params: map[string]any{"name": "countdown", "arguments": map[string]any{}},
	}))

	require.Eventually(t, func() bool { return conn.responseCount() == 3 }, 2*time.Second, 10*time.Millisecond)

	conn.mu.Lock()
	placeholder, ok := conn.responses[1].Result.(map[string]any)
	conn.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "streaming_started", placeholder["status"])

	terminal, ok := conn.last().Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "complete", terminal["status"])

	conn.mu.Lock()
	notifCount := len(conn.notifs)
	conn.mu.Unlock()
	assert.Equal(t, 2, notifCount)
}
