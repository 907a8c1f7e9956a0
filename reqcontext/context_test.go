package reqcontext_test

import (
	"context"
	"testing"

	"github.com/mcpkit/mcp-server/reqcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	sent []any
}

func (f *fakeConn) Send(msg any) error {
	f.sent = append(f.sent, msg)
	return nil
}

func TestNewDefaults(t *testing.T) {
	rc := reqcontext.New(nil)
	assert.Nil(t, rc.ConnectionHandle())
	assert.Empty(t, rc.RequestID())
	assert.False(t, rc.Streaming())
	assert.Equal(t, "fallback", rc.Get("missing", "fallback"))
}

func TestNewWithOptions(t *testing.T) {
	conn := &fakeConn{}
	rc := reqcontext.New(context.Background(),
		reqcontext.WithConnectionHandle(conn),
		reqcontext.WithRequestID("req-1"),
		reqcontext.WithClientID("client-1"),
		reqcontext.WithStreaming(true),
		reqcontext.WithClientCapabilities(map[string]any{"tools": true}),
	)

	assert.Equal(t, "req-1", rc.RequestID())
	assert.Equal(t, reqcontext.ClientID("client-1"), rc.ClientID())
	assert.True(t, rc.Streaming())
	assert.Equal(t, map[string]any{"tools": true}, rc.ClientCapabilities())

	require.NoError(t, rc.ConnectionHandle().Send("progress"))
	assert.Equal(t, []any{"progress"}, conn.sent)
}

func TestPutGetRoundtrip(t *testing.T) {
	rc := reqcontext.New(context.Background())
	rc.Put("user", "alice")
	assert.Equal(t, "alice", rc.Get("user", nil))
}

func TestIDGeneratorProducesDistinctIDs(t *testing.T) {
	var gen reqcontext.IDGenerator
	a := gen.NewRequestID()
	b := gen.NewRequestID()
	assert.NotEqual(t, a, b)
	assert.NotEmpty(t, string(gen.NewClientID()))
}
