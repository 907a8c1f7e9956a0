package registry_test

import (
	"context"
	"testing"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoTool struct{}

func (echoTool) Handle(_ context.Context, params map[string]any) (mcp.ToolResult, error) {
	return mcp.Text(params["text"].(string)), nil
}

type namedTool struct{ echoTool }

func (namedTool) Name() string        { return "custom-echo" }
func (namedTool) Description() string { return "Echoes its input back." }

type docTool struct{}

func (docTool) Handle(_ context.Context, _ map[string]any) (mcp.ToolResult, error) {
	return mcp.ToolResult{}, nil
}

func (docTool) Doc() string {
	return `Adds two numbers.

@mcp_tool doc-add
@mcp_param a integer [required: true]
`
}

type notACapability struct{}

func TestRegisterAndListTools(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterTool("echo", echoTool{}))

	tools := r.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "Tool implemented by echoTool", tools[0].Description)
}

func TestDiscoverExplicitUsesNamedAndDescribed(t *testing.T) {
	r := registry.New(nil)
	d, err := r.DiscoverExplicit(namedTool{})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom-echo"}, d.Tools)

	entry, ok := r.Tool("custom-echo")
	require.True(t, ok)
	assert.Equal(t, "Echoes its input back.", entry.Description)
}

func TestDiscoverExplicitSkipsNonCapability(t *testing.T) {
	r := registry.New(nil)
	d, err := r.DiscoverExplicit(notACapability{})
	require.NoError(t, err)
	assert.Empty(t, d.Tools)
	assert.Empty(t, d.Resources)
	assert.Empty(t, d.Prompts)
}

func TestDiscoverAttribute(t *testing.T) {
	r := registry.New(nil)
	d, err := r.DiscoverAttribute(docTool{})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-add"}, d.Tools)

	entry, ok := r.Tool("doc-add")
	require.True(t, ok)
	assert.Equal(t, "Adds two numbers.", entry.Description)
	require.Len(t, entry.Parameters, 1)
	assert.Equal(t, "a", entry.Parameters[0].Name)
	assert.True(t, entry.Parameters[0].Required)
}

func TestNamesWithPrefix(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.RegisterTool("alpha-tool", echoTool{}))
	require.NoError(t, r.RegisterTool("beta-tool", echoTool{}))

	d := r.NamesWithPrefix("alpha")
	assert.Equal(t, []string{"alpha-tool"}, d.Tools)

	all := r.NamesWithPrefix("")
	assert.ElementsMatch(t, []string{"alpha-tool", "beta-tool"}, all.Tools)
}
