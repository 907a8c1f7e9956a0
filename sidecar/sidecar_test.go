package sidecar_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
	"github.com/mcpkit/mcp-server/sidecar"
)

type echoTool struct{}

func (echoTool) Handle(_ context.Context, params map[string]any) (mcp.ToolResult, error) {
	return mcp.Text(params["text"].(string)), nil
}

type readmeResource struct{}

func (readmeResource) Read(_ context.Context, _ map[string]any) (mcp.ResourceResult, error) {
	return mcp.TextResource("file://readme", "hello", "text/plain"), nil
}

type greetingPrompt struct{}

func (greetingPrompt) Get(_ context.Context, args map[string]any) (mcp.PromptResult, error) {
	return mcp.UserPrompt("greeting", "hi "+args["name"].(string)), nil
}

const sidecarYAML = `
tools:
  - name: echo
    type: echo-tool
    description: Echoes text back to the caller
    parameters:
      - name: text
        type: string
        required: true
resources:
  - uri: file://readme
    type: readme-resource
    description: Project readme
    mime_type: text/plain
prompts:
  - name: greeting
    type: greeting-prompt
    description: Greets someone by name
    arguments:
      - name: name
        required: true
`

func writeSidecarFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sidecar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadSidecarRegistersAllThreeKinds(t *testing.T) {
	path := writeSidecarFile(t, sidecarYAML)
	reg := registry.New(nil)
	factory := sidecar.Factory{
		"echo-tool":       echoTool{},
		"readme-resource": readmeResource{},
		"greeting-prompt": greetingPrompt{},
	}

	discovered, err := sidecar.LoadSidecar(reg, factory, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, discovered.Tools)
	assert.Equal(t, []string{"file://readme"}, discovered.Resources)
	assert.Equal(t, []string{"greeting"}, discovered.Prompts)

	tool, ok := reg.Tool("echo")
	require.True(t, ok)
	assert.Equal(t, "Echoes text back to the caller", tool.Description)
	require.Len(t, tool.Parameters, 1)
	assert.Equal(t, "text", tool.Parameters[0].Name)
	assert.True(t, tool.Parameters[0].Required)

	resource, ok := reg.Resource("file://readme")
	require.True(t, ok)
	assert.Equal(t, "text/plain", resource.MimeType)

	prompt, ok := reg.Prompt("greeting")
	require.True(t, ok)
	require.Len(t, prompt.Arguments, 1)
	assert.Equal(t, "name", prompt.Arguments[0].Name)
}

func TestLoadSidecarUnknownTypeIsAnError(t *testing.T) {
	path := writeSidecarFile(t, `
tools:
  - name: echo
    type: nonexistent-type
`)
	reg := registry.New(nil)

	_, err := sidecar.LoadSidecar(reg, sidecar.Factory{}, path)
	assert.Error(t, err)
}

func TestLoadSidecarMissingFileIsAnError(t *testing.T) {
	reg := registry.New(nil)
	_, err := sidecar.LoadSidecar(reg, sidecar.Factory{}, "/nonexistent/sidecar.yaml")
	assert.Error(t, err)
}
