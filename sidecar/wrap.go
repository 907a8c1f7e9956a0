package sidecar

import "github.com/mcpkit/mcp-server/mcp"

// toolWithSchema overrides a handler's description and parameter schema
// with the side-car file's declarations, via the same mcp.Described /
// mcp.SchemaProvider overrides registry.DiscoverExplicit already honors —
// the embedded mcp.Tool still satisfies Handle.
type toolWithSchema struct {
	mcp.Tool
	description string
	params      []mcp.Parameter
}

func (t toolWithSchema) Description() string    { return t.description }
func (t toolWithSchema) Parameters() []mcp.Parameter { return t.params }

type resourceWithSchema struct {
	mcp.Resource
	description string
	mimeType    string
}

func (r resourceWithSchema) Description() string { return r.description }
func (r resourceWithSchema) MimeType() string    { return r.mimeType }

type promptWithSchema struct {
	mcp.Prompt
	description string
	args        []mcp.PromptArgument
}

func (p promptWithSchema) Description() string          { return p.description }
func (p promptWithSchema) Arguments() []mcp.PromptArgument { return p.args }
