// Package sidecar implements the side-car registry file loader — Design
// Notes §9 option (c) for dynamic discovery without runtime reflection.
// Go cannot instantiate a handler from a bare type name at runtime, so a
// side-car file never carries executable code: it carries *metadata*
// (identifier, description, parameter/argument schema) for handlers the
// caller has already built and keyed by a "type" string in a Factory. This
// lets the name/description/schema an operator sees live in a YAML file
// that can change without a rebuild, while the handler logic itself stays
// compiled Go code.
package sidecar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/mcpkit/mcp-server/registry"
)

// Factory resolves the "type" key named by one side-car entry to the
// concrete handler instance that should back it. The caller builds this
// map at startup from whatever Tool/Resource/Prompt implementations it
// has compiled in; sidecar never constructs a handler itself.
type Factory map[string]any

// File is the top-level shape of a side-car registry YAML document.
type File struct {
	Tools     []ToolEntry     `yaml:"tools"`
	Resources []ResourceEntry `yaml:"resources"`
	Prompts   []PromptEntry   `yaml:"prompts"`
}

// ToolEntry declares one tool registration sourced from the side-car file.
type ToolEntry struct {
	Name        string           `yaml:"name"`
	Type        string           `yaml:"type"`
	Description string           `yaml:"description,omitempty"`
	Parameters  []ParameterEntry `yaml:"parameters,omitempty"`
}

// ParameterEntry mirrors mcp.Parameter's fields for YAML (de)serialization.
type ParameterEntry struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// ResourceEntry declares one resource registration.
type ResourceEntry struct {
	URI         string `yaml:"uri"`
	Type        string `yaml:"type"`
	Description string `yaml:"description,omitempty"`
	MimeType    string `yaml:"mime_type,omitempty"`
}

// PromptEntry declares one prompt registration.
type PromptEntry struct {
	Name        string         `yaml:"name"`
	Type        string         `yaml:"type"`
	Description string         `yaml:"description,omitempty"`
	Arguments   []ArgumentEntry `yaml:"arguments,omitempty"`
}

// ArgumentEntry mirrors mcp.PromptArgument's fields for YAML.
type ArgumentEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
}

// LoadSidecar reads a YAML side-car file at path, resolves each entry's
// "type" against factory, and registers the result into reg using the
// YAML-declared name/description/schema — overriding whatever defaults
// mcp.DefaultName/mcp.DefaultDescription or the handler's own Named/
// Described overrides would otherwise produce, since the side-car file is
// explicitly the operator-facing source of truth for identity here.
func LoadSidecar(reg *registry.Registry, factory Factory, path string) (registry.Discovered, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return registry.Discovered{}, fmt.Errorf("sidecar: read %s: %w", path, err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return registry.Discovered{}, fmt.Errorf("sidecar: parse %s: %w", path, err)
	}

	return registerFile(reg, factory, file)
}

func registerFile(reg *registry.Registry, factory Factory, file File) (registry.Discovered, error) {
	var discovered registry.Discovered

	for _, te := range file.Tools {
		handler, err := resolveTool(factory, te.Type)
		if err != nil {
			return registry.Discovered{}, err
		}
		wrapped := toolWithSchema{Tool: handler, description: te.Description, params: toMCPParameters(te.Parameters)}
		if err := reg.RegisterTool(te.Name, wrapped); err != nil {
			return registry.Discovered{}, fmt.Errorf("sidecar: register tool %q: %w", te.Name, err)
		}
		discovered.Tools = append(discovered.Tools, te.Name)
	}

	for _, re := range file.Resources {
		handler, err := resolveResource(factory, re.Type)
		if err != nil {
			return registry.Discovered{}, err
		}
		wrapped := resourceWithSchema{Resource: handler, description: re.Description, mimeType: re.MimeType}
		if err := reg.RegisterResource(re.URI, wrapped); err != nil {
			return registry.Discovered{}, fmt.Errorf("sidecar: register resource %q: %w", re.URI, err)
		}
		discovered.Resources = append(discovered.Resources, re.URI)
	}

	for _, pe := range file.Prompts {
		handler, err := resolvePrompt(factory, pe.Type)
		if err != nil {
			return registry.Discovered{}, err
		}
		wrapped := promptWithSchema{Prompt: handler, description: pe.Description, args: toMCPArguments(pe.Arguments)}
		if err := reg.RegisterPrompt(pe.Name, wrapped); err != nil {
			return registry.Discovered{}, fmt.Errorf("sidecar: register prompt %q: %w", pe.Name, err)
		}
		discovered.Prompts = append(discovered.Prompts, pe.Name)
	}

	return discovered, nil
}

func resolveTool(factory Factory, typeName string) (mcp.Tool, error) {
	raw, ok := factory[typeName]
	if !ok {
		return nil, fmt.Errorf("sidecar: no factory entry for type %q", typeName)
	}
	t, ok := raw.(mcp.Tool)
	if !ok {
		return nil, fmt.Errorf("sidecar: factory entry %q does not implement mcp.Tool", typeName)
	}
	return t, nil
}

func resolveResource(factory Factory, typeName string) (mcp.Resource, error) {
	raw, ok := factory[typeName]
	if !ok {
		return nil, fmt.Errorf("sidecar: no factory entry for type %q", typeName)
	}
	r, ok := raw.(mcp.Resource)
	if !ok {
		return nil, fmt.Errorf("sidecar: factory entry %q does not implement mcp.Resource", typeName)
	}
	return r, nil
}

func resolvePrompt(factory Factory, typeName string) (mcp.Prompt, error) {
	raw, ok := factory[typeName]
	if !ok {
		return nil, fmt.Errorf("sidecar: no factory entry for type %q", typeName)
	}
	p, ok := raw.(mcp.Prompt)
	if !ok {
		return nil, fmt.Errorf("sidecar: factory entry %q does not implement mcp.Prompt", typeName)
	}
	return p, nil
}

func toMCPParameters(entries []ParameterEntry) []mcp.Parameter {
	if len(entries) == 0 {
		return nil
	}
	out := make([]mcp.Parameter, len(entries))
	for i, e := range entries {
		out[i] = mcp.Parameter{Name: e.Name, JSONType: e.Type, Description: e.Description, Required: e.Required}
	}
	return out
}

func toMCPArguments(entries []ArgumentEntry) []mcp.PromptArgument {
	if len(entries) == 0 {
		return nil
	}
	out := make([]mcp.PromptArgument, len(entries))
	for i, e := range entries {
		out[i] = mcp.PromptArgument{Name: e.Name, Description: e.Description, Required: e.Required}
	}
	return out
}
