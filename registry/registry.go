// Package registry implements the in-process capability registry (C3):
// explicit and attribute-based discovery of tools, resources, and prompts,
// backed by insertion-ordered maps under a single-writer lock.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mcpkit/mcp-server/annotation"
	"github.com/mcpkit/mcp-server/mcp"
)

// ToolEntry is one registered tool's identity, description, and schema
// alongside its handler.
type ToolEntry struct {
	Name        string
	Description string
	Parameters  []mcp.Parameter
	Handler     mcp.Tool
}

// ResourceEntry is one registered resource's identity and handler.
type ResourceEntry struct {
	URI         string
	Description string
	MimeType    string
	Handler     mcp.Resource
}

// PromptEntry is one registered prompt's identity, description, and
// argument schema alongside its handler.
type PromptEntry struct {
	Name        string
	Description string
	Arguments   []mcp.PromptArgument
	Handler     mcp.Prompt
}

// Discovered reports the identifiers newly registered by one discovery call,
// per spec.md §4.3's discover_components return shape.
type Discovered struct {
	Tools     []string
	Resources []string
	Prompts   []string
}

// Registry is a long-lived, concurrency-safe store of registered
// capabilities. All mutating calls serialize through mu; readers take only
// a read lock and return copied snapshots, never the live maps.
type Registry struct {
	mu sync.RWMutex

	toolNames []string
	tools     map[string]ToolEntry

	resourceURIs []string
	resources    map[string]ResourceEntry

	promptNames []string
	prompts     map[string]PromptEntry

	logger *slog.Logger
}

// New creates an empty Registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:     map[string]ToolEntry{},
		resources: map[string]ResourceEntry{},
		prompts:   map[string]PromptEntry{},
		logger:    logger,
	}
}

// RegisterTool adds t under name, validating it implements mcp.Tool (the
// parameter type already enforces this; the error return exists for
// parity with the distilled spec's invalid_<kind> outcome on bad input).
func (r *Registry) RegisterTool(name string, t mcp.Tool) error {
	if t == nil {
		return fmt.Errorf("registry: nil tool for %q", name)
	}
	if name == "" {
		return fmt.Errorf("registry: empty tool name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		r.toolNames = append(r.toolNames, name)
	}
	r.tools[name] = ToolEntry{
		Name:        name,
		Description: describeTool(name, t),
		Parameters:  schemaOf(t),
		Handler:     t,
	}
	return nil
}

// RegisterResource adds r under uri.
func (reg *Registry) RegisterResource(uri string, r mcp.Resource) error {
	if r == nil {
		return fmt.Errorf("registry: nil resource for %q", uri)
	}
	if uri == "" {
		return fmt.Errorf("registry: empty resource uri")
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.resources[uri]; !exists {
		reg.resourceURIs = append(reg.resourceURIs, uri)
	}
	mimeType := ""
	if mt, ok := r.(mcp.MimeTyped); ok {
		mimeType = mt.MimeType()
	}
	reg.resources[uri] = ResourceEntry{
		URI:         uri,
		Description: describeResource(uri, r),
		MimeType:    mimeType,
		Handler:     r,
	}
	return nil
}

// RegisterPrompt adds p under name.
func (r *Registry) RegisterPrompt(name string, p mcp.Prompt) error {
	if p == nil {
		return fmt.Errorf("registry: nil prompt for %q", name)
	}
	if name == "" {
		return fmt.Errorf("registry: empty prompt name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prompts[name]; !exists {
		r.promptNames = append(r.promptNames, name)
	}
	r.prompts[name] = PromptEntry{
		Name:        name,
		Description: describePrompt(name, p),
		Arguments:   argsOf(p),
		Handler:     p,
	}
	return nil
}

// DiscoverExplicit is the primary discovery path (Design Notes §9): each
// candidate is type-asserted against mcp.Tool/mcp.Resource/mcp.Prompt and,
// if it satisfies one or more, registered under its default or
// Named-overridden identifier. A candidate satisfying none of the three
// contracts is silently skipped — it isn't a capability unit.
func (r *Registry) DiscoverExplicit(candidates ...any) (Discovered, error) {
	var d Discovered
	for _, c := range candidates {
		matched := false

		if t, ok := c.(mcp.Tool); ok {
			name := identifierOf(c, mcp.DefaultName(c))
			if err := r.RegisterTool(name, t); err != nil {
				return d, err
			}
			d.Tools = append(d.Tools, name)
			matched = true
		}
		if res, ok := c.(mcp.Resource); ok {
			uri := identifierOf(c, mcp.DefaultName(c))
			if err := r.RegisterResource(uri, res); err != nil {
				return d, err
			}
			d.Resources = append(d.Resources, uri)
			matched = true
		}
		if p, ok := c.(mcp.Prompt); ok {
			name := identifierOf(c, mcp.DefaultName(c))
			if err := r.RegisterPrompt(name, p); err != nil {
				return d, err
			}
			d.Prompts = append(d.Prompts, name)
			matched = true
		}
		if !matched {
			r.logger.Debug("registry: candidate satisfies no capability contract", "type", fmt.Sprintf("%T", c))
		}
	}
	return d, nil
}

// DiscoverAttribute is the legacy doc-annotation discovery path: each
// candidate's Doc() is parsed per the annotation grammar, and it is
// registered under the parsed kind. A parse failure or an empty/KindNone
// doc block is non-fatal — it's logged and the candidate is skipped, per
// SPEC_FULL.md §4.2.
func (r *Registry) DiscoverAttribute(candidates ...annotation.Documented) (Discovered, error) {
	var d Discovered
	for _, c := range candidates {
		md, err := annotation.Parse(c.Doc())
		if err != nil {
			r.logger.Warn("registry: failed to parse doc annotation", "type", fmt.Sprintf("%T", c), "error", err)
			continue
		}

		switch md.Kind {
		case annotation.KindTool:
			t, ok := c.(mcp.Tool)
			if !ok {
				r.logger.Warn("registry: @mcp_tool doc on type not implementing mcp.Tool", "type", fmt.Sprintf("%T", c))
				continue
			}
			r.mu.Lock()
			if _, exists := r.tools[md.Name]; !exists {
				r.toolNames = append(r.toolNames, md.Name)
			}
			r.tools[md.Name] = ToolEntry{
				Name:        md.Name,
				Description: md.Description,
				Parameters:  paramsFromSpecs(md.Parameters),
				Handler:     t,
			}
			r.mu.Unlock()
			d.Tools = append(d.Tools, md.Name)
		case annotation.KindResource:
			res, ok := c.(mcp.Resource)
			if !ok {
				r.logger.Warn("registry: @mcp_resource doc on type not implementing mcp.Resource", "type", fmt.Sprintf("%T", c))
				continue
			}
			r.mu.Lock()
			if _, exists := r.resources[md.Name]; !exists {
				r.resourceURIs = append(r.resourceURIs, md.Name)
			}
			r.resources[md.Name] = ResourceEntry{
				URI:         md.Name,
				Description: md.Description,
				MimeType:    md.MimeType,
				Handler:     res,
			}
			r.mu.Unlock()
			d.Resources = append(d.Resources, md.Name)
		case annotation.KindPrompt:
			p, ok := c.(mcp.Prompt)
			if !ok {
				r.logger.Warn("registry: @mcp_prompt doc on type not implementing mcp.Prompt", "type", fmt.Sprintf("%T", c))
				continue
			}
			r.mu.Lock()
			if _, exists := r.prompts[md.Name]; !exists {
				r.promptNames = append(r.promptNames, md.Name)
			}
			r.prompts[md.Name] = PromptEntry{
				Name:        md.Name,
				Description: md.Description,
				Arguments:   argsFromSpecs(md.Arguments),
				Handler:     p,
			}
			r.mu.Unlock()
			d.Prompts = append(d.Prompts, md.Name)
		default:
			r.logger.Debug("registry: doc block carries no @mcp_* annotation", "type", fmt.Sprintf("%T", c))
		}
	}
	return d, nil
}

// Tools returns a snapshot of all registered tools in registration order.
func (r *Registry) Tools() []ToolEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolEntry, 0, len(r.toolNames))
	for _, name := range r.toolNames {
		out = append(out, r.tools[name])
	}
	return out
}

// Resources returns a snapshot of all registered resources.
func (r *Registry) Resources() []ResourceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ResourceEntry, 0, len(r.resourceURIs))
	for _, uri := range r.resourceURIs {
		out = append(out, r.resources[uri])
	}
	return out
}

// Prompts returns a snapshot of all registered prompts.
func (r *Registry) Prompts() []PromptEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PromptEntry, 0, len(r.promptNames))
	for _, name := range r.promptNames {
		out = append(out, r.prompts[name])
	}
	return out
}

// Tool looks up a registered tool by name.
func (r *Registry) Tool(name string) (ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	return e, ok
}

// Resource looks up a registered resource by uri.
func (r *Registry) Resource(uri string) (ResourceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.resources[uri]
	return e, ok
}

// Prompt looks up a registered prompt by name.
func (r *Registry) Prompt(name string) (PromptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.prompts[name]
	return e, ok
}

// NamesWithPrefix returns every registered tool/resource/prompt identifier
// starting with prefix (or all identifiers if prefix is empty), sorted.
// This backs the prefix-filtered variant of discover_components from
// spec.md §4.3.
func (r *Registry) NamesWithPrefix(prefix string) Discovered {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var d Discovered
	for _, name := range r.toolNames {
		if hasPrefix(name, prefix) {
			d.Tools = append(d.Tools, name)
		}
	}
	for _, uri := range r.resourceURIs {
		if hasPrefix(uri, prefix) {
			d.Resources = append(d.Resources, uri)
		}
	}
	for _, name := range r.promptNames {
		if hasPrefix(name, prefix) {
			d.Prompts = append(d.Prompts, name)
		}
	}
	sort.Strings(d.Tools)
	sort.Strings(d.Resources)
	sort.Strings(d.Prompts)
	return d
}

func hasPrefix(s, prefix string) bool {
	return prefix == "" || (len(s) >= len(prefix) && s[:len(prefix)] == prefix)
}

func identifierOf(candidate any, fallback string) string {
	if n, ok := candidate.(mcp.Named); ok {
		return n.Name()
	}
	return fallback
}

func describeTool(name string, t mcp.Tool) string {
	if d, ok := t.(mcp.Described); ok {
		return d.Description()
	}
	return mcp.DefaultDescription("Tool", t)
}

func describeResource(uri string, r mcp.Resource) string {
	if d, ok := r.(mcp.Described); ok {
		return d.Description()
	}
	return mcp.DefaultDescription("Resource", r)
}

func describePrompt(name string, p mcp.Prompt) string {
	if d, ok := p.(mcp.Described); ok {
		return d.Description()
	}
	return mcp.DefaultDescription("Prompt", p)
}

func schemaOf(t mcp.Tool) []mcp.Parameter {
	if sp, ok := t.(mcp.SchemaProvider); ok {
		return sp.Parameters()
	}
	return nil
}

func argsOf(p mcp.Prompt) []mcp.PromptArgument {
	if ap, ok := p.(mcp.ArgumentProvider); ok {
		return ap.Arguments()
	}
	return nil
}

func paramsFromSpecs(specs []annotation.ParamSpec) []mcp.Parameter {
	if specs == nil {
		return nil
	}
	out := make([]mcp.Parameter, 0, len(specs))
	for _, s := range specs {
		out = append(out, mcp.Parameter{
			Name:        s.Name,
			JSONType:    s.Type,
			Description: s.Description,
			Required:    s.Required,
			Enum:        s.Enum,
			Default:     s.Default,
		})
	}
	return out
}

func argsFromSpecs(specs []annotation.ArgSpec) []mcp.PromptArgument {
	if specs == nil {
		return nil
	}
	out := make([]mcp.PromptArgument, 0, len(specs))
	for _, s := range specs {
		out = append(out, mcp.PromptArgument{
			Name:        s.Name,
			Description: s.Description,
			Required:    s.Required,
		})
	}
	return out
}
