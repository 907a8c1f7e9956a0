// Package annotation implements the legacy doc-block metadata grammar from
// SPEC_FULL.md §4.2.
//
// Go has no runtime reflection over doc comments, so the distilled spec's
// "documentation strings attached to handler units" becomes: a unit that
// wants attribute-based discovery implements Documented (Doc() string),
// returning the annotation block as a plain string. Parse then extracts
// the same @mcp_* grammar the distilled spec describes.
package annotation

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies what a parsed doc block declares.
type Kind int

const (
	// KindNone means the doc block carried no @mcp_tool/@mcp_resource/@mcp_prompt
	// annotation — the unit is not discovered.
	KindNone Kind = iota
	KindTool
	KindResource
	KindPrompt
)

// Documented is implemented by a handler unit that opts into attribute-based
// discovery (the legacy path; see package registry's DiscoverAttribute).
type Documented interface {
	Doc() string
}

// ParamSpec is one @mcp_param declaration.
type ParamSpec struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []any
	Default     any
	// Extra carries every parsed option verbatim per SPEC_FULL.md §4.2:
	// keys this parser does not recognize, and also the recognized ones
	// copied into the fields above.
	Extra map[string]any
}

// ArgSpec is one @mcp_arg declaration.
type ArgSpec struct {
	Name        string
	Description string
	Required    bool
	Extra       map[string]any
}

// Metadata is the parsed result of one doc block.
type Metadata struct {
	Kind        Kind
	Name        string // tool/prompt name, or resource uri
	Description string
	MimeType    string
	Parameters  []ParamSpec
	Arguments   []ArgSpec
}

// IsTool, IsResource, IsPrompt form the boolean triple SPEC_FULL.md §4.2
// describes alongside the metadata record.
func (m Metadata) IsTool() bool     { return m.Kind == KindTool }
func (m Metadata) IsResource() bool { return m.Kind == KindResource }
func (m Metadata) IsPrompt() bool   { return m.Kind == KindPrompt }

// Parse extracts MCP metadata from a structured documentation string.
//
// The first paragraph (up to the first blank line) is the description.
// Recognized annotation lines may appear anywhere in the block. An empty
// doc block yields a zero Metadata (Kind == KindNone) and a nil error —
// per SPEC_FULL.md §4.2, that unit is simply not discovered, which is not
// itself a parse failure.
func Parse(doc string) (Metadata, error) {
	doc = strings.TrimSpace(doc)
	if doc == "" {
		return Metadata{}, nil
	}

	lines := strings.Split(doc, "\n")
	var md Metadata
	var descLines []string
	descDone := false

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "@mcp_tool "):
			md.Kind = KindTool
			md.Name = strings.TrimSpace(strings.TrimPrefix(line, "@mcp_tool "))
			descDone = true
		case strings.HasPrefix(line, "@mcp_resource "):
			md.Kind = KindResource
			md.Name = strings.TrimSpace(strings.TrimPrefix(line, "@mcp_resource "))
			descDone = true
		case strings.HasPrefix(line, "@mcp_prompt "):
			md.Kind = KindPrompt
			md.Name = strings.TrimSpace(strings.TrimPrefix(line, "@mcp_prompt "))
			descDone = true
		case strings.HasPrefix(line, "@mcp_mime_type "):
			md.MimeType = strings.TrimSpace(strings.TrimPrefix(line, "@mcp_mime_type "))
			descDone = true
		case strings.HasPrefix(line, "@mcp_param "):
			p, err := parseParam(strings.TrimPrefix(line, "@mcp_param "))
			if err != nil {
				return Metadata{}, fmt.Errorf("annotation: %w", err)
			}
			md.Parameters = append(md.Parameters, p)
			descDone = true
		case strings.HasPrefix(line, "@mcp_arg "):
			a, err := parseArg(strings.TrimPrefix(line, "@mcp_arg "))
			if err != nil {
				return Metadata{}, fmt.Errorf("annotation: %w", err)
			}
			md.Arguments = append(md.Arguments, a)
			descDone = true
		case line == "":
			if len(descLines) > 0 {
				descDone = true
			}
		default:
			if !descDone {
				descLines = append(descLines, line)
			}
		}
	}

	md.Description = strings.TrimSpace(strings.Join(descLines, " "))
	return md, nil
}

// parseParam parses `<name> <Type> [k: v, k: v, …]`.
func parseParam(rest string) (ParamSpec, error) {
	rest = strings.TrimSpace(rest)
	name, remainder, ok := cutField(rest)
	if !ok {
		return ParamSpec{}, fmt.Errorf("@mcp_param missing name: %q", rest)
	}
	typ, optionsBlock, ok := cutField(remainder)
	if !ok {
		return ParamSpec{}, fmt.Errorf("@mcp_param %s: missing type", name)
	}

	p := ParamSpec{Name: name, Type: strings.ToLower(typ)}
	opts, err := parseOptions(optionsBlock)
	if err != nil {
		return ParamSpec{}, fmt.Errorf("@mcp_param %s: %w", name, err)
	}
	applyCommonOptions(opts, &p.Description, &p.Required, &p.Enum, &p.Default)
	p.Extra = opts
	return p, nil
}

// parseArg parses `<name> [k: v, …]`.
func parseArg(rest string) (ArgSpec, error) {
	rest = strings.TrimSpace(rest)
	name, optionsBlock, _ := cutField(rest)
	if name == "" {
		return ArgSpec{}, fmt.Errorf("@mcp_arg missing name: %q", rest)
	}

	a := ArgSpec{Name: name}
	opts, err := parseOptions(optionsBlock)
	if err != nil {
		return ArgSpec{}, fmt.Errorf("@mcp_arg %s: %w", name, err)
	}
	var unusedEnum []any
	var unusedDefault any
	applyCommonOptions(opts, &a.Description, &a.Required, &unusedEnum, &unusedDefault)
	a.Extra = opts
	return a, nil
}

// applyCommonOptions copies the well-known option keys from opts into the
// given fields. opts itself is left unchanged, so the caller can still
// preserve every option verbatim.
func applyCommonOptions(opts map[string]any, description *string, required *bool, enum *[]any, def *any) {
	if v, ok := opts["description"]; ok {
		if s, ok := v.(string); ok {
			*description = s
		}
	}
	if v, ok := opts["required"]; ok {
		if b, ok := v.(bool); ok {
			*required = b
		}
	}
	if v, ok := opts["enum"]; ok {
		if list, ok := v.([]any); ok {
			*enum = list
		}
	}
	if v, ok := opts["default"]; ok {
		*def = v
	}
}

// cutField splits s on the first run of whitespace that is not inside a
// bracketed options block, returning the first field and the remainder.
func cutField(s string) (field, remainder string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", false
	}
	if s[0] == '[' {
		return "", s, true
	}
	idx := strings.IndexFunc(s, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return s, "", true
	}
	return s[:idx], strings.TrimSpace(s[idx+1:]), true
}

// parseOptions parses a bracketed, comma-separated `key: value, key: value`
// list. An empty/absent block yields an empty, non-nil map.
func parseOptions(block string) (map[string]any, error) {
	block = strings.TrimSpace(block)
	opts := map[string]any{}
	if block == "" {
		return opts, nil
	}
	if !strings.HasPrefix(block, "[") || !strings.HasSuffix(block, "]") {
		return nil, fmt.Errorf("options must be bracketed: %q", block)
	}
	inner := block[1 : len(block)-1]
	pairs, err := splitTopLevel(inner, ',')
	if err != nil {
		return nil, err
	}
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, val, err := splitKeyValue(pair)
		if err != nil {
			return nil, err
		}
		v, err := parseValue(val)
		if err != nil {
			return nil, err
		}
		opts[key] = v
	}
	return opts, nil
}

func splitKeyValue(pair string) (key string, value string, err error) {
	idx := strings.IndexByte(pair, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("malformed option (missing ':'): %q", pair)
	}
	key = strings.TrimSpace(pair[:idx])
	value = strings.TrimSpace(pair[idx+1:])
	if key == "" {
		return "", "", fmt.Errorf("malformed option (empty key): %q", pair)
	}
	return key, value, nil
}

// splitTopLevel splits s on sep, ignoring occurrences inside [...] or "...".
func splitTopLevel(s string, sep byte) ([]string, error) {
	var parts []string
	depth := 0
	inQuotes := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inQuotes = !inQuotes
		case inQuotes:
			// inside a quoted string, ignore structural characters
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ']' in %q", s)
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if inQuotes {
		return nil, fmt.Errorf("unterminated quoted string in %q", s)
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced '[' in %q", s)
	}
	parts = append(parts, s[start:])
	return parts, nil
}

// parseValue parses one option value per SPEC_FULL.md §4.2: booleans, null,
// integers, floats, double-quoted strings, or bracketed comma-lists
// (recursively parsed). Anything else is returned as a bare string.
func parseValue(raw string) (any, error) {
	v := strings.TrimSpace(raw)
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	if strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) && len(v) >= 2 {
		unquoted, err := strconv.Unquote(v)
		if err != nil {
			return nil, fmt.Errorf("malformed quoted string: %q", v)
		}
		return unquoted, nil
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		inner := v[1 : len(v)-1]
		elems, err := splitTopLevel(inner, ',')
		if err != nil {
			return nil, err
		}
		list := make([]any, 0, len(elems))
		for _, e := range elems {
			e = strings.TrimSpace(e)
			if e == "" {
				continue
			}
			parsed, err := parseValue(e)
			if err != nil {
				return nil, err
			}
			list = append(list, parsed)
		}
		return list, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f, nil
	}
	return v, nil
}
