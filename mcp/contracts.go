package mcp

import (
	"reflect"
	"strings"
	"unicode"
)

// Named lets a handler override the identifier the registry would
// otherwise derive for it. Register* calls take an explicit name/uri, and
// attribute- and sidecar-driven discovery take it from the doc block or the
// YAML entry; Named only matters for registry.DiscoverExplicit, which
// otherwise falls back to DefaultName.
type Named interface {
	Name() string
}

// Described lets a handler override its default description
// ("Tool implemented by <T>").
type Described interface {
	Description() string
}

// SchemaProvider lets a Tool declare its ordered parameter schema.
type SchemaProvider interface {
	Parameters() []Parameter
}

// ArgumentProvider lets a Prompt declare its ordered argument schema.
type ArgumentProvider interface {
	Arguments() []PromptArgument
}

// MimeTyped lets a Resource declare a MIME type for its content.
type MimeTyped interface {
	MimeType() string
}

// DefaultName derives an identifier from a handler's concrete Go type name
// by converting it to kebab-case, e.g. *CalculatorTool -> "calculator-tool".
// This is the idiomatic stand-in for the distilled spec's "identifier
// derived from module/type name" default (SPEC_FULL.md §4.1).
func DefaultName(handler any) string {
	t := reflect.TypeOf(handler)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return kebabCase(t.Name())
}

// DefaultDescription derives a description of the form
// "Tool implemented by <T>" from a handler's concrete Go type name.
func DefaultDescription(kind string, handler any) string {
	t := reflect.TypeOf(handler)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return kind + " implemented by " + t.Name()
}

func kebabCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
