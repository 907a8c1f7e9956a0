package mcp

import "context"

// ResourceContent contains the actual content of a resource.
//
// When a resource is read, the server returns the content along with the
// URI for identification. Content can be text, structured data, or other
// formats.
type ResourceContent struct {
	// URI identifies which resource this content belongs to.
	URI string `json:"uri"`

	// Text contains the textual content of the resource.
	Text string `json:"text"`

	// MimeType is the MIME type of Text, when known.
	MimeType string `json:"mimeType,omitempty"`
}

// ResourceResult is the response to a resource read request.
//
// A single resource request can return multiple content items, for example
// when reading a directory that contains multiple files or entries.
type ResourceResult struct {
	Contents []ResourceContent `json:"contents"`
}

// TextResource is a convenience constructor for a single-content
// ResourceResult.
func TextResource(uri, text, mimeType string) ResourceResult {
	return ResourceResult{Contents: []ResourceContent{{URI: uri, Text: text, MimeType: mimeType}}}
}

// Resource is the capability contract a registered resource handler
// satisfies. A Resource is identified by URI (see package registry), has a
// name, description, and MIME type, and performs one operation: Read.
type Resource interface {
	Read(ctx context.Context, params map[string]any) (ResourceResult, error)
}
