package mcp

// FailureKind classifies a handler-reported failure so the engine can pick
// the right JSON-RPC error code (SPEC_FULL.md §7).
type FailureKind int

const (
	// Internal is the default kind for a bare error returned by a handler —
	// treated the same as a handler crash.
	Internal FailureKind = iota
	NotFound
	InvalidParams
	CustomMessage
)

// Failure is the structured error a Tool/Resource/Prompt handler returns to
// signal a specific, user-facing failure rather than an opaque internal
// error. Returning a plain (non-*Failure) error is equivalent to
// Failure{Kind: Internal}.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return f.Message
	}
	switch f.Kind {
	case NotFound:
		return "not found"
	case InvalidParams:
		return "invalid params"
	default:
		return "internal error"
	}
}

// NewNotFound builds a Failure of kind NotFound.
func NewNotFound(message string) *Failure { return &Failure{Kind: NotFound, Message: message} }

// NewInvalidParams builds a Failure of kind InvalidParams.
func NewInvalidParams(message string) *Failure {
	return &Failure{Kind: InvalidParams, Message: message}
}

// NewInternal builds a Failure of kind Internal with a custom message.
func NewInternal(message string) *Failure {
	return &Failure{Kind: Internal, Message: message}
}

// Code returns the JSON-RPC error code corresponding to this Failure's kind.
func (f *Failure) Code() int {
	switch f.Kind {
	case NotFound, InvalidParams:
		return ErrorCodeInvalidParams
	default:
		return ErrorCodeInternalError
	}
}

// AsFailure extracts a *Failure from err, if any. Used by the engine to
// distinguish structured handler failures from bare/unexpected errors.
func AsFailure(err error) (*Failure, bool) {
	f, ok := err.(*Failure)
	return f, ok
}
