package mcp

import "context"

// PromptArgument defines a parameter that can be passed to a prompt.
//
// Arguments allow prompts to be customized for different contexts while
// maintaining a consistent structure and behavior.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptMessage represents a single message in a generated prompt.
//
// Messages follow the standard conversation format with roles like "user",
// "assistant", or "system" and contain the actual message content.
type PromptMessage struct {
	// Role indicates who is speaking ("user", "assistant", "system").
	Role string `json:"role"`

	// Content contains the message content.
	Content MessageContent `json:"content"`
}

// MessageContent contains the actual content of a prompt message.
//
// Content can be text or other media types. The type field indicates
// what kind of content this is.
type MessageContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptResult contains the generated prompt messages.
//
// The result contains a sequence of messages that form a conversation
// template ready for use with a language model, plus an optional title.
type PromptResult struct {
	Title    string          `json:"title,omitempty"`
	Messages []PromptMessage `json:"messages"`
}

// UserPrompt is a convenience constructor for a single user-role,
// text-content PromptResult.
func UserPrompt(title, text string) PromptResult {
	return PromptResult{
		Title: title,
		Messages: []PromptMessage{
			{Role: "user", Content: MessageContent{Type: "text", Text: text}},
		},
	}
}

// Prompt is the capability contract a registered prompt handler satisfies.
// A Prompt is identified by name (see package registry), has a description
// and an ordered argument schema, and performs one operation: Get.
type Prompt interface {
	Get(ctx context.Context, args map[string]any) (PromptResult, error)
}
