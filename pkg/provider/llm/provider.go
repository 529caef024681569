// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI GPT-4,
// Anthropic Claude, or a local Ollama instance) and exposes a uniform
// completion interface so the response orchestrator can fail over between
// backends without coupling to any specific SDK.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleSystem marks high-priority instructions injected before the
	// conversation history.
	RoleSystem Role = "system"
	// RoleUser marks messages spoken by the human participant.
	RoleUser Role = "user"
	// RoleAssistant marks previous model replies.
	RoleAssistant Role = "assistant"
)

// Message is a single turn of conversation history.
type Message struct {
	Role    Role
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
// All counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return it
	// directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic outputs. A value of 0.0 typically
	// requests greedy (argmax) decoding.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation history. If the provider does not natively support a
	// dedicated system prompt, implementors should prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Model is the concrete model identifier that produced the reply, as
	// reported by the backend. May be empty.
	Model string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Complete sends req to the model and waits for the full response. It returns
// an error if the request fails or if ctx is cancelled before the completion
// arrives.
type Provider interface {
	// Name returns a short stable identifier for this provider (e.g.
	// "openai", "gemini"). The orchestrator uses it in failover logs and
	// aggregate errors.
	Name() string

	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
