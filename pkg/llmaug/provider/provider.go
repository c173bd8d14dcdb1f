// Package provider implements the pluggable chat-model transport behind
// the LLM augmentation layer (C9): one provider per backend, each with a
// timeout. GigaChat refreshes its access token and retries once on
// 401/403; Ollama makes a single attempt and has no retry.
//
// Shape grounded on the teacher's pkg/agent.LLMClient interface
// (ConversationMessage roles, Close()), generalized from a streaming
// tool-calling API to one plain non-streaming Chat call since C9
// needs neither tool calls nor token streaming. Transport bodies grounded
// on _examples/original_source/app/services/llm_ollama.py and
// llm_gigachat.py.
package provider

import "context"

// Message role constants, mirrored from the teacher's conversation message
// shape.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Provider is the transport behind one chat-capable backend.
type Provider interface {
	// Available reports whether the provider has everything it needs
	// (credentials, endpoint) to attempt a call.
	Available() bool
	// Chat sends messages and returns the assistant's text content.
	Chat(ctx context.Context, messages []Message, temperature float64) (string, error)
}
