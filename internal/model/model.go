// Package model provides chat-completion clients and the factory that maps
// model-type tags to them.
package model

import (
	"context"

	"github.com/161043261/ai-agent-go/internal/config"
)

// Chat message roles. Conversation history is converted to these two roles
// only; system prompts are an internal concern of individual clients.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a model-neutral role/content pair.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is a chat-completion backend. Generate blocks until the full reply
// is available. Stream invokes onChunk zero or more times in generation order
// and returns the full concatenated reply.
type Client interface {
	// Type returns the client's model-type tag.
	Type() string

	// Generate produces a complete reply for the given history.
	Generate(ctx context.Context, history []ChatMessage) (string, error)

	// Stream produces a reply incrementally. The returned string is the full
	// reply; chunks already delivered to onChunk are not retracted on error.
	Stream(ctx context.Context, history []ChatMessage, onChunk func(string)) (string, error)
}

// Creator builds a Client for one model-type tag.
type Creator func(cfg config.ModelConfig, userName string) Client
