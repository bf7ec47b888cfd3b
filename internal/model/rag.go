package model

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RAGClient augments a base client with retrieved context. Before each call,
// it asks the retriever for snippets relevant to the latest user message and
// injects them as a system message. Retrieval failure degrades to plain
// completion; it never fails the turn.
type RAGClient struct {
	base      Client
	retriever Retriever
	userName  string
}

// NewRAGClient wraps base with retrieval augmentation. retriever may be nil.
func NewRAGClient(base Client, retriever Retriever, userName string) *RAGClient {
	return &RAGClient{base: base, retriever: retriever, userName: userName}
}

// Type returns the client's model-type tag.
func (c *RAGClient) Type() string {
	return TypeRAG
}

// Generate produces a complete reply, augmented with retrieved context.
func (c *RAGClient) Generate(ctx context.Context, history []ChatMessage) (string, error) {
	return c.base.Generate(ctx, c.augment(ctx, history))
}

// Stream produces a reply incrementally, augmented with retrieved context.
func (c *RAGClient) Stream(ctx context.Context, history []ChatMessage, onChunk func(string)) (string, error) {
	return c.base.Stream(ctx, c.augment(ctx, history), onChunk)
}

func (c *RAGClient) augment(ctx context.Context, history []ChatMessage) []ChatMessage {
	if c.retriever == nil || len(history) == 0 {
		return history
	}

	query := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			query = history[i].Content
			break
		}
	}
	if query == "" {
		return history
	}

	snippets, err := c.retriever.Retrieve(ctx, c.userName, query)
	if err != nil {
		slog.Warn("context retrieval failed, continuing without augmentation",
			"username", c.userName, "error", err)
		return history
	}
	if len(snippets) == 0 {
		return history
	}

	preamble := ChatMessage{
		Role: RoleSystem,
		Content: fmt.Sprintf(
			"Use the following context from the user's documents when relevant:\n\n%s",
			strings.Join(snippets, "\n---\n")),
	}

	augmented := make([]ChatMessage, 0, len(history)+1)
	augmented = append(augmented, preamble)
	augmented = append(augmented, history...)
	return augmented
}
