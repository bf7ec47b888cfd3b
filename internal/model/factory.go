package model

import (
	"context"
	"log/slog"
	"sync"

	"github.com/161043261/ai-agent-go/internal/config"
)

// Model-type tags accepted by the chat API.
const (
	TypeCompletion = "1" // plain completion (OpenAI-compatible)
	TypeRAG        = "2" // retrieval-augmented
	TypeTool       = "3" // tool-augmented
	TypeLocal      = "4" // local inference (Ollama)
)

// Retriever supplies context snippets for the retrieval-augmented client.
// Implemented by the cache layer.
type Retriever interface {
	Retrieve(ctx context.Context, userName, query string) ([]string, error)
}

// Factory maps model-type tags to client constructors. Constructors can be
// registered at runtime; creation for an unknown tag falls back to the plain
// completion client rather than failing.
type Factory struct {
	cfg       config.ModelConfig
	retriever Retriever

	mu       sync.RWMutex
	creators map[string]Creator
}

// NewFactory creates a Factory with the built-in model types registered.
// retriever may be nil, in which case the retrieval-augmented type degrades
// to plain completion behavior.
func NewFactory(cfg config.ModelConfig, retriever Retriever) *Factory {
	f := &Factory{
		cfg:       cfg,
		retriever: retriever,
		creators:  make(map[string]Creator),
	}

	f.Register(TypeCompletion, func(cfg config.ModelConfig, _ string) Client {
		return NewOpenAIClient(cfg, TypeCompletion)
	})
	f.Register(TypeRAG, func(cfg config.ModelConfig, userName string) Client {
		return NewRAGClient(NewOpenAIClient(cfg, TypeRAG), f.retriever, userName)
	})
	f.Register(TypeTool, func(cfg config.ModelConfig, _ string) Client {
		return NewToolClient(NewOpenAIClient(cfg, TypeTool), builtinTools())
	})
	f.Register(TypeLocal, func(cfg config.ModelConfig, _ string) Client {
		return NewOllamaClient(cfg)
	})

	return f
}

// Register installs or replaces the constructor for a model-type tag.
func (f *Factory) Register(tag string, creator Creator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creators[tag] = creator
}

// Types returns all registered model-type tags.
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tags := make([]string, 0, len(f.creators))
	for tag := range f.creators {
		tags = append(tags, tag)
	}
	return tags
}

// Create builds a client for the given tag. An unknown tag falls back to the
// plain completion client.
func (f *Factory) Create(tag, userName string) Client {
	f.mu.RLock()
	creator, ok := f.creators[tag]
	f.mu.RUnlock()

	if !ok {
		slog.Warn("unknown model type, using default", "model_type", tag)
		return NewOpenAIClient(f.cfg, TypeCompletion)
	}
	return creator(f.cfg, userName)
}
