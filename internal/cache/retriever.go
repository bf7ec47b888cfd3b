package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsupportedFile is returned when an uploaded document has an extension
// other than .md or .txt.
var ErrUnsupportedFile = errors.New("cache: only .md and .txt files are supported")

// docsKey is where a user's uploaded document snippets are stored: a JSON
// array of strings under one key per user.
func docsKey(userName string) string {
	return "rag:docs:" + userName
}

// fileKey is where the stored name of the user's current document lives. One
// document per user; a new upload replaces it.
func fileKey(userName string) string {
	return "rag:file:" + userName
}

// SnippetRetriever serves context snippets for retrieval-augmented chat from
// the cache. Lookup is a naive keyword match over the user's stored snippets;
// vector search belongs to the richer backends and is out of scope here.
type SnippetRetriever struct {
	cache Cache
	limit int
}

// NewSnippetRetriever creates a retriever over the given cache. limit caps
// the snippets returned per query.
func NewSnippetRetriever(c Cache, limit int) *SnippetRetriever {
	if limit <= 0 {
		limit = 3
	}
	return &SnippetRetriever{cache: c, limit: limit}
}

// StoreDocument replaces the user's knowledge base with the given document:
// the content is split into paragraph snippets and stored, and the file is
// recorded under a generated name that keeps the original extension. Returns
// the stored name.
func (r *SnippetRetriever) StoreDocument(ctx context.Context, userName, filename, content string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".md" && ext != ".txt" {
		return "", ErrUnsupportedFile
	}

	if err := r.StoreSnippets(ctx, userName, SplitSnippets(content)); err != nil {
		return "", err
	}

	storedName := uuid.NewString() + ext
	if err := r.cache.Set(ctx, fileKey(userName), []byte(storedName), 0); err != nil {
		return "", fmt.Errorf("store file name: %w", err)
	}
	return storedName, nil
}

// Files returns the stored names of the user's uploaded documents. At most
// one entry with the current single-document model.
func (r *SnippetRetriever) Files(ctx context.Context, userName string) ([]string, error) {
	data, err := r.cache.Get(ctx, fileKey(userName))
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

// SplitSnippets breaks document content into paragraph snippets: blocks
// separated by blank lines, trimmed, empties dropped.
func SplitSnippets(content string) []string {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	var snippets []string
	for _, block := range strings.Split(normalized, "\n\n") {
		if trimmed := strings.TrimSpace(block); trimmed != "" {
			snippets = append(snippets, trimmed)
		}
	}
	return snippets
}

// StoreSnippets replaces the user's snippet set.
func (r *SnippetRetriever) StoreSnippets(ctx context.Context, userName string, snippets []string) error {
	data, err := json.Marshal(snippets)
	if err != nil {
		return fmt.Errorf("marshal snippets: %w", err)
	}
	return r.cache.Set(ctx, docsKey(userName), data, 0)
}

// Retrieve returns up to limit snippets whose text shares a keyword with the
// query. A cache miss yields no snippets, not an error.
func (r *SnippetRetriever) Retrieve(ctx context.Context, userName, query string) ([]string, error) {
	data, err := r.cache.Get(ctx, docsKey(userName))
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snippets []string
	if err := json.Unmarshal(data, &snippets); err != nil {
		return nil, fmt.Errorf("unmarshal snippets: %w", err)
	}

	words := strings.Fields(strings.ToLower(query))
	var matched []string
	for _, snippet := range snippets {
		lower := strings.ToLower(snippet)
		for _, word := range words {
			if len(word) >= 3 && strings.Contains(lower, word) {
				matched = append(matched, snippet)
				break
			}
		}
		if len(matched) >= r.limit {
			break
		}
	}
	return matched, nil
}
