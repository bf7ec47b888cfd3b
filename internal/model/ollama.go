package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/161043261/ai-agent-go/internal/config"
)

// ollamaRequest is the request body for the Ollama chat API.
type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// ollamaResponse is one response object from the Ollama chat API. When
// streaming, the endpoint emits one of these per line (NDJSON).
type ollamaResponse struct {
	Message ChatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// OllamaClient talks to a local Ollama instance.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the configured Ollama endpoint.
func NewOllamaClient(cfg config.ModelConfig) *OllamaClient {
	return &OllamaClient{
		baseURL:    strings.TrimRight(cfg.OllamaBaseURL, "/"),
		model:      cfg.OllamaModel,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Type returns the client's model-type tag.
func (c *OllamaClient) Type() string {
	return TypeLocal
}

func (c *OllamaClient) chatURL() string {
	return c.baseURL + "/api/chat"
}

func (c *OllamaClient) post(ctx context.Context, streaming bool, history []ChatMessage) (*http.Response, error) {
	body, err := json.Marshal(ollamaRequest{Model: c.model, Messages: history, Stream: streaming})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = res.Body.Close()
		return nil, &HTTPStatusError{StatusCode: res.StatusCode, URL: c.chatURL(), Body: string(buf)}
	}
	return res, nil
}

// Generate produces a complete reply for the given history.
func (c *OllamaClient) Generate(ctx context.Context, history []ChatMessage) (string, error) {
	if len(history) == 0 {
		return "", errors.New("ollama: history is empty")
	}

	res, err := c.post(ctx, false, history)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	var payload ollamaResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	return payload.Message.Content, nil
}

// Stream produces a reply incrementally, reading the NDJSON stream emitted by
// the chat endpoint.
func (c *OllamaClient) Stream(ctx context.Context, history []ChatMessage, onChunk func(string)) (string, error) {
	if len(history) == 0 {
		return "", errors.New("ollama: history is empty")
	}

	res, err := c.post(ctx, true, history)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	var full strings.Builder
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return full.String(), fmt.Errorf("ollama: decode stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			onChunk(chunk.Message.Content)
			full.WriteString(chunk.Message.Content)
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("ollama: read stream: %w", err)
	}
	return full.String(), nil
}
