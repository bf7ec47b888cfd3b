package model

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Tool is a function the tool-augmented client can invoke on the model's
// behalf.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, input string) (string, error)
}

// toolCall is the JSON shape the model emits to request a tool invocation.
type toolCall struct {
	Tool  string `json:"tool"`
	Input string `json:"input"`
}

func builtinTools() []Tool {
	return []Tool{
		{
			Name:        "current_time",
			Description: "Returns the current server date and time. Input is ignored.",
			Run: func(_ context.Context, _ string) (string, error) {
				return time.Now().Format(time.RFC1123), nil
			},
		},
	}
}

// ToolClient augments a base client with locally-executed tools. The model is
// told about the available tools via a system message; when it replies with a
// tool-call object, the tool runs and the result is fed back for one more
// round. At most one tool round per turn.
type ToolClient struct {
	base  Client
	tools map[string]Tool
}

// NewToolClient wraps base with the given tools.
func NewToolClient(base Client, tools []Tool) *ToolClient {
	m := make(map[string]Tool, len(tools))
	for _, tool := range tools {
		m[tool.Name] = tool
	}
	return &ToolClient{base: base, tools: m}
}

// Type returns the client's model-type tag.
func (c *ToolClient) Type() string {
	return TypeTool
}

func (c *ToolClient) preamble() ChatMessage {
	var b strings.Builder
	b.WriteString("You may use the following tools. To invoke one, reply with only a JSON object ")
	b.WriteString(`{"tool": "<name>", "input": "<input>"} and nothing else.` + "\n")
	for _, tool := range c.tools {
		fmt.Fprintf(&b, "- %s: %s\n", tool.Name, tool.Description)
	}
	return ChatMessage{Role: RoleSystem, Content: b.String()}
}

func (c *ToolClient) augment(history []ChatMessage) []ChatMessage {
	augmented := make([]ChatMessage, 0, len(history)+1)
	augmented = append(augmented, c.preamble())
	augmented = append(augmented, history...)
	return augmented
}

// parseToolCall reports whether reply is a tool invocation request.
func (c *ToolClient) parseToolCall(reply string) (toolCall, bool) {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		return toolCall{}, false
	}

	var call toolCall
	if err := json.Unmarshal([]byte(trimmed), &call); err != nil || call.Tool == "" {
		return toolCall{}, false
	}
	_, ok := c.tools[call.Tool]
	return call, ok
}

func (c *ToolClient) runTool(ctx context.Context, call toolCall, history []ChatMessage) []ChatMessage {
	tool := c.tools[call.Tool]
	result, err := tool.Run(ctx, call.Input)
	if err != nil {
		slog.Warn("tool execution failed", "tool", call.Tool, "error", err)
		result = fmt.Sprintf("tool %s failed: %v", call.Tool, err)
	}

	next := append([]ChatMessage{}, history...)
	next = append(next,
		ChatMessage{Role: RoleAssistant, Content: fmt.Sprintf(`{"tool": %q, "input": %q}`, call.Tool, call.Input)},
		ChatMessage{Role: RoleSystem, Content: fmt.Sprintf("Result of %s: %s\nAnswer the user using this result.", call.Tool, result)},
	)
	return next
}

// Generate produces a complete reply, running at most one tool round.
func (c *ToolClient) Generate(ctx context.Context, history []ChatMessage) (string, error) {
	augmented := c.augment(history)

	reply, err := c.base.Generate(ctx, augmented)
	if err != nil {
		return "", err
	}

	call, ok := c.parseToolCall(reply)
	if !ok {
		return reply, nil
	}
	return c.base.Generate(ctx, c.runTool(ctx, call, augmented))
}

// Stream produces a reply incrementally. The first round is buffered so a
// tool call is never leaked to the caller; only the final answer streams.
func (c *ToolClient) Stream(ctx context.Context, history []ChatMessage, onChunk func(string)) (string, error) {
	augmented := c.augment(history)

	reply, err := c.base.Generate(ctx, augmented)
	if err != nil {
		return "", err
	}

	call, ok := c.parseToolCall(reply)
	if !ok {
		onChunk(reply)
		return reply, nil
	}
	return c.base.Stream(ctx, c.runTool(ctx, call, augmented), onChunk)
}
