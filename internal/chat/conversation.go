// Package chat implements per-session conversation state, the process-wide
// conversation registry, and the chat service that ties them to the model
// factory, the cache/queue backend and durable storage.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/161043261/ai-agent-go/internal/domain"
	"github.com/161043261/ai-agent-go/internal/model"
)

// SaveFunc hands a freshly appended message to the persistence pipeline.
// Invoked asynchronously; a failure is logged, never surfaced to the turn.
type SaveFunc func(ctx context.Context, msg domain.Message) error

// Conversation holds the in-memory state of one (user, session) pair: the
// ordered message history and the model client answering it.
//
// The history is guarded by a mutex for memory safety under concurrent
// requests. Two simultaneous turns on the same session are not serialized;
// their messages may interleave in an undefined order.
type Conversation struct {
	sessionID string
	userName  string
	client    model.Client
	saveFunc  SaveFunc

	mu       sync.RWMutex
	messages []domain.Message
}

// NewConversation creates conversation state for a session. saveFunc may be
// nil, in which case appended messages are not persisted.
func NewConversation(client model.Client, sessionID, userName string, saveFunc SaveFunc) *Conversation {
	return &Conversation{
		sessionID: sessionID,
		userName:  userName,
		client:    client,
		saveFunc:  saveFunc,
	}
}

// SessionID returns the session id this conversation belongs to.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// UserName returns the owning user.
func (c *Conversation) UserName() string {
	return c.userName
}

// ModelType returns the model-type tag of the attached client.
func (c *Conversation) ModelType() string {
	return c.client.Type()
}

// Append adds a message to the in-memory history and hands it to the
// persistence pipeline on a detached goroutine. The message is returned
// before persistence is guaranteed.
func (c *Conversation) Append(content string, isUser bool) domain.Message {
	msg := domain.Message{
		SessionID: c.sessionID,
		UserName:  c.userName,
		Content:   content,
		IsUser:    isUser,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.saveFunc != nil {
		go func() {
			if err := c.saveFunc(context.Background(), msg); err != nil {
				slog.Error("message persistence failed",
					"session_id", c.sessionID, "username", c.userName, "error", err)
			}
		}()
	}

	return msg
}

// GenerateTurn appends the user's message, asks the model for a reply, and
// appends that reply. On model failure the user message stays appended; the
// error wraps ErrModelFailure.
func (c *Conversation) GenerateTurn(ctx context.Context, userText string) (string, error) {
	c.Append(userText, true)

	reply, err := c.client.Generate(ctx, c.history())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailure, err)
	}

	c.Append(reply, false)
	return reply, nil
}

// StreamTurn is GenerateTurn with incremental delivery. Chunks reach onChunk
// in generation order; chunks already emitted are not retracted if the stream
// fails partway.
func (c *Conversation) StreamTurn(ctx context.Context, userText string, onChunk func(string)) (string, error) {
	c.Append(userText, true)

	reply, err := c.client.Stream(ctx, c.history(), onChunk)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelFailure, err)
	}

	c.Append(reply, false)
	return reply, nil
}

// LoadHistory replaces the in-memory history wholesale. Used at bootstrap and
// lazy hydration only; never merges.
func (c *Conversation) LoadHistory(messages []domain.Message) {
	replaced := make([]domain.Message, len(messages))
	copy(replaced, messages)

	c.mu.Lock()
	c.messages = replaced
	c.mu.Unlock()
}

// Messages returns a copy of the history in append order.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// history converts the current messages to model-neutral role/content pairs.
// Only user and assistant roles are produced here; system prompts are the
// concern of individual model clients.
func (c *Conversation) history() []model.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.ChatMessage, 0, len(c.messages))
	for _, msg := range c.messages {
		role := model.RoleAssistant
		if msg.IsUser {
			role = model.RoleUser
		}
		out = append(out, model.ChatMessage{Role: role, Content: msg.Content})
	}
	return out
}
