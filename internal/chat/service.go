package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/161043261/ai-agent-go/internal/cache"
	"github.com/161043261/ai-agent-go/internal/domain"
	"github.com/161043261/ai-agent-go/internal/model"
	"github.com/161043261/ai-agent-go/internal/shared"
	"github.com/161043261/ai-agent-go/internal/store"
)

// Service exposes the chat operations backed by the conversation registry,
// the cache/queue abstraction and durable storage. One instance per process.
//
// Appended messages flow: registry conversation -> queue publish -> the
// persistence consumer -> durable storage. A publish or write failure never
// fails the chat turn.
type Service struct {
	registry *Registry
	repo     store.Repository
	cache    cache.Cache
}

// NewService wires the registry to the queue: every message appended to any
// conversation is published for asynchronous persistence.
func NewService(repo store.Repository, c cache.Cache, factory *model.Factory) *Service {
	s := &Service{
		repo:  repo,
		cache: c,
	}
	s.registry = NewRegistry(factory, func(ctx context.Context, msg domain.Message) error {
		return c.Publish(ctx, domain.QueueMessageFrom(msg))
	})
	return s
}

// Registry exposes the conversation registry, mostly for diagnostics.
func (s *Service) Registry() *Registry {
	return s.registry
}

// StartPersistence initializes the queue and starts the single persistence
// consumer. Called once at boot.
func (s *Service) StartPersistence(ctx context.Context) error {
	if err := s.cache.InitQueue(ctx); err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	s.cache.StartConsumer(ctx, s.persistMessage)
	slog.Info("persistence consumer started", "provider", s.cache.Provider())
	return nil
}

const (
	persistMaxRetries = 3
	persistBaseDelay  = 50 * time.Millisecond
)

// persistMessage is the queue consumer handler: one durable append per queued
// message. Duplicated deliveries produce duplicate rows by design. SQLITE_BUSY
// and locked errors are retried with exponential backoff before the message is
// given up on.
func (s *Service) persistMessage(ctx context.Context, qm domain.QueueMessage) error {
	msg := domain.Message{
		SessionID: qm.SessionID,
		UserName:  qm.UserName,
		Content:   qm.Content,
		IsUser:    qm.IsUser,
		CreatedAt: qm.CreatedAt,
	}

	var err error
	for i := 0; i < persistMaxRetries; i++ {
		err = s.repo.CreateMessage(ctx, &msg)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) && i < persistMaxRetries-1 {
			delay := persistBaseDelay * time.Duration(1<<i)
			slog.Debug("database locked during message persist, retrying",
				"session_id", qm.SessionID, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return fmt.Errorf("persist message: %w", err)
}

// Bootstrap replays durable storage into the registry: all messages grouped
// by (user, session), loaded in stored order. Runs once at startup. Failure
// is non-fatal; sessions hydrate lazily on first access instead.
func (s *Service) Bootstrap(ctx context.Context) error {
	messages, err := s.repo.AllMessages(ctx)
	if err != nil {
		return fmt.Errorf("load messages for bootstrap: %w", err)
	}

	type key struct{ userName, sessionID string }
	groups := make(map[key][]domain.Message)
	var order []key

	for _, msg := range messages {
		k := key{msg.UserName, msg.SessionID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], msg)
	}

	for _, k := range order {
		conv := s.registry.GetOrCreate(k.userName, k.sessionID, model.TypeCompletion)
		conv.LoadHistory(groups[k])
	}

	users, sessions := s.registry.Stats()
	slog.Info("conversation state rehydrated",
		"messages", len(messages), "sessions", sessions, "users", users)
	return nil
}

// CreateSessionAndSend creates a durable session, seeds its conversation and
// runs one synchronous turn. Returns the new session id and the reply. When
// the turn fails the session id is still returned: the session row and the
// user's message exist, and the caller may retry against them.
func (s *Service) CreateSessionAndSend(ctx context.Context, userName, userText, modelType string) (string, string, error) {
	sessionID, err := s.createSession(ctx, userName, userText)
	if err != nil {
		return "", "", err
	}

	conv := s.registry.GetOrCreate(userName, sessionID, modelType)
	reply, err := conv.GenerateTurn(ctx, userText)
	if err != nil {
		return sessionID, "", err
	}
	return sessionID, reply, nil
}

// CreateSessionAndStream is CreateSessionAndSend with streamed delivery.
func (s *Service) CreateSessionAndStream(ctx context.Context, userName, userText, modelType string, onChunk func(string)) (string, string, error) {
	sessionID, err := s.createSession(ctx, userName, userText)
	if err != nil {
		return "", "", err
	}

	conv := s.registry.GetOrCreate(userName, sessionID, modelType)
	reply, err := conv.StreamTurn(ctx, userText, onChunk)
	if err != nil {
		return sessionID, "", err
	}
	return sessionID, reply, nil
}

func (s *Service) createSession(ctx context.Context, userName, firstMessage string) (string, error) {
	session := &domain.Session{
		ID:       uuid.NewString(),
		UserName: userName,
		Title:    SessionTitle(firstMessage),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session.ID, nil
}

// SendMessage runs one synchronous turn against an existing session. The
// session must belong to userName; a send never creates a session.
func (s *Service) SendMessage(ctx context.Context, userName, sessionID, userText, modelType string) (string, error) {
	conv, err := s.resolveConversation(ctx, userName, sessionID, modelType)
	if err != nil {
		return "", err
	}
	return conv.GenerateTurn(ctx, userText)
}

// StreamMessage is SendMessage with streamed delivery.
func (s *Service) StreamMessage(ctx context.Context, userName, sessionID, userText, modelType string, onChunk func(string)) (string, error) {
	conv, err := s.resolveConversation(ctx, userName, sessionID, modelType)
	if err != nil {
		return "", err
	}
	return conv.StreamTurn(ctx, userText, onChunk)
}

// resolveConversation finds the live conversation or lazily hydrates it from
// durable storage after an ownership check.
func (s *Service) resolveConversation(ctx context.Context, userName, sessionID, modelType string) (*Conversation, error) {
	if conv, ok := s.registry.Get(userName, sessionID); ok {
		return conv, nil
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", err)
	}
	if session.UserName != userName {
		return nil, ErrSessionNotFound
	}

	messages, err := s.repo.MessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	conv := s.registry.GetOrCreate(userName, sessionID, modelType)
	conv.LoadHistory(messages)
	return conv, nil
}

// History returns the session's messages in creation order, from memory when
// the conversation is live, else from durable storage after an ownership
// check.
func (s *Service) History(ctx context.Context, userName, sessionID string) ([]domain.History, error) {
	if conv, ok := s.registry.Get(userName, sessionID); ok {
		return toHistory(conv.Messages()), nil
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("look up session: %w", err)
	}
	if session.UserName != userName {
		return nil, ErrSessionNotFound
	}

	messages, err := s.repo.MessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	return toHistory(messages), nil
}

// ListSessions returns the user's session summaries: live conversations when
// any exist, otherwise the durable session records.
func (s *Service) ListSessions(ctx context.Context, userName string) ([]domain.SessionInfo, error) {
	if live := s.registry.ListSessions(userName); len(live) > 0 {
		return live, nil
	}

	sessions, err := s.repo.SessionsByUserName(ctx, userName)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]domain.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		name := session.Title
		if name == "" {
			name = DefaultTitle
		}
		out = append(out, domain.SessionInfo{SessionID: session.ID, Name: name})
	}
	return out, nil
}

// RemoveSession evicts the live conversation for (userName, sessionID).
func (s *Service) RemoveSession(userName, sessionID string) bool {
	return s.registry.Remove(userName, sessionID)
}

func toHistory(messages []domain.Message) []domain.History {
	out := make([]domain.History, 0, len(messages))
	for _, msg := range messages {
		out = append(out, domain.History{IsUser: msg.IsUser, Content: msg.Content})
	}
	return out
}
