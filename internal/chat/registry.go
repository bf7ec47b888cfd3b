package chat

import (
	"log/slog"
	"sync"

	"github.com/161043261/ai-agent-go/internal/domain"
	"github.com/161043261/ai-agent-go/internal/model"
)

// DefaultTitle is the listed name of a session that has no user message yet.
const DefaultTitle = "New Chat"

// titleLimit caps derived session titles at this many runes.
const titleLimit = 50

// Registry is the process-wide index of live conversations, keyed by
// (userName, sessionID). At most one Conversation exists per pair. The maps
// are mutex-guarded; entries never expire, only explicit Remove evicts.
type Registry struct {
	factory  *model.Factory
	saveFunc SaveFunc

	mu     sync.RWMutex
	byUser map[string]map[string]*Conversation
}

// NewRegistry creates an empty registry. saveFunc is attached to every
// conversation the registry creates.
func NewRegistry(factory *model.Factory, saveFunc SaveFunc) *Registry {
	return &Registry{
		factory:  factory,
		saveFunc: saveFunc,
		byUser:   make(map[string]map[string]*Conversation),
	}
}

// GetOrCreate returns the conversation for (userName, sessionID), creating it
// with a client for modelType if absent. Idempotent: repeated calls return
// the same instance.
func (r *Registry) GetOrCreate(userName, sessionID, modelType string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byUser[userName]
	if !ok {
		sessions = make(map[string]*Conversation)
		r.byUser[userName] = sessions
	}

	conv, ok := sessions[sessionID]
	if !ok {
		client := r.factory.Create(modelType, userName)
		conv = NewConversation(client, sessionID, userName, r.saveFunc)
		sessions[sessionID] = conv
		slog.Info("conversation created",
			"username", userName, "session_id", sessionID, "model_type", client.Type())
	}

	return conv
}

// Get returns the conversation for (userName, sessionID) if present.
func (r *Registry) Get(userName, sessionID string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions, ok := r.byUser[userName]
	if !ok {
		return nil, false
	}
	conv, ok := sessions[sessionID]
	return conv, ok
}

// Remove evicts a conversation and prunes the user's sub-map when it becomes
// empty. Reports whether anything was removed.
func (r *Registry) Remove(userName, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.byUser[userName]
	if !ok {
		return false
	}
	if _, ok := sessions[sessionID]; !ok {
		return false
	}

	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.byUser, userName)
	}
	return true
}

// ListSessions returns summaries for the user's live conversations. The
// display name is derived from the first user message, truncated at 50 runes
// with an ellipsis, or DefaultTitle if no user message exists yet.
func (r *Registry) ListSessions(userName string) []domain.SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.byUser[userName]
	out := make([]domain.SessionInfo, 0, len(sessions))
	for sessionID, conv := range sessions {
		out = append(out, domain.SessionInfo{
			SessionID: sessionID,
			Name:      derivedTitle(conv),
		})
	}
	return out
}

// Users returns every user name with at least one live conversation.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userName := range r.byUser {
		users = append(users, userName)
	}
	return users
}

// Stats reports the number of users and live conversations. Diagnostic only.
func (r *Registry) Stats() (totalUsers, totalSessions int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sessions := range r.byUser {
		totalSessions += len(sessions)
	}
	return len(r.byUser), totalSessions
}

func derivedTitle(conv *Conversation) string {
	for _, msg := range conv.Messages() {
		if msg.IsUser {
			return SessionTitle(msg.Content)
		}
	}
	return DefaultTitle
}

// SessionTitle truncates a message to the fixed title length, appending an
// ellipsis when it was cut.
func SessionTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleLimit {
		return message
	}
	return string(runes[:titleLimit]) + "..."
}
