package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/161043261/ai-agent-go/internal/cache"
	"github.com/161043261/ai-agent-go/internal/config"
	"github.com/161043261/ai-agent-go/internal/domain"
	"github.com/161043261/ai-agent-go/internal/model"
	"github.com/161043261/ai-agent-go/internal/store"
)

type serviceEnv struct {
	repo    store.Repository
	cache   cache.Cache
	factory *model.Factory
	svc     *Service
}

// newServiceEnv builds a Service over a temp SQLite database and the
// in-process cache backend, with a scripted model client behind tag "1".
func newServiceEnv(t *testing.T, client model.Client) *serviceEnv {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	backend, err := cache.New(config.RedisConfig{Enabled: false}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	factory := model.NewFactory(config.ModelConfig{}, nil)
	factory.Register(model.TypeCompletion, func(config.ModelConfig, string) model.Client {
		return client
	})

	svc := NewService(repo, backend, factory)
	require.NoError(t, svc.StartPersistence(context.Background()))

	return &serviceEnv{repo: repo, cache: backend, factory: factory, svc: svc}
}

func TestService_NewSessionScenario(t *testing.T) {
	env := newServiceEnv(t, &stubClient{reply: "hi, how can I help?"})
	ctx := context.Background()

	sessionID, reply, err := env.svc.CreateSessionAndSend(ctx, "alice", "hello", model.TypeCompletion)
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.NotEmpty(t, reply)

	history, err := env.svc.History(ctx, "alice", sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].IsUser)
	assert.Equal(t, "hello", history[0].Content)
	assert.False(t, history[1].IsUser)
	assert.Equal(t, reply, history[1].Content)
}

func TestService_SendToForeignSessionDenied(t *testing.T) {
	env := newServiceEnv(t, &stubClient{reply: "secret"})
	ctx := context.Background()

	sessionID, _, err := env.svc.CreateSessionAndSend(ctx, "bob", "bob's business", model.TypeCompletion)
	require.NoError(t, err)

	_, err = env.svc.SendMessage(ctx, "alice", sessionID, "let me in", model.TypeCompletion)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = env.svc.History(ctx, "alice", sessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestService_SendToUnknownSessionDenied(t *testing.T) {
	env := newServiceEnv(t, &stubClient{reply: "x"})

	_, err := env.svc.SendMessage(context.Background(), "alice", "no-such-session", "hello", model.TypeCompletion)
	require.ErrorIs(t, err, ErrSessionNotFound, "send must never create a session")
}

func TestService_PersistAndBootstrapRoundTrip(t *testing.T) {
	env := newServiceEnv(t, &stubClient{reply: "pong"})
	ctx := context.Background()

	sessionID, _, err := env.svc.CreateSessionAndSend(ctx, "alice", "ping", model.TypeCompletion)
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, "alice", sessionID, "ping again", model.TypeCompletion)
	require.NoError(t, err)

	// Persistence is asynchronous; wait for the consumer to drain.
	require.Eventually(t, func() bool {
		stored, err := env.repo.MessagesBySession(ctx, sessionID)
		return err == nil && len(stored) == 4
	}, 2*time.Second, 10*time.Millisecond)

	// A fresh service over the same database replays durable state.
	restarted := NewService(env.repo, env.cache, env.factory)
	require.NoError(t, restarted.Bootstrap(ctx))

	conv, ok := restarted.Registry().Get("alice", sessionID)
	require.True(t, ok, "bootstrap must seed the registry")

	messages := conv.Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, "ping", messages[0].Content)
	assert.Equal(t, "pong", messages[1].Content)
	assert.Equal(t, "ping again", messages[2].Content)
	assert.Equal(t, "pong", messages[3].Content)
	for _, msg := range messages {
		assert.Equal(t, sessionID, msg.SessionID)
		assert.Equal(t, "alice", msg.UserName)
	}
}

func TestService_LazyHydrationOnSend(t *testing.T) {
	client := &stubClient{reply: "rehydrated"}
	env := newServiceEnv(t, client)
	ctx := context.Background()

	// Seed durable state directly, bypassing the registry.
	require.NoError(t, env.repo.CreateSession(ctx, &domain.Session{
		ID: "cold-session", UserName: "alice", Title: "old chat",
	}))
	require.NoError(t, env.repo.CreateMessage(ctx, &domain.Message{
		SessionID: "cold-session", UserName: "alice", Content: "earlier question", IsUser: true,
	}))
	require.NoError(t, env.repo.CreateMessage(ctx, &domain.Message{
		SessionID: "cold-session", UserName: "alice", Content: "earlier answer", IsUser: false,
	}))

	_, err := env.svc.SendMessage(ctx, "alice", "cold-session", "and now?", model.TypeCompletion)
	require.NoError(t, err)

	// The model saw the stored turns followed by the new question.
	require.Len(t, client.history, 1)
	seen := client.history[0]
	require.Len(t, seen, 3)
	assert.Equal(t, "earlier question", seen[0].Content)
	assert.Equal(t, "earlier answer", seen[1].Content)
	assert.Equal(t, "and now?", seen[2].Content)
}

func TestService_ListSessionsFallsBackToStore(t *testing.T) {
	env := newServiceEnv(t, &stubClient{reply: "x"})
	ctx := context.Background()

	require.NoError(t, env.repo.CreateSession(ctx, &domain.Session{
		ID: "stored-session", UserName: "alice", Title: "stored title",
	}))
	require.NoError(t, env.repo.CreateSession(ctx, &domain.Session{
		ID: "untitled-session", UserName: "alice",
	}))

	sessions, err := env.svc.ListSessions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	names := make(map[string]string, len(sessions))
	for _, info := range sessions {
		names[info.SessionID] = info.Name
	}
	assert.Equal(t, "stored title", names["stored-session"])
	assert.Equal(t, DefaultTitle, names["untitled-session"])
}

func TestService_StreamMessage(t *testing.T) {
	env := newServiceEnv(t, &stubClient{chunks: []string{"str", "eam"}})
	ctx := context.Background()

	sessionID, reply, err := env.svc.CreateSessionAndStream(ctx, "alice", "go", model.TypeCompletion, func(string) {})
	require.NoError(t, err)
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, "stream", reply)

	var chunks []string
	reply, err = env.svc.StreamMessage(ctx, "alice", sessionID, "more", model.TypeCompletion, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, "stream", reply)
	assert.Equal(t, []string{"str", "eam"}, chunks)
}

func TestService_NewSessionModelFailureKeepsSessionID(t *testing.T) {
	env := newServiceEnv(t, &stubClient{err: errors.New("model down")})
	ctx := context.Background()

	sessionID, _, err := env.svc.CreateSessionAndSend(ctx, "alice", "hello", model.TypeCompletion)
	require.ErrorIs(t, err, ErrModelFailure)
	require.NotEmpty(t, sessionID, "the created session id survives the failed turn")

	session, err := env.repo.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", session.UserName)

	conv, ok := env.svc.Registry().Get("alice", sessionID)
	require.True(t, ok)
	messages := conv.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

// lockedRepo fails CreateMessage with a busy error a fixed number of times
// before delegating to the real store.
type lockedRepo struct {
	store.Repository

	mu       sync.Mutex
	failures int
	attempts int
}

func (r *lockedRepo) CreateMessage(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	r.attempts++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	r.mu.Unlock()

	if fail {
		return errors.New("insert message: database is locked (5) (SQLITE_BUSY)")
	}
	return r.Repository.CreateMessage(ctx, msg)
}

func (r *lockedRepo) attemptCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

func TestService_PersistRetriesOnBusyDatabase(t *testing.T) {
	base, err := store.NewSQLite(filepath.Join(t.TempDir(), "busy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })

	repo := &lockedRepo{Repository: base, failures: 2}

	backend, err := cache.New(config.RedisConfig{Enabled: false}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	factory := model.NewFactory(config.ModelConfig{}, nil)
	factory.Register(model.TypeCompletion, func(config.ModelConfig, string) model.Client {
		return &stubClient{reply: "pong"}
	})

	svc := NewService(repo, backend, factory)
	require.NoError(t, svc.StartPersistence(context.Background()))

	ctx := context.Background()
	sessionID, _, err := svc.CreateSessionAndSend(ctx, "alice", "ping", model.TypeCompletion)
	require.NoError(t, err)

	// Both turn halves land despite the two busy rejections.
	require.Eventually(t, func() bool {
		stored, err := base.MessagesBySession(ctx, sessionID)
		return err == nil && len(stored) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 4, repo.attemptCount(), "two busy failures retried, then two clean writes")
}
