package chat

import (
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/161043261/ai-agent-go/internal/config"
	"github.com/161043261/ai-agent-go/internal/model"
)

func newTestFactory() *model.Factory {
	factory := model.NewFactory(config.ModelConfig{}, nil)
	factory.Register(model.TypeCompletion, func(config.ModelConfig, string) model.Client {
		return &stubClient{reply: "ok"}
	})
	return factory
}

func TestRegistry_GetOrCreateIdentity(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	first := reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	second := reg.GetOrCreate("alice", "session-1", model.TypeCompletion)

	assert.Same(t, first, second, "same (user, session) must return the same instance")
}

func TestRegistry_GetMissing(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	_, ok := reg.Get("alice", "session-1")
	assert.False(t, ok)
}

func TestRegistry_RemovePrunesUser(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	require.True(t, reg.Remove("alice", "session-1"))

	assert.Empty(t, reg.ListSessions("alice"))
	assert.NotContains(t, reg.Users(), "alice", "last session removal must drop the user entry")

	assert.False(t, reg.Remove("alice", "session-1"), "second remove reports nothing removed")
}

func TestRegistry_RemoveKeepsOtherSessions(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	reg.GetOrCreate("alice", "session-2", model.TypeCompletion)

	require.True(t, reg.Remove("alice", "session-1"))

	assert.Contains(t, reg.Users(), "alice")
	_, ok := reg.Get("alice", "session-2")
	assert.True(t, ok)
}

func TestRegistry_TitleDerivation(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	long := strings.Repeat("x", 80)
	conv := reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	conv.Append(long, true)

	sessions := reg.ListSessions("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, strings.Repeat("x", 50)+"...", sessions[0].Name)
}

func TestRegistry_TitleDefaultsWithoutUserMessage(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	conv := reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	conv.Append("assistant greeting", false)

	sessions := reg.ListSessions("alice")
	require.Len(t, sessions, 1)
	assert.Equal(t, DefaultTitle, sessions[0].Name)
}

func TestSessionTitle_ShortMessageUntouched(t *testing.T) {
	assert.Equal(t, "hello", SessionTitle("hello"))

	exactly50 := strings.Repeat("y", 50)
	assert.Equal(t, exactly50, SessionTitle(exactly50))
}

func TestRegistry_Stats(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	reg.GetOrCreate("alice", "session-1", model.TypeCompletion)
	reg.GetOrCreate("alice", "session-2", model.TypeCompletion)
	reg.GetOrCreate("bob", "session-3", model.TypeCompletion)

	users, sessions := reg.Stats()
	assert.Equal(t, 2, users)
	assert.Equal(t, 3, sessions)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(newTestFactory(), nil)

	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			user := "user-" + strconv.Itoa(worker)
			for i := 0; i < 200; i++ {
				session := "session-" + strconv.Itoa(i)
				reg.GetOrCreate(user, session, model.TypeCompletion)
				reg.Get(user, session)
				reg.ListSessions(user)
				if i%3 == 0 {
					reg.Remove(user, session)
				}
			}
		}(worker)
	}
	wg.Wait()

	users, sessions := reg.Stats()
	assert.Equal(t, 4, users)
	assert.Positive(t, sessions)
}
