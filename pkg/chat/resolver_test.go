package chat

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charla-ai/charla/pkg/model"
	"github.com/charla-ai/charla/pkg/store"
)

// memStore is an in-memory store.Store for core tests.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*model.Conversation
	personas      map[string]*model.Persona
	messages      map[string][]model.Message
}

var _ store.Store = &memStore{}

func newMemStore() *memStore {
	return &memStore{
		conversations: map[string]*model.Conversation{},
		personas:      map[string]*model.Persona{},
		messages:      map[string][]model.Message{},
	}
}

func (m *memStore) addPersona(p model.Persona) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.personas[p.ID] = &cp
}

func (m *memStore) GetOrCreateConversation(_ context.Context, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	c := &model.Conversation{ID: id, CreatedAt: time.Now()}
	m.conversations[id] = c
	cp := *c
	return &cp, nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) GetPersona(_ context.Context, id string) (*model.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.personas[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FirstPersona(_ context.Context) (*model.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Persona
	for _, p := range m.personas {
		all = append(all, p)
	}
	if len(all) == 0 {
		return nil, nil
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	cp := *all[0]
	return &cp, nil
}

func (m *memStore) SetConversationPersona(_ context.Context, conversationID, personaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[conversationID]
	if !ok {
		return errors.Errorf("conversation %s not found", conversationID)
	}
	c.PersonaID = personaID
	return nil
}

func (m *memStore) LastNTurns(_ context.Context, conversationID string, n int) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[conversationID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]model.Turn, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, model.TurnOf(msg))
	}
	return out, nil
}

func (m *memStore) AppendTurn(_ context.Context, conversationID string, role model.Role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[conversationID] = append(m.messages[conversationID], model.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (m *memStore) AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error {
	if err := m.AppendTurn(ctx, conversationID, model.RoleUser, userText); err != nil {
		return err
	}
	return m.AppendTurn(ctx, conversationID, model.RoleAssistant, assistantText)
}

func (m *memStore) ListPersonas(_ context.Context) ([]model.Persona, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Persona
	for _, p := range m.personas {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memStore) ListConversations(_ context.Context) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, c := range m.conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memStore) ListMessages(_ context.Context, conversationID string) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.messages[conversationID]...), nil
}

func (m *memStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *memStore) SeedPersonas(_ context.Context, personas []model.Persona) error {
	for _, p := range personas {
		m.addPersona(p)
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func TestResolveRejectsInvalidConversationIDs(t *testing.T) {
	r := NewResolver(newMemStore())

	for _, id := range []string{"", "   ", "not-a-uuid", "1234"} {
		_, _, err := r.Resolve(context.Background(), id, "")
		require.Error(t, err, "id %q", id)
		assert.True(t, IsInvalidIdentifier(err), "id %q should be an identifier error", id)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	st := newMemStore()
	r := NewResolver(st)
	id := uuid.NewString()

	c1, _, err := r.Resolve(context.Background(), id, "")
	require.NoError(t, err)
	c2, _, err := r.Resolve(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Len(t, st.conversations, 1)
}

func TestResolveAssignsRequestedPersona(t *testing.T) {
	st := newMemStore()
	base := time.Now()
	first := model.Persona{ID: uuid.NewString(), Name: "First", CreatedAt: base}
	second := model.Persona{ID: uuid.NewString(), Name: "Second", CreatedAt: base.Add(time.Hour)}
	st.addPersona(first)
	st.addPersona(second)

	r := NewResolver(st)
	conv, persona, err := r.Resolve(context.Background(), uuid.NewString(), second.ID)
	require.NoError(t, err)
	require.NotNil(t, persona)
	assert.Equal(t, second.ID, persona.ID)
	assert.Equal(t, second.ID, conv.PersonaID)
}

func TestResolveFallsBackToDefaultPersona(t *testing.T) {
	st := newMemStore()
	base := time.Now()
	first := model.Persona{ID: uuid.NewString(), Name: "First", CreatedAt: base}
	second := model.Persona{ID: uuid.NewString(), Name: "Second", CreatedAt: base.Add(time.Hour)}
	st.addPersona(first)
	st.addPersona(second)

	r := NewResolver(st)

	t.Run("no persona requested", func(t *testing.T) {
		_, persona, err := r.Resolve(context.Background(), uuid.NewString(), "")
		require.NoError(t, err)
		require.NotNil(t, persona)
		assert.Equal(t, first.ID, persona.ID)
	})

	t.Run("unknown persona requested", func(t *testing.T) {
		_, persona, err := r.Resolve(context.Background(), uuid.NewString(), uuid.NewString())
		require.NoError(t, err)
		require.NotNil(t, persona)
		assert.Equal(t, first.ID, persona.ID)
	})

	t.Run("malformed persona id", func(t *testing.T) {
		_, persona, err := r.Resolve(context.Background(), uuid.NewString(), "garbage")
		require.NoError(t, err)
		require.NotNil(t, persona)
		assert.Equal(t, first.ID, persona.ID)
	})
}

func TestResolveToleratesNoPersonasAtAll(t *testing.T) {
	r := NewResolver(newMemStore())
	conv, persona, err := r.Resolve(context.Background(), uuid.NewString(), "")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Nil(t, persona)
	assert.Empty(t, conv.PersonaID)
}

// The first persona a conversation gets is sticky: different persona_id
// values on later messages must never change the assignment. This is a
// deliberate policy, not a bug.
func TestResolvePersonaIsSticky(t *testing.T) {
	st := newMemStore()
	base := time.Now()
	first := model.Persona{ID: uuid.NewString(), Name: "First", CreatedAt: base}
	second := model.Persona{ID: uuid.NewString(), Name: "Second", CreatedAt: base.Add(time.Hour)}
	st.addPersona(first)
	st.addPersona(second)

	r := NewResolver(st)
	convID := uuid.NewString()

	_, persona, err := r.Resolve(context.Background(), convID, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, persona.ID)

	for range 3 {
		_, persona, err = r.Resolve(context.Background(), convID, second.ID)
		require.NoError(t, err)
		require.NotNil(t, persona)
		assert.Equal(t, first.ID, persona.ID)
	}
}

func TestHistoryWindowBoundsAndOrder(t *testing.T) {
	st := newMemStore()
	convID := uuid.NewString()
	_, err := st.GetOrCreateConversation(context.Background(), convID)
	require.NoError(t, err)

	h := NewHistory(st, 4)
	for i := 0; i < 6; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		require.NoError(t, st.AppendTurn(context.Background(), convID, role, string(rune('a'+i))))
	}

	window, err := h.Window(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, "c", window[0].Content)
	assert.Equal(t, "f", window[3].Content)

	// Appending a turn is reflected on the next query; the window is never
	// cached between messages.
	require.NoError(t, st.AppendTurn(context.Background(), convID, model.RoleUser, "g"))
	window, err = h.Window(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, window, 4)
	assert.Equal(t, "g", window[3].Content)
}
