// Package store provides durable persistence for conversations, personas and
// messages. The chat core talks to the Store interface; the SQLite
// implementation lives in sqlite.go.
package store

import (
	"context"

	"github.com/charla-ai/charla/pkg/model"
)

// Store is the persistence contract consumed by the chat core and the read
// API. Personas are reference data: the store can load them (SeedPersonas)
// but the core never creates or mutates them.
type Store interface {
	// GetOrCreateConversation returns the conversation with the given UUID,
	// creating it on first use. Repeated calls with the same id return the
	// same entity.
	GetOrCreateConversation(ctx context.Context, id string) (*model.Conversation, error)

	// GetPersona returns the persona with the given id, or nil when no such
	// persona exists.
	GetPersona(ctx context.Context, id string) (*model.Persona, error)

	// FirstPersona returns the earliest-created persona by a stable ordering,
	// or nil when no personas exist at all.
	FirstPersona(ctx context.Context) (*model.Persona, error)

	// SetConversationPersona assigns a persona to a conversation. Callers
	// enforce the sticky-first-persona policy; the store just writes.
	SetConversationPersona(ctx context.Context, conversationID, personaID string) error

	// LastNTurns returns the most recent n turns of a conversation,
	// oldest-first.
	LastNTurns(ctx context.Context, conversationID string, n int) ([]model.Turn, error)

	// AppendTurn appends a single turn to a conversation.
	AppendTurn(ctx context.Context, conversationID string, role model.Role, content string) error

	// AppendExchange appends a user turn followed by an assistant turn in one
	// transaction, so the pair never diverges.
	AppendExchange(ctx context.Context, conversationID, userText, assistantText string) error

	// ListPersonas returns all personas ordered by creation time.
	ListPersonas(ctx context.Context) ([]model.Persona, error)

	// ListConversations returns all conversations, newest first.
	ListConversations(ctx context.Context) ([]model.Conversation, error)

	// GetConversation returns a conversation or nil when it does not exist.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)

	// ListMessages returns all messages of a conversation in chronological
	// order.
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, id string) error

	// SeedPersonas upserts persona reference data by id.
	SeedPersonas(ctx context.Context, personas []model.Persona) error

	Close() error
}
