// Package model holds the domain entities shared across the store, the chat
// core and the gateway.
package model

import "time"

// Role identifies which party authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two persisted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Persona is an immutable character profile that generated replies must
// embody. Personas are reference data created out-of-band (see the seed
// command); the chat core only reads and assigns them.
type Persona struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Role       string    `json:"role" yaml:"role"`
	Biography  string    `json:"biography" yaml:"biography"`
	KeyTraits  []string  `json:"key_traits" yaml:"key_traits"`
	SpeechTics []string  `json:"speech_tics" yaml:"speech_tics"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// Conversation is a single chat thread, identified by a client-supplied UUID.
// PersonaID is empty until the first resolution assigns one; once set it is
// never reassigned (sticky first persona).
type Conversation struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one immutable turn of a conversation.
type Message struct {
	ID             string    `json:"-"`
	ConversationID string    `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"timestamp"`
}

// Turn is the prompt-facing projection of a message: just who said what.
// The history window and the composer operate on turns, not full messages.
type Turn struct {
	Role    Role
	Content string
}

// TurnOf projects a stored message onto its prompt representation.
func TurnOf(m Message) Turn {
	return Turn{Role: m.Role, Content: m.Content}
}
