package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/charla-ai/charla/pkg/model"
	"github.com/charla-ai/charla/pkg/store"
)

// Resolver turns a conversation id and an optional persona id into durable
// entities. Conversations are created lazily on first use; persona assignment
// is sticky: the first persona a conversation gets is the one it keeps, and
// later resolutions never reassign it even when a different persona_id
// arrives. That stickiness is an explicit policy, not an accident.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve validates conversationID, loads or creates the conversation and
// applies the persona assignment policy. The returned persona may be nil when
// no persona reference data exists at all; downstream stages tolerate that.
func (r *Resolver) Resolve(ctx context.Context, conversationID, personaID string) (*model.Conversation, *model.Persona, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, nil, &InvalidIdentifierError{Field: "conversation_id"}
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, nil, &InvalidIdentifierError{Field: "conversation_id", Value: conversationID}
	}

	conv, err := r.store.GetOrCreateConversation(ctx, conversationID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve conversation")
	}

	if conv.PersonaID != "" {
		persona, err := r.store.GetPersona(ctx, conv.PersonaID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "load assigned persona")
		}
		if persona == nil {
			// Assigned persona vanished from reference data; keep going
			// without one rather than failing the exchange.
			log.Warn().Str("conversation_id", conv.ID).Str("persona_id", conv.PersonaID).
				Msg("assigned persona no longer exists")
		}
		return conv, persona, nil
	}

	persona, err := r.pickPersona(ctx, personaID)
	if err != nil {
		return nil, nil, err
	}
	if persona == nil {
		return conv, nil, nil
	}
	if err := r.store.SetConversationPersona(ctx, conv.ID, persona.ID); err != nil {
		return nil, nil, errors.Wrap(err, "assign persona")
	}
	conv.PersonaID = persona.ID
	return conv, persona, nil
}

// pickPersona resolves the requested persona, falling back to the
// earliest-created one. A malformed or unknown persona_id is not an error,
// it just triggers the fallback.
func (r *Resolver) pickPersona(ctx context.Context, personaID string) (*model.Persona, error) {
	personaID = strings.TrimSpace(personaID)
	if personaID != "" {
		if _, err := uuid.Parse(personaID); err == nil {
			persona, err := r.store.GetPersona(ctx, personaID)
			if err != nil {
				return nil, errors.Wrap(err, "look up requested persona")
			}
			if persona != nil {
				return persona, nil
			}
		}
		log.Debug().Str("persona_id", personaID).Msg("requested persona not found, using default")
	}
	persona, err := r.store.FirstPersona(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "look up default persona")
	}
	return persona, nil
}
