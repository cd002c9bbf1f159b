package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/charla-ai/charla/pkg/model"
	"github.com/charla-ai/charla/pkg/store"
)

// DefaultMaxHistory is the history window size used when none is configured.
// Ten turns is five full user/assistant exchanges.
const DefaultMaxHistory = 10

// History materializes the bounded, most-recent slice of a conversation's
// turns. It is re-queried on every inbound message and never cached: other
// turns may have been written since the last exchange.
type History struct {
	store store.Store
	max   int
}

func NewHistory(st store.Store, max int) *History {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &History{store: st, max: max}
}

// Window returns the last max turns of the conversation, oldest-first,
// excluding the in-flight utterance (which has not been persisted yet).
func (h *History) Window(ctx context.Context, conversationID string) ([]model.Turn, error) {
	turns, err := h.store.LastNTurns(ctx, conversationID, h.max)
	if err != nil {
		return nil, errors.Wrap(err, "load history window")
	}
	return turns, nil
}
