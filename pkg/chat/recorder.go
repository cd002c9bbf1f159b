package chat

import (
	"context"

	"github.com/pkg/errors"

	"github.com/charla-ai/charla/pkg/store"
)

// Recorder persists a completed exchange. It is only invoked after the
// pipeline has produced a final reply, so a user turn is never written ahead
// of its assistant turn.
type Recorder struct {
	store store.Store
}

func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record appends the user turn and the assistant turn as one atomic pair.
func (r *Recorder) Record(ctx context.Context, conversationID, userText, assistantText string) error {
	return errors.Wrap(
		r.store.AppendExchange(ctx, conversationID, userText, assistantText),
		"record exchange",
	)
}
