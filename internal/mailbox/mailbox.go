// Package mailbox delivers targeted events to their recipient exactly once,
// piggybacked on the recipient's next emit.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/transform"
)

// Consumer atomically removes and returns targeted events.
type Consumer interface {
	ConsumeTargeted(ctx context.Context, roomID, userID, sessionID string) ([]*model.Event, error)
}

// Mailbox drains targeted events for a participant.
type Mailbox struct {
	store      Consumer
	transforms *transform.Registry
}

// New returns a Mailbox reading from c. transforms may be nil.
func New(c Consumer, transforms *transform.Registry) *Mailbox {
	return &Mailbox{store: c, transforms: transforms}
}

// Drain consumes every live targeted event addressed to p in roomID and
// returns their payloads in creation order, converted to format when a
// transformer is registered. The result is never nil.
func (m *Mailbox) Drain(ctx context.Context, roomID string, p model.Participant, format string) ([]json.RawMessage, error) {
	events, err := m.store.ConsumeTargeted(ctx, roomID, p.UserID, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("drain mailbox: %w", err)
	}
	messages := make([]json.RawMessage, 0, len(events))
	for _, evt := range events {
		messages = append(messages, m.transforms.Apply(evt, format).Payload)
	}
	return messages, nil
}
