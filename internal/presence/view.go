// Package presence derives which sessions are active in a room from the
// event log. It keeps no state of its own: every call reads the store.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// DefaultWindow is how far back a session's latest event may be.
const DefaultWindow = 10 * time.Minute

// Source returns the latest qualifying event per sender session.
type Source interface {
	LatestSessionEvents(ctx context.Context, roomID string, cutoff int64) ([]*model.Event, error)
}

// View computes presence rows for a room.
type View struct {
	source Source
	window time.Duration
	now    func() time.Time
}

// NewView returns a View over src. A non-positive window uses DefaultWindow.
func NewView(src Source, window time.Duration) *View {
	if window <= 0 {
		window = DefaultWindow
	}
	return &View{source: src, window: window, now: time.Now}
}

// Sessions returns one row per session with a qualifying event inside the
// window, most recent first. The result is never nil.
func (v *View) Sessions(ctx context.Context, roomID string) ([]model.PresenceSession, error) {
	cutoff := v.now().Add(-v.window).UnixMilli()
	events, err := v.source.LatestSessionEvents(ctx, roomID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("presence: %w", err)
	}

	sessions := make([]model.PresenceSession, 0, len(events))
	for _, evt := range events {
		sessions = append(sessions, model.PresenceSession{
			UserID:      evt.Sender.UserID,
			DisplayName: evt.Sender.UserID,
			SessionID:   evt.Sender.SessionID,
			Signal:      model.SignalFor(evt),
			UpdatedAt:   evt.CreatedAt,
		})
	}
	return sessions, nil
}
