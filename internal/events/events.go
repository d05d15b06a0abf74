// Package events mirrors broadcast room events onto NATS so processes
// outside the server (archivers, bridges, the CLI tail command) can follow
// rooms without holding an HTTP stream. The in-process bus remains the
// delivery path for stream viewers.
package events

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// SubjectPrefix is the root of every mirrored subject.
const SubjectPrefix = "agentsmith.rooms"

// Header names set on mirrored messages.
const (
	HeaderMsgID     = "Nats-Msg-Id"
	HeaderEventType = "Agentsmith-Event-Type"
)

// ErrTargeted is returned when asked to mirror a targeted event.
var ErrTargeted = errors.New("events: targeted events are not mirrored")

// RoomSubject returns the subject carrying roomID's broadcast events. An
// empty roomID or "*" matches every room.
func RoomSubject(roomID string) string {
	if roomID == "" {
		roomID = "*"
	}
	return SubjectPrefix + "." + roomID + ".events"
}

// Publisher mirrors broadcast events.
type Publisher interface {
	PublishEvent(ctx context.Context, evt *model.Event) error
	Close() error
}

// Subscriber follows mirrored events.
type Subscriber interface {
	// SubscribeRoom delivers decoded events for roomID ("" for all rooms) on
	// the returned channel. Call the returned cancel function to unsubscribe
	// and close the channel.
	SubscribeRoom(roomID string) (<-chan *model.Event, func(), error)
	Close() error
}
