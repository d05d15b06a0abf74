package model

import "encoding/json"

// Participant identifies a user and, optionally, one of their running
// sessions (a single client process).
type Participant struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
}

// Event is an immutable record emitted into a room. Timestamps are Unix
// milliseconds. An event with a non-nil Target is a targeted (private)
// event; otherwise it is a broadcast event.
type Event struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	Type       string          `json:"type"`
	Format     string          `json:"format"`
	Sender     Participant     `json:"sender"`
	Target     *Participant    `json:"target"`
	Payload    json.RawMessage `json:"payload"`
	TTLSeconds int             `json:"ttl_seconds"`
	CreatedAt  int64           `json:"created_at"`
	ExpiresAt  int64           `json:"expires_at"`
}

// IsTargeted reports whether the event is addressed to a specific user.
func (e *Event) IsTargeted() bool {
	return e.Target != nil && e.Target.UserID != ""
}

// Clone returns a shallow copy of the event with its own Target and Payload.
func (e *Event) Clone() *Event {
	c := *e
	if e.Target != nil {
		t := *e.Target
		c.Target = &t
	}
	if e.Payload != nil {
		c.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return &c
}

// EventInput is the body of an emit request.
type EventInput struct {
	RoomID  string          `json:"room_id"`
	Type    string          `json:"type"`
	Format  string          `json:"format"`
	Sender  Participant     `json:"sender"`
	Target  *Participant    `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// EmitResult is returned to the sender of an event. Messages holds the
// payloads of targeted events drained from the sender's mailbox.
type EmitResult struct {
	ID        string            `json:"id"`
	RoomID    string            `json:"room_id"`
	CreatedAt int64             `json:"created_at"`
	ExpiresAt int64             `json:"expires_at"`
	Messages  []json.RawMessage `json:"messages"`
}

// PollResult is a page of broadcast events plus the cursor to resume from.
type PollResult struct {
	Events   []*Event `json:"events"`
	LatestTS int64    `json:"latest_ts"`
}
