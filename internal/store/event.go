package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/idgen"
	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// NewEvent builds the event a store persists for p at time now: it assigns a
// time-sortable ID, looks up the TTL for the event type and computes expiry.
func NewEvent(p InsertEventParams, now time.Time) (*model.Event, error) {
	id, err := idgen.New(now)
	if err != nil {
		return nil, fmt.Errorf("generate event id: %w", err)
	}

	payload := json.RawMessage(p.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	var target *model.Participant
	if p.Target != nil && p.Target.UserID != "" {
		t := *p.Target
		target = &t
	}

	ttl := model.TTLFor(p.Type)
	createdAt := now.UnixMilli()
	return &model.Event{
		ID:         id,
		RoomID:     p.RoomID,
		Type:       p.Type,
		Format:     p.Format,
		Sender:     p.Sender,
		Target:     target,
		Payload:    payload,
		TTLSeconds: ttl,
		CreatedAt:  createdAt,
		ExpiresAt:  model.ExpiresAt(createdAt, ttl),
	}, nil
}

// IsSessionEnd reports whether eventType removes a session from presence.
func IsSessionEnd(eventType string) bool {
	for _, t := range model.SessionEndTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
