package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/alfredjeanlab/agentsmith/internal/auth"
	"github.com/alfredjeanlab/agentsmith/internal/metrics"
	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

// Poll limits.
const (
	DefaultPollLimit = 50
	MaxPollLimit     = 200
)

// emitLockStripes is the number of mutexes room emits are spread across.
const emitLockStripes = 64

// emitLocks serializes commit and bus publish per room, so live subscribers
// see a room's broadcasts in created_at order.
type emitLocks [emitLockStripes]sync.Mutex

func (l *emitLocks) forRoom(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &l[h.Sum32()%emitLockStripes]
}

// emit stores an event, fans broadcasts out to live streams and the mirror,
// and drains the sender's mailbox. format, when set, converts the drained
// messages.
func (s *Server) emit(ctx context.Context, roomID string, in *model.EventInput, format string) (*model.EmitResult, error) {
	if err := model.ValidateEventInput(roomID, in); err != nil {
		return nil, err
	}
	if len(in.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Compact(&buf, in.Payload); err != nil {
			return nil, model.NewValidationError("payload is not valid JSON")
		}
		if buf.Len() > s.payloadMax {
			return nil, model.NewPayloadTooLargeError(fmt.Sprintf("payload is %d bytes, limit is %d", buf.Len(), s.payloadMax))
		}
		in.Payload = buf.Bytes()
	}

	member := in.Sender.UserID
	if id := auth.FromContext(ctx); !id.Anonymous {
		member = id.UserID
	}

	evt, err := s.commitAndPublish(ctx, roomID, member, in)
	if err != nil {
		return nil, err
	}

	if evt.IsTargeted() {
		metrics.EventsEmitted.WithLabelValues("targeted").Inc()
	} else {
		metrics.EventsEmitted.WithLabelValues("broadcast").Inc()
		if err := s.publisher.PublishEvent(ctx, evt); err != nil {
			metrics.MirrorErrors.Inc()
			s.logger.Warn("failed to mirror event", "room_id", roomID, "event_id", evt.ID, "err", err)
		}
	}

	messages, err := s.mailbox.Drain(ctx, roomID, in.Sender, format)
	if err != nil {
		return nil, err
	}
	metrics.MessagesDelivered.Add(float64(len(messages)))

	return &model.EmitResult{
		ID:        evt.ID,
		RoomID:    evt.RoomID,
		CreatedAt: evt.CreatedAt,
		ExpiresAt: evt.ExpiresAt,
		Messages:  messages,
	}, nil
}

// commitAndPublish inserts the event and, for broadcasts, publishes it on
// the bus while holding the room's emit lock.
func (s *Server) commitAndPublish(ctx context.Context, roomID, member string, in *model.EventInput) (*model.Event, error) {
	mu := s.emitLocks.forRoom(roomID)
	mu.Lock()
	defer mu.Unlock()

	var evt *model.Event
	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := s.ensureRoom(ctx, tx, roomID, member); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, roomID, member); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		var err error
		evt, err = tx.InsertEvent(ctx, store.InsertEventParams{
			RoomID:  roomID,
			Type:    in.Type,
			Format:  in.Format,
			Sender:  in.Sender,
			Target:  in.Target,
			Payload: in.Payload,
		})
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !evt.IsTargeted() {
		s.bus.Publish(evt)
	}
	return evt, nil
}

// ensureRoom creates roomID on first use when auto-create is on. A room
// created concurrently by another emit is not an error.
func (s *Server) ensureRoom(ctx context.Context, tx store.Store, roomID, creator string) error {
	if s.autoCreate {
		if err := tx.EnsureRoom(ctx, &model.Room{ID: roomID, CreatedBy: creator}); err != nil {
			return fmt.Errorf("ensure room: %w", err)
		}
		return nil
	}
	if _, err := tx.GetRoom(ctx, roomID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.NewNotFoundError(fmt.Sprintf("room %q not found", roomID))
		}
		return fmt.Errorf("get room: %w", err)
	}
	return nil
}

// poll returns up to limit live broadcast events created after since,
// converted to format where a transformer exists.
func (s *Server) poll(ctx context.Context, roomID string, since int64, limit int, format string) (*model.PollResult, error) {
	if err := model.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if since < 0 {
		return nil, model.NewValidationError("since must be a non-negative integer")
	}
	if limit < 1 || limit > MaxPollLimit {
		return nil, model.NewValidationError(fmt.Sprintf("limit must be between 1 and %d", MaxPollLimit))
	}

	evts, latest, err := s.store.QueryBroadcast(ctx, roomID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query broadcast: %w", err)
	}
	out := make([]*model.Event, len(evts))
	for i, e := range evts {
		out[i] = s.transforms.Apply(e, format)
	}
	return &model.PollResult{Events: out, LatestTS: latest}, nil
}

func (s *Server) sessions(ctx context.Context, roomID string) ([]model.PresenceSession, error) {
	if err := model.ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	return s.presence.Sessions(ctx, roomID)
}
