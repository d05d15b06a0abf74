// Package memstore implements store.Store in process memory. It is used when
// no database is configured and as the reference store in tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

type entry struct {
	seq   int64
	event *model.Event
}

// MemStore implements store.Store with a single mutex guarding all state, so
// ConsumeTargeted is atomic with respect to every other operation.
type MemStore struct {
	mu      sync.Mutex
	now     func() time.Time
	seq     int64
	events  []entry
	rooms   map[string]*model.Room
	members map[string]map[string]*model.RoomMember
}

// Compile-time check that MemStore implements store.Store.
var _ store.Store = (*MemStore)(nil)

// New returns an empty store using the wall clock.
func New() *MemStore {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty store that reads the current time from now.
func NewWithClock(now func() time.Time) *MemStore {
	return &MemStore{
		now:     now,
		rooms:   make(map[string]*model.Room),
		members: make(map[string]map[string]*model.RoomMember),
	}
}

func (s *MemStore) InsertEvent(_ context.Context, p store.InsertEventParams) (*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt, err := store.NewEvent(p, s.now())
	if err != nil {
		return nil, err
	}
	s.seq++
	s.events = append(s.events, entry{seq: s.seq, event: evt})
	return evt.Clone(), nil
}

func (s *MemStore) QueryBroadcast(ctx context.Context, roomID string, since int64, limit int) ([]*model.Event, int64, error) {
	out, err := s.QueryBroadcastAfter(ctx, roomID, since, "", limit)
	if err != nil {
		return nil, since, err
	}
	latest := since
	if len(out) > 0 {
		latest = out[len(out)-1].CreatedAt
	}
	return out, latest, nil
}

func (s *MemStore) QueryBroadcastAfter(_ context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	var out []*model.Event
	for _, e := range s.events {
		evt := e.event
		if evt.RoomID != roomID || evt.IsTargeted() || evt.ExpiresAt <= now {
			continue
		}
		after := evt.CreatedAt > afterTS ||
			(afterID != "" && evt.CreatedAt == afterTS && evt.ID > afterID)
		if after {
			out = append(out, evt.Clone())
		}
	}
	sortEvents(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) ConsumeTargeted(_ context.Context, roomID, userID, sessionID string) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	var matched []*model.Event
	kept := s.events[:0]
	for _, e := range s.events {
		if matchesTarget(e.event, roomID, userID, sessionID, now) {
			matched = append(matched, e.event)
			continue
		}
		kept = append(kept, e)
	}
	clearTail(s.events, len(kept))
	s.events = kept

	sortEvents(matched)
	return matched, nil
}

func matchesTarget(evt *model.Event, roomID, userID, sessionID string, now int64) bool {
	if evt.RoomID != roomID || !evt.IsTargeted() || evt.ExpiresAt <= now {
		return false
	}
	if evt.Target.UserID != userID {
		return false
	}
	return evt.Target.SessionID == "" || evt.Target.SessionID == sessionID
}

func (s *MemStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	kept := s.events[:0]
	for _, e := range s.events {
		if e.event.ExpiresAt > now {
			kept = append(kept, e)
		}
	}
	deleted := int64(len(s.events) - len(kept))
	clearTail(s.events, len(kept))
	s.events = kept
	return deleted, nil
}

func (s *MemStore) LatestSessionEvents(_ context.Context, roomID string, cutoff int64) ([]*model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	latest := make(map[string]entry)
	for _, e := range s.events {
		evt := e.event
		if evt.RoomID != roomID || evt.Sender.SessionID == "" || store.IsSessionEnd(evt.Type) {
			continue
		}
		if evt.ExpiresAt <= now || evt.CreatedAt <= cutoff {
			continue
		}
		if cur, ok := latest[evt.Sender.SessionID]; !ok || e.seq > cur.seq {
			latest[evt.Sender.SessionID] = e
		}
	}

	entries := make([]entry, 0, len(latest))
	for _, e := range latest {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].event, entries[j].event
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]*model.Event, len(entries))
	for i, e := range entries {
		out[i] = e.event.Clone()
	}
	return out, nil
}

func (s *MemStore) CreateRoom(_ context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return store.ErrConflict
	}
	if room.CreatedAt == 0 {
		room.CreatedAt = s.now().UnixMilli()
	}
	r := *room
	s.rooms[room.ID] = &r
	return nil
}

func (s *MemStore) EnsureRoom(_ context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room.ID]; ok {
		return nil
	}
	if room.CreatedAt == 0 {
		room.CreatedAt = s.now().UnixMilli()
	}
	r := *room
	s.rooms[room.ID] = &r
	return nil
}

func (s *MemStore) GetRoom(_ context.Context, id string) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *r
	return &out, nil
}

func (s *MemStore) ListRooms(_ context.Context) ([]*model.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.RoomSummary, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, &model.RoomSummary{Room: *r, MemberCount: len(s.members[r.ID])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) AddMember(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return store.ErrNotFound
	}
	m := s.members[roomID]
	if m == nil {
		m = make(map[string]*model.RoomMember)
		s.members[roomID] = m
	}
	if _, ok := m[userID]; !ok {
		m[userID] = &model.RoomMember{RoomID: roomID, UserID: userID, JoinedAt: s.now().UnixMilli()}
	}
	return nil
}

func (s *MemStore) ListMembers(_ context.Context, roomID string) ([]*model.RoomMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.RoomMember, 0, len(s.members[roomID]))
	for _, m := range s.members[roomID] {
		mm := *m
		out = append(out, &mm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt != out[j].JoinedAt {
			return out[i].JoinedAt < out[j].JoinedAt
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// RunInTransaction calls fn with the store itself. Individual operations are
// atomic but a sequence of them is not isolated from concurrent callers.
func (s *MemStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Close() error { return nil }

// sortEvents orders events by creation time, breaking ties by ID.
func sortEvents(events []*model.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
}

// clearTail drops references past n so removed events can be collected.
func clearTail(events []entry, n int) {
	for i := n; i < len(events); i++ {
		events[i] = entry{}
	}
}
