package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(ms int64) *fakeClock { return &fakeClock{t: time.UnixMilli(ms)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.t = time.UnixMilli(ms)
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, ms int64) (*MemStore, *fakeClock) {
	t.Helper()
	clk := newFakeClock(ms)
	return NewWithClock(clk.Now), clk
}

func mustInsert(t *testing.T, s *MemStore, p store.InsertEventParams) *model.Event {
	t.Helper()
	evt, err := s.InsertEvent(context.Background(), p)
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	return evt
}

func broadcast(room, typ, user, session string) store.InsertEventParams {
	return store.InsertEventParams{
		RoomID:  room,
		Type:    typ,
		Format:  "test",
		Sender:  model.Participant{UserID: user, SessionID: session},
		Payload: []byte(`{"n":1}`),
	}
}

func targeted(room, from, to, toSession, payload string) store.InsertEventParams {
	return store.InsertEventParams{
		RoomID:  room,
		Type:    "interaction",
		Format:  "test",
		Sender:  model.Participant{UserID: from},
		Target:  &model.Participant{UserID: to, SessionID: toSession},
		Payload: []byte(payload),
	}
}

func TestInsertEvent_AssignsTTL(t *testing.T) {
	s, _ := newTestStore(t, 1_000_000)
	evt := mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))

	if evt.CreatedAt != 1_000_000 {
		t.Errorf("CreatedAt = %d, want 1000000", evt.CreatedAt)
	}
	if evt.TTLSeconds != 300 || evt.ExpiresAt != 1_300_000 {
		t.Errorf("TTL=%d ExpiresAt=%d, want 300 and 1300000", evt.TTLSeconds, evt.ExpiresAt)
	}
	if len(evt.ID) != 26 {
		t.Errorf("ID %q has length %d, want 26", evt.ID, len(evt.ID))
	}

	evt = mustInsert(t, s, store.InsertEventParams{RoomID: "r1", Type: "x", Format: "f", Sender: model.Participant{UserID: "a"}})
	if string(evt.Payload) != "null" {
		t.Errorf("missing payload stored as %s, want null", evt.Payload)
	}
}

func TestQueryBroadcast_TTLBoundary(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1_000_000)
	mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))

	for _, tc := range []struct {
		now  int64
		want int
	}{
		{1_000_000, 1},
		{1_299_999, 1},
		{1_300_000, 0},
		{1_301_000, 0},
	} {
		clk.Set(tc.now)
		events, _, err := s.QueryBroadcast(ctx, "r1", 0, 50)
		if err != nil {
			t.Fatalf("QueryBroadcast: %v", err)
		}
		if len(events) != tc.want {
			t.Errorf("at now=%d got %d events, want %d", tc.now, len(events), tc.want)
		}
	}
}

func TestQueryBroadcast_SinceLimitAndLatest(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1000)
	for i := 0; i < 5; i++ {
		mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))
		clk.Advance(10 * time.Millisecond)
	}
	mustInsert(t, s, broadcast("other", "hook.PostToolUse", "alice", "s1"))

	events, latest, err := s.QueryBroadcast(ctx, "r1", 1010, 2)
	if err != nil {
		t.Fatalf("QueryBroadcast: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].CreatedAt != 1020 || events[1].CreatedAt != 1030 {
		t.Errorf("got created_at %d,%d, want 1020,1030", events[0].CreatedAt, events[1].CreatedAt)
	}
	if latest != 1030 {
		t.Errorf("latest_ts = %d, want 1030", latest)
	}

	events, latest, err = s.QueryBroadcast(ctx, "r1", 5000, 50)
	if err != nil {
		t.Fatalf("QueryBroadcast: %v", err)
	}
	if len(events) != 0 || latest != 5000 {
		t.Errorf("empty page: got %d events latest=%d, want 0 and 5000", len(events), latest)
	}
}

func TestQueryBroadcastAfter_SameMillisecond(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1_000_000)
	for i := 0; i < 5; i++ {
		mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))
	}
	clk.Advance(time.Millisecond)
	later := mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))

	var got []*model.Event
	afterTS, afterID := int64(0), ""
	for {
		page, err := s.QueryBroadcastAfter(ctx, "r1", afterTS, afterID, 2)
		if err != nil {
			t.Fatalf("QueryBroadcastAfter: %v", err)
		}
		got = append(got, page...)
		if len(page) < 2 {
			break
		}
		last := page[len(page)-1]
		afterTS, afterID = last.CreatedAt, last.ID
	}
	if len(got) != 6 {
		t.Fatalf("paged %d events, want 6", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID && got[i-1].CreatedAt == got[i].CreatedAt {
			t.Fatalf("events out of key order at %d: %s then %s", i, got[i-1].ID, got[i].ID)
		}
	}
	if got[5].ID != later.ID {
		t.Errorf("last event = %s, want %s", got[5].ID, later.ID)
	}

	// An empty afterID compares created_at only.
	page, _ := s.QueryBroadcastAfter(ctx, "r1", 1_000_000, "", 50)
	if len(page) != 1 || page[0].ID != later.ID {
		t.Errorf("after ts only = %v, want [%s]", page, later.ID)
	}
}

func TestBroadcastTargetedPartition(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)
	b := mustInsert(t, s, broadcast("r1", "hook.Stop", "alice", "s1"))
	mustInsert(t, s, targeted("r1", "alice", "bob", "", `{"hi":1}`))

	events, _, err := s.QueryBroadcast(ctx, "r1", 0, 50)
	if err != nil {
		t.Fatalf("QueryBroadcast: %v", err)
	}
	if len(events) != 1 || events[0].ID != b.ID {
		t.Fatalf("broadcast query returned %v, want only %s", events, b.ID)
	}

	got, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 1 || !got[0].IsTargeted() {
		t.Fatalf("ConsumeTargeted returned %v, want the targeted event", got)
	}
}

func TestConsumeTargeted_ConsumesOnce(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)
	mustInsert(t, s, targeted("r1", "alice", "bob", "", `{"n":1}`))

	first, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	second, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(first) != 1 || len(second) != 0 {
		t.Errorf("got %d then %d, want 1 then 0", len(first), len(second))
	}
}

func TestConsumeTargeted_Concurrent(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)
	const messages = 50
	for i := 0; i < messages; i++ {
		mustInsert(t, s, targeted("r1", "alice", "bob", "", `{}`))
	}

	const workers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
		seen  = make(map[string]int)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
			if err != nil {
				t.Errorf("ConsumeTargeted: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			total += len(got)
			for _, e := range got {
				seen[e.ID]++
			}
		}()
	}
	wg.Wait()

	if total != messages {
		t.Errorf("consumed %d events in total, want %d", total, messages)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("event %s consumed %d times", id, n)
		}
	}
}

func TestConsumeTargeted_SessionTargeting(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)
	mustInsert(t, s, targeted("r1", "alice", "bob", "B", `{"to":"B"}`))

	got, err := s.ConsumeTargeted(ctx, "r1", "bob", "A")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("session A consumed %d events addressed to session B", len(got))
	}
	got, err = s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("session-less consume matched a session-targeted event")
	}
	got, err = s.ConsumeTargeted(ctx, "r1", "bob", "B")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("session B got %d events, want 1", len(got))
	}
}

func TestConsumeTargeted_UserTargetAnySession(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)
	mustInsert(t, s, targeted("r1", "alice", "bob", "", `{"n":1}`))

	got, err := s.ConsumeTargeted(ctx, "r1", "bob", "A")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d, want user-targeted event delivered to any session", len(got))
	}
	if got, _ := s.ConsumeTargeted(ctx, "r1", "bob", "B"); len(got) != 0 {
		t.Errorf("second session received an already consumed event")
	}
}

func TestConsumeTargeted_ExpiredAndOtherRoom(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1000)
	mustInsert(t, s, targeted("r1", "alice", "bob", "", `{}`))
	mustInsert(t, s, targeted("r2", "alice", "bob", "", `{}`))

	clk.Advance(121 * time.Second)
	got, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expired event was delivered")
	}
}

func TestConsumeTargeted_Ordered(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1000)
	for _, p := range []string{`1`, `2`, `3`} {
		mustInsert(t, s, targeted("r1", "alice", "bob", "", p))
		clk.Advance(time.Millisecond)
	}
	got, err := s.ConsumeTargeted(ctx, "r1", "bob", "")
	if err != nil {
		t.Fatalf("ConsumeTargeted: %v", err)
	}
	var payloads []string
	for _, e := range got {
		payloads = append(payloads, string(e.Payload))
	}
	if len(payloads) != 3 || payloads[0] != "1" || payloads[2] != "3" {
		t.Errorf("payloads = %v, want [1 2 3]", payloads)
	}
}

func TestDeleteExpired_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1000)
	mustInsert(t, s, broadcast("r1", "hook.Notification", "alice", "s1")) // 120s
	mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "s1"))  // 300s

	clk.Advance(200 * time.Second)
	n, err := s.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("first sweep deleted %d, want 1", n)
	}
	n, err = s.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep deleted %d, want 0", n)
	}
	events, _, _ := s.QueryBroadcast(ctx, "r1", 0, 50)
	if len(events) != 1 {
		t.Errorf("%d live events remain, want 1", len(events))
	}
}

func TestLatestSessionEvents(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1_000_000)
	mustInsert(t, s, broadcast("r1", "hook.SessionStart", "alice", "A"))
	mustInsert(t, s, broadcast("r1", "hook.PostToolUse", "alice", "A")) // same ms, later insert
	clk.Advance(time.Second)
	mustInsert(t, s, broadcast("r1", "hook.Stop", "bob", "B"))
	mustInsert(t, s, broadcast("r1", "hook.SessionEnd", "bob", "B"))
	mustInsert(t, s, broadcast("r1", "hook.Stop", "carol", ""))

	events, err := s.LatestSessionEvents(ctx, "r1", 0)
	if err != nil {
		t.Fatalf("LatestSessionEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d sessions, want 2", len(events))
	}
	if events[0].Sender.SessionID != "B" || events[0].Type != "hook.Stop" {
		t.Errorf("first row = %s/%s, want B/hook.Stop", events[0].Sender.SessionID, events[0].Type)
	}
	if events[1].Sender.SessionID != "A" || events[1].Type != "hook.PostToolUse" {
		t.Errorf("second row = %s/%s, want A/hook.PostToolUse (insertion order tie-break)", events[1].Sender.SessionID, events[1].Type)
	}

	// Cutoff excludes sessions whose latest qualifying event is too old.
	events, err = s.LatestSessionEvents(ctx, "r1", 1_000_500)
	if err != nil {
		t.Fatalf("LatestSessionEvents: %v", err)
	}
	if len(events) != 1 || events[0].Sender.SessionID != "B" {
		t.Errorf("with cutoff got %v, want only session B", events)
	}
}

func TestRooms(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 1000)

	if err := s.CreateRoom(ctx, &model.Room{ID: "r1", CreatedBy: "alice"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := s.CreateRoom(ctx, &model.Room{ID: "r1", CreatedBy: "bob"}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate CreateRoom = %v, want ErrConflict", err)
	}
	if _, err := s.GetRoom(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRoom(nope) = %v, want ErrNotFound", err)
	}
	if err := s.AddMember(ctx, "nope", "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddMember on missing room = %v, want ErrNotFound", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.AddMember(ctx, "r1", "alice"); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	if err := s.AddMember(ctx, "r1", "bob"); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	members, err := s.ListMembers(ctx, "r1")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("got %d members, want 2", len(members))
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].MemberCount != 2 || rooms[0].CreatedAt != 1000 {
		t.Errorf("ListRooms = %+v", rooms[0])
	}
}

// TestScenario_BroadcastFlow walks through the canonical emit/poll/expire
// sequence for a single broadcast event.
func TestEnsureRoom(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, 7000)

	if err := s.EnsureRoom(ctx, &model.Room{ID: "team-alpha", CreatedBy: "alice"}); err != nil {
		t.Fatalf("EnsureRoom: %v", err)
	}
	if err := s.EnsureRoom(ctx, &model.Room{ID: "team-alpha", CreatedBy: "bob"}); err != nil {
		t.Fatalf("EnsureRoom on existing room: %v", err)
	}
	room, err := s.GetRoom(ctx, "team-alpha")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if room.CreatedBy != "alice" || room.CreatedAt != 7000 {
		t.Errorf("room = %+v, want the first creator kept", room)
	}
}

func TestScenario_BroadcastFlow(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t, 1_000_000)
	evt := mustInsert(t, s, store.InsertEventParams{
		RoomID:  "r1",
		Type:    "hook.PostToolUse",
		Format:  "f",
		Sender:  model.Participant{UserID: "u1", SessionID: "s1"},
		Payload: json.RawMessage(`{"tool":"Bash"}`),
	})
	if evt.ExpiresAt != 1_300_000 {
		t.Fatalf("ExpiresAt = %d, want 1300000", evt.ExpiresAt)
	}

	clk.Set(1_000_500)
	events, latest, _ := s.QueryBroadcast(ctx, "r1", 999_000, 50)
	if len(events) != 1 || latest != 1_000_000 {
		t.Fatalf("poll got %d events latest=%d", len(events), latest)
	}
	events, latest, _ = s.QueryBroadcast(ctx, "r1", 1_000_000, 50)
	if len(events) != 0 || latest != 1_000_000 {
		t.Fatalf("repoll got %d events latest=%d", len(events), latest)
	}

	clk.Set(1_301_000)
	if events, _, _ := s.QueryBroadcast(ctx, "r1", 999_000, 50); len(events) != 0 {
		t.Fatalf("expired event still visible")
	}
	if n, _ := s.DeleteExpired(ctx); n != 1 {
		t.Errorf("sweep deleted %d, want 1", n)
	}
}
