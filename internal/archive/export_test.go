package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
	"github.com/alfredjeanlab/agentsmith/internal/store/memstore"
)

// testClock is a settable clock in Unix ms.
type testClock struct{ ms int64 }

func (c *testClock) Now() time.Time { return time.UnixMilli(c.ms) }

func newTestStore(t *testing.T) (*memstore.MemStore, *testClock) {
	t.Helper()
	clk := &testClock{ms: time.Now().UnixMilli()}
	return memstore.NewWithClock(clk.Now), clk
}

func mustRoom(t *testing.T, s store.Store, id string) {
	t.Helper()
	if err := s.CreateRoom(context.Background(), &model.Room{ID: id, CreatedBy: "alice"}); err != nil {
		t.Fatalf("CreateRoom(%s): %v", id, err)
	}
}

func mustInsert(t *testing.T, s store.Store, room string, target *model.Participant) *model.Event {
	t.Helper()
	evt, err := s.InsertEvent(context.Background(), store.InsertEventParams{
		RoomID:  room,
		Type:    "hook.Stop",
		Format:  "f",
		Sender:  model.Participant{UserID: "alice", SessionID: "s1"},
		Target:  target,
		Payload: []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	return evt
}

func decodeLines(t *testing.T, s string) []record {
	t.Helper()
	var out []record
	for _, line := range nonEmptyLines(s) {
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("unmarshal %q: %v", line, err)
		}
		out = append(out, r)
	}
	return out
}

func TestExportJSONL_Empty(t *testing.T) {
	s, _ := newTestStore(t)
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), s, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := nonEmptyLines(buf.String())
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (header only), got %d", len(lines))
	}

	var h header
	if err := json.Unmarshal([]byte(lines[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.Version != "1" || h.Type != "header" || h.RoomCount != 0 || h.EventCount != 0 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestExportJSONL_RoomsAndEvents(t *testing.T) {
	s, clk := newTestStore(t)
	mustRoom(t, s, "zeta")
	mustRoom(t, s, "alpha")

	e1 := mustInsert(t, s, "alpha", nil)
	clk.ms++
	e2 := mustInsert(t, s, "alpha", nil)
	mustInsert(t, s, "alpha", &model.Participant{UserID: "bob"})
	clk.ms++
	e3 := mustInsert(t, s, "zeta", nil)

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), s, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var h header
	if err := json.Unmarshal([]byte(nonEmptyLines(buf.String())[0]), &h); err != nil {
		t.Fatalf("unmarshal header: %v", err)
	}
	if h.RoomCount != 2 || h.EventCount != 3 {
		t.Fatalf("header counts: room=%d event=%d", h.RoomCount, h.EventCount)
	}

	recs := decodeLines(t, buf.String())[1:]
	var got []string
	for _, r := range recs {
		m, ok := r.Data.(map[string]any)
		if !ok {
			t.Fatalf("record data is %T", r.Data)
		}
		got = append(got, r.Type+":"+m["id"].(string))
	}
	want := []string{
		"room:alpha", "event:" + e1.ID, "event:" + e2.ID,
		"room:zeta", "event:" + e3.ID,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("records = %v, want %v", got, want)
	}
}

func TestExportJSONL_PagesAcrossSharedMillisecond(t *testing.T) {
	s, clk := newTestStore(t)
	mustRoom(t, s, "busy")

	for i := 0; i < PageSize-1; i++ {
		mustInsert(t, s, "busy", nil)
		clk.ms++
	}
	// Three events share a millisecond and straddle the first page boundary.
	for i := 0; i < 3; i++ {
		mustInsert(t, s, "busy", nil)
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), s, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := map[string]bool{}
	for _, r := range decodeLines(t, buf.String())[1:] {
		if r.Type != "event" {
			continue
		}
		id := r.Data.(map[string]any)["id"].(string)
		if ids[id] {
			t.Fatalf("event %s exported twice", id)
		}
		ids[id] = true
	}
	if len(ids) != PageSize+2 {
		t.Fatalf("exported %d events, want %d", len(ids), PageSize+2)
	}
}

func TestExportJSONL_MillisecondLargerThanPage(t *testing.T) {
	s, _ := newTestStore(t)
	mustRoom(t, s, "burst")
	for i := 0; i < PageSize+3; i++ {
		mustInsert(t, s, "burst", nil)
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), s, &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var (
		ids  = map[string]bool{}
		prev string
	)
	for _, r := range decodeLines(t, buf.String())[1:] {
		if r.Type != "event" {
			continue
		}
		id := r.Data.(map[string]any)["id"].(string)
		if ids[id] {
			t.Fatalf("event %s exported twice", id)
		}
		if id <= prev {
			t.Fatalf("event %s exported after %s", id, prev)
		}
		ids[id] = true
		prev = id
	}
	if len(ids) != PageSize+3 {
		t.Fatalf("exported %d events, want %d", len(ids), PageSize+3)
	}
}

type failingSource struct{ err error }

func (f failingSource) ListRooms(context.Context) ([]*model.RoomSummary, error) {
	return []*model.RoomSummary{{Room: model.Room{ID: "r1"}}}, nil
}

func (f failingSource) QueryBroadcastAfter(context.Context, string, int64, string, int) ([]*model.Event, error) {
	return nil, f.err
}

func TestExportJSONL_SourceError(t *testing.T) {
	boom := errors.New("boom")
	var buf bytes.Buffer
	err := ExportJSONL(context.Background(), failingSource{err: boom}, &buf)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping boom", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written on error, got %q", buf.String())
	}
}

func nonEmptyLines(s string) []string {
	var result []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			result = append(result, line)
		}
	}
	return result
}
