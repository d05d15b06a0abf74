package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// PageSize bounds each broadcast query made while exporting a room.
const PageSize = 500

// Source is the subset of the store a snapshot reads from.
type Source interface {
	ListRooms(ctx context.Context) ([]*model.RoomSummary, error)
	QueryBroadcastAfter(ctx context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	RoomCount  int       `json:"room_count"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every room and its live broadcast events as JSONL to w.
// Rooms are sorted by ID; each room's events follow in chronological order.
// Targeted events are never exported.
func ExportJSONL(ctx context.Context, src Source, w io.Writer) error {
	rooms, err := src.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].ID < rooms[j].ID
	})

	events := make(map[string][]*model.Event, len(rooms))
	total := 0
	for _, r := range rooms {
		evts, err := roomEvents(ctx, src, r.ID)
		if err != nil {
			return fmt.Errorf("export room %s: %w", r.ID, err)
		}
		events[r.ID] = evts
		total += len(evts)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		RoomCount:  len(rooms),
		EventCount: total,
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range rooms {
		if err := enc.Encode(record{Type: "room", Data: r}); err != nil {
			return fmt.Errorf("encode room %s: %w", r.ID, err)
		}
		for _, e := range events[r.ID] {
			if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
				return fmt.Errorf("encode event %s: %w", e.ID, err)
			}
		}
	}
	return nil
}

// roomEvents pages through a room's broadcast events, resuming each page
// after the (created_at, id) key of the last event read.
func roomEvents(ctx context.Context, src Source, roomID string) ([]*model.Event, error) {
	var (
		out     []*model.Event
		afterTS int64
		afterID string
	)
	for {
		page, err := src.QueryBroadcastAfter(ctx, roomID, afterTS, afterID, PageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < PageSize {
			return out, nil
		}
		last := page[len(page)-1]
		afterTS, afterID = last.CreatedAt, last.ID
	}
}
