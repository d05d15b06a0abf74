package stream

import "github.com/alfredjeanlab/agentsmith/internal/model"

// watermark tracks what a stream has delivered: every event created before
// ts, plus the IDs delivered at exactly ts. Initially everything at or
// before since counts as delivered.
type watermark struct {
	ts   int64
	full bool // every event at ts is covered
	ids  map[string]struct{}
}

func newWatermark(since int64) *watermark {
	return &watermark{ts: since, full: true, ids: make(map[string]struct{})}
}

func (w *watermark) covers(evt *model.Event) bool {
	if evt.CreatedAt != w.ts {
		return evt.CreatedAt < w.ts
	}
	if w.full {
		return true
	}
	_, ok := w.ids[evt.ID]
	return ok
}

func (w *watermark) advance(evt *model.Event) {
	if evt.CreatedAt > w.ts {
		w.ts = evt.CreatedAt
		w.full = false
		clear(w.ids)
	}
	w.ids[evt.ID] = struct{}{}
}
