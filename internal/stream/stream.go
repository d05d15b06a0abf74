// Package stream implements the catch-up-then-live delivery of a room's
// broadcast events to one viewer.
//
// A stream subscribes to the bus before it queries the store, so an event
// published while catch-up is running is queued rather than lost. A
// watermark of delivered events drops anything the catch-up already sent.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/bus"
	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// ErrSlowConsumer is returned when a stream's live queue overflows. The
// client should reconnect with the created_at of the last event it saw.
var ErrSlowConsumer = errors.New("stream: live queue overflow")

// Querier reads a page of broadcast events ordered by (created_at, id),
// starting after the given key.
type Querier interface {
	QueryBroadcastAfter(ctx context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error)
}

// Subscriber registers live handlers for a room.
type Subscriber interface {
	Subscribe(roomID string, h bus.Handler) func()
}

// Sink receives the frames of one stream. Calls are never concurrent.
type Sink interface {
	WriteEvent(evt *model.Event) error
	WritePing() error
}

// Phase is the lifecycle state of a stream.
type Phase int

const (
	PhaseCatchUp Phase = iota
	PhaseLive
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseCatchUp:
		return "catch_up"
	case PhaseLive:
		return "live"
	case PhaseClosed:
		return "closed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Config tunes stream behavior.
type Config struct {
	CatchUpLimit int           // page size for catch-up queries (default 200)
	Heartbeat    time.Duration // ping interval (default 15s)
	Buffer       int           // live queue capacity (default 256)
}

// DefaultConfig returns the default stream settings.
func DefaultConfig() Config {
	return Config{
		CatchUpLimit: 200,
		Heartbeat:    15 * time.Second,
		Buffer:       256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CatchUpLimit <= 0 {
		c.CatchUpLimit = d.CatchUpLimit
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = d.Heartbeat
	}
	if c.Buffer <= 0 {
		c.Buffer = d.Buffer
	}
	return c
}

// Streamer runs streams against a store and a bus.
type Streamer struct {
	store  Querier
	bus    Subscriber
	cfg    Config
	logger *slog.Logger

	// OnPhase, when set, is called on every phase transition.
	OnPhase func(roomID string, p Phase)
}

// New returns a Streamer. Zero fields in cfg take their defaults.
func New(q Querier, sub Subscriber, cfg Config, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{store: q, bus: sub, cfg: cfg.withDefaults(), logger: logger}
}

// Run streams roomID's broadcast events created after since to sink until
// ctx is cancelled, a write fails, or the live queue overflows. It returns
// nil when ctx is cancelled. The bus subscription and heartbeat timer are
// released before Run returns.
func (s *Streamer) Run(ctx context.Context, roomID string, since int64, sink Sink) error {
	live := make(chan *model.Event, s.cfg.Buffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	unsubscribe := s.bus.Subscribe(roomID, func(evt *model.Event) {
		select {
		case live <- evt:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()
	defer s.setPhase(roomID, PhaseClosed)

	wm := newWatermark(since)

	s.setPhase(roomID, PhaseCatchUp)
	if err := s.catchUp(ctx, roomID, wm, sink); err != nil {
		return err
	}

	s.setPhase(roomID, PhaseLive)
	heartbeat := time.NewTicker(s.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-overflow:
			s.logger.Warn("stream: slow consumer, closing", "room_id", roomID, "buffer", s.cfg.Buffer)
			return ErrSlowConsumer
		case evt := <-live:
			if wm.covers(evt) {
				continue
			}
			if err := sink.WriteEvent(evt); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			wm.advance(evt)
		case <-heartbeat.C:
			if err := sink.WritePing(); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

// catchUp pages through the store from the watermark. Each page after the
// first starts at the (created_at, id) key of the last event read, so a
// millisecond holding more than a page of events is read in full.
func (s *Streamer) catchUp(ctx context.Context, roomID string, wm *watermark, sink Sink) error {
	afterTS, afterID := wm.ts, ""
	for {
		page, err := s.store.QueryBroadcastAfter(ctx, roomID, afterTS, afterID, s.cfg.CatchUpLimit)
		if err != nil {
			return fmt.Errorf("catch-up query: %w", err)
		}

		for _, evt := range page {
			if wm.covers(evt) {
				continue
			}
			if err := sink.WriteEvent(evt); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
			wm.advance(evt)
		}

		if len(page) < s.cfg.CatchUpLimit {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return nil
		}
		last := page[len(page)-1]
		afterTS, afterID = last.CreatedAt, last.ID
	}
}

func (s *Streamer) setPhase(roomID string, p Phase) {
	s.logger.Debug("stream: phase", "room_id", roomID, "phase", p.String())
	if s.OnPhase != nil {
		s.OnPhase(roomID, p)
	}
}
