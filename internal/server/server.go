// Package server exposes rooms, events, streams and presence over HTTP and
// a gRPC health service for probes.
package server

import (
	"log/slog"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/auth"
	"github.com/alfredjeanlab/agentsmith/internal/bus"
	"github.com/alfredjeanlab/agentsmith/internal/events"
	"github.com/alfredjeanlab/agentsmith/internal/mailbox"
	"github.com/alfredjeanlab/agentsmith/internal/presence"
	"github.com/alfredjeanlab/agentsmith/internal/store"
	"github.com/alfredjeanlab/agentsmith/internal/stream"
	"github.com/alfredjeanlab/agentsmith/internal/transform"
)

// DefaultPayloadMaxBytes caps the serialized payload of an emitted event.
const DefaultPayloadMaxBytes = 64 * 1024

// Config wires a Server's collaborators and limits. Zero values take
// defaults: a fresh bus, no mirror, no transforms, auth disabled.
type Config struct {
	Bus        *bus.Bus
	Publisher  events.Publisher
	Transforms *transform.Registry
	Resolver   auth.Resolver // nil disables auth

	PayloadMaxBytes int
	AutoCreateRooms bool
	PresenceWindow  time.Duration
	Stream          stream.Config

	Logger *slog.Logger
}

// Server implements the room event API.
type Server struct {
	store      store.Store
	bus        *bus.Bus
	publisher  events.Publisher
	transforms *transform.Registry
	resolver   auth.Resolver
	mailbox    *mailbox.Mailbox
	presence   *presence.View
	streamer   *stream.Streamer

	payloadMax int
	autoCreate bool
	logger     *slog.Logger

	emitLocks emitLocks
}

// New returns a Server backed by s.
func New(s store.Store, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := cfg.Bus
	if b == nil {
		b = bus.New(logger)
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	payloadMax := cfg.PayloadMaxBytes
	if payloadMax <= 0 {
		payloadMax = DefaultPayloadMaxBytes
	}

	return &Server{
		store:      s,
		bus:        b,
		publisher:  pub,
		transforms: cfg.Transforms,
		resolver:   cfg.Resolver,
		mailbox:    mailbox.New(s, cfg.Transforms),
		presence:   presence.NewView(s, cfg.PresenceWindow),
		streamer:   stream.New(s, b, cfg.Stream, logger),
		payloadMax: payloadMax,
		autoCreate: cfg.AutoCreateRooms,
		logger:     logger,
	}
}

// Bus returns the live fan-out bus.
func (s *Server) Bus() *bus.Bus { return s.bus }
