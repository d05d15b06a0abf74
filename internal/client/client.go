// Package client provides a transport-agnostic interface for the agentsmith
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

// Client is the interface that all agentsmith CLI commands use to
// communicate with the server.
type Client interface {
	// Events
	Emit(ctx context.Context, in *model.EventInput, format string) (*model.EmitResult, error)
	Poll(ctx context.Context, roomID string, since int64, limit int, format string) (*model.PollResult, error)
	Stream(ctx context.Context, req *StreamRequest, handle func(*model.Event) error) error

	// Rooms
	CreateRoom(ctx context.Context, id string) (*model.Room, error)
	ListRooms(ctx context.Context) ([]*model.RoomSummary, error)
	GetRoom(ctx context.Context, id string) (*model.RoomDetail, error)
	Presence(ctx context.Context, roomID string) ([]model.PresenceSession, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// StreamRequest holds parameters for following a room's event stream.
type StreamRequest struct {
	RoomID string
	Since  int64
	Format string
	// Reconnect keeps the stream open across disconnects, resuming from the
	// last event seen.
	Reconnect bool
}
