package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/agentsmith/internal/auth"
	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

type createRoomInput struct {
	ID string `json:"id"`
}

func (s *Server) createRoom(ctx context.Context, in createRoomInput) (*model.Room, error) {
	if err := model.ValidateRoomID(in.ID); err != nil {
		return nil, err
	}
	creator := auth.FromContext(ctx).UserID
	room := &model.Room{ID: in.ID, CreatedBy: creator}

	err := s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.CreateRoom(ctx, room); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return model.NewConflictError(fmt.Sprintf("room %q already exists", in.ID))
			}
			return fmt.Errorf("create room: %w", err)
		}
		if err := tx.AddMember(ctx, room.ID, creator); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Server) getRoom(ctx context.Context, id string) (*model.RoomDetail, error) {
	if err := model.ValidateRoomID(id); err != nil {
		return nil, err
	}
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, model.NewNotFoundError(fmt.Sprintf("room %q not found", id))
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	members, err := s.store.ListMembers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return &model.RoomDetail{Room: *room, Members: members}, nil
}
