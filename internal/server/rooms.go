package server

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// RoomService owns room membership and chat history on top of a RoomStore.
type RoomService struct {
	store RoomStore
}

// NewRoomService creates a room service backed by store.
func NewRoomService(store RoomStore) *RoomService {
	return &RoomService{store: store}
}

// GetRoom fetches one room.
func (r *RoomService) GetRoom(ctx context.Context, id string) (*protocol.Room, error) {
	return r.store.Get(ctx, id)
}

// CreateRoom creates a room owned by the given user's peer id.
func (r *RoomService) CreateRoom(ctx context.Context, owner protocol.User) (*protocol.Room, error) {
	room := &protocol.Room{
		ID:       uuid.NewString(),
		Owner:    owner.PeerID,
		Users:    []protocol.User{owner},
		Messages: []protocol.ChatMessage{},
	}
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// CreateEmptyRoom creates an unclaimed room with no members. The first
// join claims ownership.
func (r *RoomService) CreateEmptyRoom(ctx context.Context) (*protocol.Room, error) {
	room := &protocol.Room{
		ID:       uuid.NewString(),
		Users:    []protocol.User{},
		Messages: []protocol.ChatMessage{},
	}
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// RemoveRoom deletes a room; only the owner may do so.
func (r *RoomService) RemoveRoom(ctx context.Context, id, owner string) error {
	room, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if room.Owner != owner {
		return fmt.Errorf("%s is not owner", owner)
	}
	return r.store.Delete(ctx, id)
}

// RemoveRoomByUser deletes a room on behalf of a user id. Ownership is
// recorded as a peer id, so the check resolves the owner member first.
// Unclaimed rooms may be deleted by anyone who knows their id.
func (r *RoomService) RemoveRoomByUser(ctx context.Context, id, userID string) error {
	room, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if room.Owner != "" {
		allowed := false
		for _, u := range room.Users {
			if u.PeerID == room.Owner && u.ID == userID {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%s is not owner", userID)
		}
	}
	return r.store.Delete(ctx, id)
}

// JoinRoom adds a user to a room.
func (r *RoomService) JoinRoom(ctx context.Context, id string, user protocol.User) (*protocol.Room, error) {
	room, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.HasPeer(user.PeerID) {
		room.Users = append(room.Users, user)
	}
	if room.Owner == "" {
		room.Owner = user.PeerID
	}
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// LeaveRoom removes the peer from a room. The last member out deletes the
// room; a nil room is returned in that case.
func (r *RoomService) LeaveRoom(ctx context.Context, id, peerID string) (*protocol.Room, error) {
	room, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Users = filterUsers(room.Users, func(u protocol.User) bool { return u.PeerID != peerID })
	if len(room.Users) == 0 {
		return nil, r.store.Delete(ctx, id)
	}
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// AddFakeUser registers a synthetic participant, identified by its track id.
func (r *RoomService) AddFakeUser(ctx context.Context, roomID string, data protocol.FakeUserData) (*protocol.Room, error) {
	room, err := r.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Users = append(room.Users, protocol.User{
		ID:   data.TrackID,
		Name: data.Name,
	})
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// RemoveFakeUser drops a synthetic participant by its track id.
func (r *RoomService) RemoveFakeUser(ctx context.Context, roomID, trackID string) (*protocol.Room, error) {
	room, err := r.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	room.Users = filterUsers(room.Users, func(u protocol.User) bool { return u.ID != trackID })
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// AppendMessage adds a chat entry to the room history.
func (r *RoomService) AppendMessage(ctx context.Context, roomID string, msg protocol.ChatMessage) (*protocol.Room, error) {
	room, err := r.store.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	room.Messages = append(room.Messages, msg)
	if err := r.store.Put(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// UserRooms lists rooms containing the given user id.
func (r *RoomService) UserRooms(ctx context.Context, userID string) ([]*protocol.Room, error) {
	rooms, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := []*protocol.Room{}
	for _, room := range rooms {
		for _, u := range room.Users {
			if u.ID == userID {
				out = append(out, room)
				break
			}
		}
	}
	return out, nil
}

// RoomForPeer finds the room a peer currently belongs to.
func (r *RoomService) RoomForPeer(ctx context.Context, peerID string) (*protocol.Room, error) {
	rooms, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, room := range rooms {
		if room.HasPeer(peerID) {
			return room, nil
		}
	}
	return nil, ErrRoomNotFound
}

func filterUsers(users []protocol.User, keep func(protocol.User) bool) []protocol.User {
	out := []protocol.User{}
	for _, u := range users {
		if keep(u) {
			out = append(out, u)
		}
	}
	return out
}
