package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkruglov/roomcast/internal/protocol"
)

// ErrRoomNotFound is returned for lookups of rooms that do not exist.
var ErrRoomNotFound = errors.New("room does not exist")

// RoomStore persists room state. The in-memory store is the default; the
// Redis store lets several server instances share rooms.
type RoomStore interface {
	Get(ctx context.Context, id string) (*protocol.Room, error)
	Put(ctx context.Context, room *protocol.Room) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*protocol.Room, error)
}

// MemoryStore keeps rooms in a map.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*protocol.Room
}

// NewMemoryStore creates an empty in-memory room store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*protocol.Room)}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*protocol.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, room *protocol.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*protocol.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*protocol.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		cp := *room
		out = append(out, &cp)
	}
	return out, nil
}

const (
	redisKeyPrefix = "roomcast:room:"
	redisRoomTTL   = 24 * time.Hour
)

// RedisStore keeps rooms as JSON values in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*protocol.Room, error) {
	bts, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	var room protocol.Room
	if err := json.Unmarshal(bts, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *RedisStore) Put(ctx context.Context, room *protocol.Room) error {
	bts, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+room.ID, bts, redisRoomTTL).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}

func (s *RedisStore) List(ctx context.Context) ([]*protocol.Room, error) {
	keys, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	out := make([]*protocol.Room, 0, len(keys))
	for _, key := range keys {
		bts, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var room protocol.Room
		if err := json.Unmarshal(bts, &room); err != nil {
			continue
		}
		out = append(out, &room)
	}
	return out, nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
