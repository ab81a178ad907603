package scenestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/shinguard/internal/canvas"
	"github.com/redis/go-redis/v9"
)

// RedisSceneStore shares scenes between service replicas. Each side is one
// key holding the JSON scene; a zero TTL keeps keys forever.
type RedisSceneStore struct {
	client *redis.Client
	cfg    Config
}

func NewRedisSceneStore(cfg Config) (*RedisSceneStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis scene store requires an address")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = defaultKeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	slog.Info("SceneStore: using redis", "address", cfg.Address, "db", cfg.DB, "ttl", cfg.TTL)

	return &RedisSceneStore{client: client, cfg: cfg}, nil
}

// Ping checks the connection to redis.
func (s *RedisSceneStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSceneStore) Load(ctx context.Context, workspaceID, side string) (*canvas.Scene, error) {
	data, err := s.client.Get(ctx, s.key(workspaceID, side)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scene from redis: %w", err)
	}
	return decodeScene(data)
}

func (s *RedisSceneStore) Save(ctx context.Context, workspaceID, side string, scene *canvas.Scene) error {
	data, err := encodeScene(scene)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(workspaceID, side), data, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("failed to save scene to redis: %w", err)
	}
	return nil
}

func (s *RedisSceneStore) Delete(ctx context.Context, workspaceID, side string) error {
	if err := s.client.Del(ctx, s.key(workspaceID, side)).Err(); err != nil {
		return fmt.Errorf("failed to delete scene from redis: %w", err)
	}
	return nil
}

func (s *RedisSceneStore) Close() error {
	return s.client.Close()
}

func (s *RedisSceneStore) key(workspaceID, side string) string {
	return sceneKey(s.cfg.KeyPrefix, workspaceID, side)
}
