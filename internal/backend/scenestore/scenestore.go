package scenestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jo-hoe/shinguard/internal/canvas"
)

// SceneStore keeps the working scene of each workspace side.
type SceneStore interface {
	// Load returns nil when no scene was saved yet.
	Load(ctx context.Context, workspaceID, side string) (*canvas.Scene, error)
	Save(ctx context.Context, workspaceID, side string, scene *canvas.Scene) error
	Delete(ctx context.Context, workspaceID, side string) error
	Close() error
}

type Config struct {
	Type      string        `yaml:"type"` // memory | redis
	Address   string        `yaml:"address"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	KeyPrefix string        `yaml:"keyPrefix"`
}

const defaultKeyPrefix = "shinguard:scene:"

func NewSceneStore(cfg Config) (SceneStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemorySceneStore(), nil
	case "redis":
		return NewRedisSceneStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported scene store type: %s", cfg.Type)
	}
}

func sceneKey(prefix, workspaceID, side string) string {
	return prefix + workspaceID + ":" + side
}

func encodeScene(scene *canvas.Scene) ([]byte, error) {
	data, err := json.Marshal(scene)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scene: %w", err)
	}
	return data, nil
}

func decodeScene(data []byte) (*canvas.Scene, error) {
	var scene canvas.Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("failed to decode scene: %w", err)
	}
	if scene.Objects == nil {
		scene.Objects = []*canvas.Object{}
	}
	if scene.History == nil {
		scene.History = canvas.NewHistory(0)
	}
	return &scene, nil
}
