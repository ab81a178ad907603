package scenestore

import (
	"context"
	"sync"

	"github.com/jo-hoe/shinguard/internal/canvas"
)

// MemorySceneStore keeps encoded scenes in process memory. Scenes are stored
// as JSON so callers never share object pointers.
type MemorySceneStore struct {
	scenes map[string][]byte
	mu     sync.RWMutex
}

func NewMemorySceneStore() *MemorySceneStore {
	return &MemorySceneStore{
		scenes: make(map[string][]byte),
	}
}

func (s *MemorySceneStore) Load(ctx context.Context, workspaceID, side string) (*canvas.Scene, error) {
	s.mu.RLock()
	data, exists := s.scenes[sceneKey("", workspaceID, side)]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	return decodeScene(data)
}

func (s *MemorySceneStore) Save(ctx context.Context, workspaceID, side string, scene *canvas.Scene) error {
	data, err := encodeScene(scene)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.scenes[sceneKey("", workspaceID, side)] = data
	return nil
}

func (s *MemorySceneStore) Delete(ctx context.Context, workspaceID, side string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.scenes, sceneKey("", workspaceID, side))
	return nil
}

func (s *MemorySceneStore) Close() error {
	return nil
}
