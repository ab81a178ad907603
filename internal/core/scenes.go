package core

import (
	"context"

	"github.com/jo-hoe/shinguard/internal/canvas"
)

// Scene returns the current scene of a side.
func (service *CoreService) Scene(ctx context.Context, workspaceID, side string) (*canvas.Scene, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if err := validateSide(side); err != nil {
		return nil, err
	}
	return service.loadScene(ctx, workspaceID, side)
}

// ApplyAction runs one of the object control actions.
func (service *CoreService) ApplyAction(ctx context.Context, workspaceID, side, objectID, name string) (*canvas.Object, error) {
	action, err := canvas.ParseAction(name)
	if err != nil {
		return nil, err
	}
	var result *canvas.Object
	err = service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		obj, err := scene.Apply(objectID, action)
		result = obj
		return err
	})
	return result, err
}

// UpdateObject stores the values produced by the client's transform handles.
func (service *CoreService) UpdateObject(ctx context.Context, workspaceID, side, objectID string, patch canvas.Patch) (*canvas.Object, error) {
	var result *canvas.Object
	err := service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		obj, err := scene.Update(objectID, patch)
		result = obj
		return err
	})
	return result, err
}

func (service *CoreService) DuplicateObject(ctx context.Context, workspaceID, side, objectID string) (*canvas.Object, error) {
	var result *canvas.Object
	err := service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		obj, err := scene.Duplicate(objectID)
		result = obj
		return err
	})
	return result, err
}

func (service *CoreService) RemoveObject(ctx context.Context, workspaceID, side, objectID string) error {
	return service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		return scene.Remove(objectID)
	})
}

func (service *CoreService) ObjectStats(ctx context.Context, workspaceID, side, objectID string) (canvas.Stats, error) {
	scene, err := service.Scene(ctx, workspaceID, side)
	if err != nil {
		return canvas.Stats{}, err
	}
	return scene.Stats(objectID)
}

// Undo reverts the last change of a side and reports whether there was one.
func (service *CoreService) Undo(ctx context.Context, workspaceID, side string) (bool, error) {
	var changed bool
	err := service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		var err error
		changed, err = scene.Undo()
		return err
	})
	return changed, err
}

// Redo re-applies the last undone change of a side.
func (service *CoreService) Redo(ctx context.Context, workspaceID, side string) (bool, error) {
	var changed bool
	err := service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		var err error
		changed, err = scene.Redo()
		return err
	})
	return changed, err
}
