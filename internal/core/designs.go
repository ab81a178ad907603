package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jo-hoe/shinguard/internal/backend/database"
	"github.com/jo-hoe/shinguard/internal/canvas"
)

// SaveDesign snapshots both sides under the name "Design N".
func (service *CoreService) SaveDesign(ctx context.Context, workspaceID string) (*database.Design, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}

	unlock := service.locks.lock(workspaceID)
	defer unlock()

	design := &database.Design{
		WorkspaceID: workspaceID,
		Scenes:      make(map[string]json.RawMessage, len(Sides)),
	}
	for _, side := range Sides {
		records, err := service.databaseService.GetImages(workspaceID, side, "id", "name")
		if err != nil {
			return nil, fmt.Errorf("failed to load images: %w", err)
		}
		refs := make([]database.ImageRef, 0, len(records))
		for _, record := range records {
			refs = append(refs, database.ImageRef{ID: record.ID, Name: record.Name, URL: ImageURL(record.ID)})
		}
		if side == database.SideLeft {
			design.LeftImages = refs
		} else {
			design.RightImages = refs
		}

		scene, err := service.loadScene(ctx, workspaceID, side)
		if err != nil {
			return nil, err
		}
		objects, err := json.Marshal(scene.ImageObjects())
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s scene: %w", side, err)
		}
		design.Scenes[side] = objects
	}
	if len(design.LeftImages)+len(design.RightImages) == 0 {
		return nil, ErrEmptyDesign
	}

	count, err := service.databaseService.CountDesigns(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count designs: %w", err)
	}
	design.Name = fmt.Sprintf("Design %d", count+1)
	if _, err := service.databaseService.CreateDesign(design); err != nil {
		return nil, fmt.Errorf("failed to save design: %w", err)
	}
	slog.Info("CoreService: design saved", "workspace_id", workspaceID, "design_id", design.ID, "name", design.Name)
	return design, nil
}

func (service *CoreService) ListDesigns(workspaceID string) ([]*database.Design, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	designs, err := service.databaseService.GetDesigns(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list designs: %w", err)
	}
	if designs == nil {
		designs = []*database.Design{}
	}
	return designs, nil
}

func (service *CoreService) getDesign(workspaceID, designID string) (*database.Design, error) {
	design, err := service.databaseService.GetDesignByID(designID)
	if err != nil {
		return nil, fmt.Errorf("failed to load design: %w", err)
	}
	if design == nil || design.WorkspaceID != workspaceID {
		return nil, fmt.Errorf("%w: %s", ErrDesignNotFound, designID)
	}
	return design, nil
}

// LoadDesign restores the scenes of a saved design. Objects whose image has
// been removed since are dropped; the number of dropped objects is returned.
func (service *CoreService) LoadDesign(ctx context.Context, workspaceID, designID string) (int, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return 0, err
	}
	design, err := service.getDesign(workspaceID, designID)
	if err != nil {
		return 0, err
	}

	dropped := 0
	for _, side := range Sides {
		var objects []*canvas.Object
		if raw, ok := design.Scenes[side]; ok && len(raw) > 0 {
			if err := json.Unmarshal(raw, &objects); err != nil {
				return dropped, fmt.Errorf("failed to decode %s scene of design %s: %w", side, designID, err)
			}
		}
		err := service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
			records, err := service.databaseService.GetImages(workspaceID, side, "id")
			if err != nil {
				return fmt.Errorf("failed to load images: %w", err)
			}
			existing := make(map[string]bool, len(records))
			for _, record := range records {
				existing[record.ID] = true
			}
			dropped += scene.Restore(objects, func(imageID string) bool { return existing[imageID] })
			return nil
		})
		if err != nil {
			return dropped, err
		}
	}
	slog.Info("CoreService: design loaded", "workspace_id", workspaceID, "design_id", designID, "dropped_objects", dropped)
	return dropped, nil
}

func (service *CoreService) DeleteDesign(workspaceID, designID string) error {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return err
	}
	unlock := service.locks.lock(workspaceID)
	defer unlock()

	if _, err := service.getDesign(workspaceID, designID); err != nil {
		return err
	}
	if err := service.databaseService.DeleteDesign(designID); err != nil {
		return fmt.Errorf("failed to delete design: %w", err)
	}
	return nil
}
