package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/shinguard/internal/backend/commands"
	"github.com/jo-hoe/shinguard/internal/backend/commandstructure"
	"github.com/jo-hoe/shinguard/internal/backend/database"
	"github.com/jo-hoe/shinguard/internal/backend/scenestore"
	"github.com/jo-hoe/shinguard/internal/canvas"
)

// SceneListener is told about every stored scene change.
type SceneListener func(workspaceID, side string)

type CoreService struct {
	config          *ServiceConfig
	databaseService database.DatabaseService
	sceneStore      scenestore.SceneStore
	pipeline        *commandstructure.CommandInvoker
	thumbnailer     commandstructure.Command
	renderer        *canvas.Renderer
	frameWarning    *Notification
	locks           *workspaceLocks

	listenersMu sync.RWMutex
	listeners   []SceneListener
}

// WorkspaceSummary carries the counters shown next to the two sides.
type WorkspaceSummary struct {
	ID         string    `json:"id"`
	Left       int       `json:"left"`
	Right      int       `json:"right"`
	Total      int       `json:"total"`
	MaxPerSide int       `json:"maxPerSide"`
	MaxTotal   int       `json:"maxTotal"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ImageInfo is an image record without its pixel data.
type ImageInfo struct {
	ID           string    `json:"id"`
	Side         string    `json:"side"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sides lists the two canvases of a workspace.
var Sides = []string{database.SideLeft, database.SideRight}

func ImageURL(imageID string) string {
	return "/api/images/" + imageID + "/content"
}

func ThumbnailURL(imageID string) string {
	return "/api/images/" + imageID + "/thumbnail"
}

// NewCoreService wires storage, the upload pipeline and the renderer. A frame
// template that cannot be loaded is not fatal: scenes are created without it
// and FrameWarning reports the problem.
func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	databaseService, err := getDatabaseService(config)
	if err != nil {
		return nil, err
	}

	sceneStore, err := scenestore.NewSceneStore(config.SceneStore)
	if err != nil {
		_ = databaseService.Close()
		return nil, fmt.Errorf("failed to initialize scene store: %w", err)
	}

	pipeline, err := commandstructure.NewCommandInvokerFromConfig(commandstructure.DefaultRegistry, config.PipelineConfigs())
	if err != nil {
		_ = databaseService.Close()
		_ = sceneStore.Close()
		return nil, fmt.Errorf("failed to build upload pipeline: %w", err)
	}
	slog.Info("CoreService: upload pipeline ready", "commands", pipeline.Names())

	thumbnailer, err := commands.NewThumbnailCommand(config.ThumbnailWidth)
	if err != nil {
		_ = databaseService.Close()
		_ = sceneStore.Close()
		return nil, fmt.Errorf("failed to create thumbnail command: %w", err)
	}

	service := &CoreService{
		config:          config,
		databaseService: databaseService,
		sceneStore:      sceneStore,
		pipeline:        pipeline,
		thumbnailer:     thumbnailer,
		locks:           newWorkspaceLocks(),
	}

	frame, err := canvas.LoadFrameTemplate(config.Canvas.FrameTemplate, config.Canvas.Width, config.Canvas.Height, config.Canvas.FrameRenderScale)
	if err != nil {
		slog.Warn("CoreService: continuing without frame template", "path", config.Canvas.FrameTemplate, "error", err)
		warning := Failure("Template not available", "The shin guard frame could not be loaded. You can keep designing without it.")
		service.frameWarning = &warning
		frame = nil
	}
	service.renderer = canvas.NewRenderer(config.Canvas.Background, frame)

	return service, nil
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("CoreService: database initialized", "type", config.Database.Type)
	return databaseService, nil
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// FrameWarning returns the notification raised when the frame template failed to load.
func (service *CoreService) FrameWarning() *Notification {
	return service.frameWarning
}

// OnSceneChange registers listener for scene updates.
func (service *CoreService) OnSceneChange(listener SceneListener) {
	service.listenersMu.Lock()
	defer service.listenersMu.Unlock()
	service.listeners = append(service.listeners, listener)
}

func (service *CoreService) notifySceneChange(workspaceID string, sides ...string) {
	service.listenersMu.RLock()
	listeners := append([]SceneListener(nil), service.listeners...)
	service.listenersMu.RUnlock()
	for _, side := range sides {
		for _, listener := range listeners {
			listener(workspaceID, side)
		}
	}
}

func (service *CoreService) Close() error {
	return errors.Join(service.sceneStore.Close(), service.databaseService.Close())
}

func validateSide(side string) error {
	if side != database.SideLeft && side != database.SideRight {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	return nil
}

func (service *CoreService) requireWorkspace(workspaceID string) error {
	ws, err := service.databaseService.GetWorkspace(workspaceID)
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}
	if ws == nil {
		return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}
	return nil
}

func (service *CoreService) CreateWorkspace(ctx context.Context) (*database.Workspace, error) {
	ws, err := service.databaseService.CreateWorkspace()
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	for _, side := range Sides {
		if err := service.sceneStore.Save(ctx, ws.ID, side, service.newScene()); err != nil {
			return nil, fmt.Errorf("failed to create %s scene: %w", side, err)
		}
	}
	slog.Info("CoreService: workspace created", "workspace_id", ws.ID)
	return ws, nil
}

func (service *CoreService) Summary(workspaceID string) (*WorkspaceSummary, error) {
	ws, err := service.databaseService.GetWorkspace(workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}
	if ws == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, workspaceID)
	}
	left, err := service.databaseService.CountImages(workspaceID, database.SideLeft)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	right, err := service.databaseService.CountImages(workspaceID, database.SideRight)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}
	maxPerSide := service.config.Upload.MaxImagesPerSide
	return &WorkspaceSummary{
		ID:         ws.ID,
		Left:       left,
		Right:      right,
		Total:      left + right,
		MaxPerSide: maxPerSide,
		MaxTotal:   maxPerSide * len(Sides),
		CreatedAt:  ws.CreatedAt,
	}, nil
}

// ListImages returns the images of a side in display order.
func (service *CoreService) ListImages(workspaceID, side string) ([]ImageInfo, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if err := validateSide(side); err != nil {
		return nil, err
	}
	records, err := service.databaseService.GetImages(workspaceID, side,
		"id", "side", "name", "mime_type", "width", "height", "created_at")
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	infos := make([]ImageInfo, 0, len(records))
	for _, record := range records {
		infos = append(infos, ImageInfo{
			ID:           record.ID,
			Side:         record.Side,
			Name:         record.Name,
			MimeType:     record.MimeType,
			Width:        record.Width,
			Height:       record.Height,
			URL:          ImageURL(record.ID),
			ThumbnailURL: ThumbnailURL(record.ID),
			CreatedAt:    record.CreatedAt,
		})
	}
	return infos, nil
}

func (service *CoreService) GetImageByID(imageID string) (*database.Image, error) {
	img, err := service.databaseService.GetImageByID(imageID)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, imageID)
	}
	return img, nil
}

// Thumbnail scales the processed image down to the configured width.
func (service *CoreService) Thumbnail(imageID string) ([]byte, error) {
	img, err := service.GetImageByID(imageID)
	if err != nil {
		return nil, err
	}
	thumbnail, err := service.thumbnailer.Execute(img.ProcessedImage)
	if err != nil {
		return nil, fmt.Errorf("failed to generate thumbnail: %w", err)
	}
	return thumbnail, nil
}

// UploadImages validates the batch, runs every file through the upload
// pipeline and places the results on the side's canvas. Nothing is stored
// unless the whole batch is. Undo cannot step back past an upload.
func (service *CoreService) UploadImages(ctx context.Context, workspaceID, side string, files []UploadFile) ([]ImageInfo, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if err := validateSide(side); err != nil {
		return nil, err
	}

	infos, err := func() ([]ImageInfo, error) {
		unlock := service.locks.lock(workspaceID)
		defer unlock()

		existing, err := service.databaseService.CountImages(workspaceID, side)
		if err != nil {
			return nil, fmt.Errorf("failed to count images: %w", err)
		}
		accepted, err := checkUpload(files, existing, service.config.Upload.MaxImagesPerSide, service.config.Upload.MaxFileBytes)
		if err != nil {
			return nil, err
		}

		uploads := make([]*processedUpload, 0, len(accepted))
		for _, file := range accepted {
			upload, err := service.processUpload(file)
			if err != nil {
				return nil, err
			}
			uploads = append(uploads, upload)
		}

		return service.storeUploads(ctx, workspaceID, side, existing, uploads)
	}()
	if err != nil {
		return nil, err
	}

	slog.Info("CoreService: images uploaded", "workspace_id", workspaceID, "side", side, "count", len(infos))
	service.notifySceneChange(workspaceID, side)
	return infos, nil
}

// storeUploads writes the processed batch and its canvas objects. On failure
// every record created so far is deleted again.
func (service *CoreService) storeUploads(ctx context.Context, workspaceID, side string, existing int, uploads []*processedUpload) (infos []ImageInfo, err error) {
	scene, err := service.loadScene(ctx, workspaceID, side)
	if err != nil {
		return nil, err
	}

	created := make([]string, 0, len(uploads))
	defer func() {
		if err != nil {
			service.discardImages(created)
		}
	}()

	infos = make([]ImageInfo, 0, len(uploads))
	for i, upload := range uploads {
		record := &database.Image{
			WorkspaceID:    workspaceID,
			Side:           side,
			Name:           upload.file.Name,
			MimeType:       upload.mimeType,
			OriginalImage:  upload.file.Data,
			ProcessedImage: upload.processed,
			Width:          upload.width,
			Height:         upload.height,
		}
		id, err := service.databaseService.CreateImage(record)
		if err != nil {
			return nil, fmt.Errorf("failed to store image %s: %w", upload.file.Name, err)
		}
		created = append(created, id)
		if _, err := scene.AddImage(id, record.Name, record.Width, record.Height, existing+i); err != nil {
			return nil, fmt.Errorf("failed to place image %s: %w", upload.file.Name, err)
		}
		infos = append(infos, ImageInfo{
			ID:           id,
			Side:         side,
			Name:         record.Name,
			MimeType:     record.MimeType,
			Width:        record.Width,
			Height:       record.Height,
			URL:          ImageURL(id),
			ThumbnailURL: ThumbnailURL(id),
			CreatedAt:    record.CreatedAt,
		})
	}
	scene.ResetHistory()
	if err := service.sceneStore.Save(ctx, workspaceID, side, scene); err != nil {
		return nil, fmt.Errorf("failed to save scene: %w", err)
	}
	return infos, nil
}

func (service *CoreService) discardImages(ids []string) {
	for _, id := range ids {
		if err := service.databaseService.DeleteImage(id); err != nil {
			slog.Error("CoreService: failed to roll back image", "image_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		slog.Warn("CoreService: upload rolled back", "images_deleted", len(ids))
	}
}

// RemoveImage deletes an image record together with every object showing it.
func (service *CoreService) RemoveImage(ctx context.Context, workspaceID, side, imageID string) error {
	return service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		img, err := service.databaseService.GetImageByID(imageID)
		if err != nil {
			return fmt.Errorf("failed to load image: %w", err)
		}
		if img == nil || img.WorkspaceID != workspaceID || img.Side != side {
			return fmt.Errorf("%w: %s", ErrImageNotFound, imageID)
		}
		removed := scene.RemoveImage(imageID)
		scene.ResetHistory()
		if err := service.databaseService.DeleteImage(imageID); err != nil {
			return fmt.Errorf("failed to delete image: %w", err)
		}
		slog.Info("CoreService: image removed", "workspace_id", workspaceID, "side", side,
			"image_id", imageID, "objects_removed", removed)
		return nil
	})
}

// MoveImage shifts an image one place up or down the list of its side.
func (service *CoreService) MoveImage(workspaceID, side, imageID, direction string) error {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return err
	}
	if err := validateSide(side); err != nil {
		return err
	}
	var delta int
	switch direction {
	case "up":
		delta = -1
	case "down":
		delta = 1
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	unlock := service.locks.lock(workspaceID)
	defer unlock()

	records, err := service.databaseService.GetImages(workspaceID, side, "id", "rank")
	if err != nil {
		return fmt.Errorf("failed to load image order: %w", err)
	}
	order := make([]string, 0, len(records))
	ranks := make(map[string]string, len(records))
	for _, record := range records {
		order = append(order, record.ID)
		ranks[record.ID] = record.Rank
	}
	if _, ok := ranks[imageID]; !ok {
		return fmt.Errorf("%w: %s", ErrImageNotFound, imageID)
	}

	moved, ok := database.Move(order, imageID, delta)
	if !ok {
		// already first or last
		return nil
	}
	if err := service.databaseService.UpdateRanks(database.Reorder(ranks, moved)); err != nil {
		return fmt.Errorf("failed to update image order: %w", err)
	}
	return nil
}

// ResetSide removes every image and object of one side.
func (service *CoreService) ResetSide(ctx context.Context, workspaceID, side string) error {
	return service.updateScene(ctx, workspaceID, side, func(scene *canvas.Scene) error {
		deleted, err := service.databaseService.DeleteImages(workspaceID, side)
		if err != nil {
			return fmt.Errorf("failed to delete images: %w", err)
		}
		scene.ClearImages()
		scene.ResetHistory()
		slog.Info("CoreService: side reset", "workspace_id", workspaceID, "side", side, "images_deleted", deleted)
		return nil
	})
}

// ResetAll resets both sides.
func (service *CoreService) ResetAll(ctx context.Context, workspaceID string) error {
	for _, side := range Sides {
		if err := service.ResetSide(ctx, workspaceID, side); err != nil {
			return err
		}
	}
	return nil
}

func (service *CoreService) newScene() *canvas.Scene {
	scene := canvas.NewScene(service.config.Canvas.Width, service.config.Canvas.Height)
	if service.renderer != nil && service.renderer.HasFrame() {
		if _, err := scene.SetFrame(service.renderer.FrameSize()); err != nil {
			slog.Warn("CoreService: failed to place frame", "error", err)
		}
	}
	return scene
}

// loadScene returns the stored scene or a fresh one.
func (service *CoreService) loadScene(ctx context.Context, workspaceID, side string) (*canvas.Scene, error) {
	scene, err := service.sceneStore.Load(ctx, workspaceID, side)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s scene: %w", side, err)
	}
	if scene == nil {
		scene = service.newScene()
	}
	return scene, nil
}

// updateScene runs mutate on the stored scene under the workspace lock and
// saves the result when mutate succeeds.
func (service *CoreService) updateScene(ctx context.Context, workspaceID, side string, mutate func(scene *canvas.Scene) error) error {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return err
	}
	if err := validateSide(side); err != nil {
		return err
	}

	err := func() error {
		unlock := service.locks.lock(workspaceID)
		defer unlock()

		scene, err := service.loadScene(ctx, workspaceID, side)
		if err != nil {
			return err
		}
		if err := mutate(scene); err != nil {
			return err
		}
		if err := service.sceneStore.Save(ctx, workspaceID, side, scene); err != nil {
			return fmt.Errorf("failed to save %s scene: %w", side, err)
		}
		return nil
	}()
	if err != nil {
		return err
	}
	service.notifySceneChange(workspaceID, side)
	return nil
}
