package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/jo-hoe/shinguard/internal/canvas"
	"github.com/jo-hoe/shinguard/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	mimePNG = "image/png"
	mimeZip = "application/zip"
)

type APIService struct {
	coreService *core.CoreService
}

// sceneResponse is the client view of a scene; the undo history stays on the server.
type sceneResponse struct {
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Revision int64            `json:"revision"`
	Objects  []*canvas.Object `json:"objects"`
	CanUndo  bool             `json:"canUndo"`
	CanRedo  bool             `json:"canRedo"`
}

type uploadResponse struct {
	Images       []core.ImageInfo  `json:"images"`
	Notification core.Notification `json:"notification"`
}

type historyResponse struct {
	Changed bool          `json:"changed"`
	Scene   sceneResponse `json:"scene"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	// Set probe route
	e.GET("/probe", func(c echo.Context) error {
		return c.String(http.StatusOK, "API Service is running")
	})

	api := e.Group("/api")
	api.POST("/workspaces", s.createWorkspaceHandler)
	api.GET("/workspaces/:id", s.summaryHandler)
	api.DELETE("/workspaces/:id/sides", s.resetAllHandler)
	api.DELETE("/workspaces/:id/sides/:side", s.resetSideHandler)
	api.GET("/workspaces/:id/export", s.exportAllHandler)

	api.GET("/workspaces/:id/sides/:side/images", s.listImagesHandler)
	api.POST("/workspaces/:id/sides/:side/images", s.uploadImagesHandler)
	api.DELETE("/workspaces/:id/sides/:side/images/:imageId", s.removeImageHandler)
	api.POST("/workspaces/:id/sides/:side/images/:imageId/move", s.moveImageHandler)
	api.GET("/images/:imageId/content", s.imageContentHandler)
	api.GET("/images/:imageId/thumbnail", s.thumbnailHandler)

	api.GET("/workspaces/:id/sides/:side/scene", s.sceneHandler)
	api.POST("/workspaces/:id/sides/:side/objects/:objectId/actions", s.actionHandler)
	api.PATCH("/workspaces/:id/sides/:side/objects/:objectId", s.patchObjectHandler)
	api.POST("/workspaces/:id/sides/:side/objects/:objectId/duplicate", s.duplicateObjectHandler)
	api.DELETE("/workspaces/:id/sides/:side/objects/:objectId", s.removeObjectHandler)
	api.GET("/workspaces/:id/sides/:side/objects/:objectId", s.objectStatsHandler)
	api.POST("/workspaces/:id/sides/:side/undo", s.undoHandler)
	api.POST("/workspaces/:id/sides/:side/redo", s.redoHandler)
	api.GET("/workspaces/:id/sides/:side/export", s.exportSideHandler)
	api.GET("/workspaces/:id/sides/:side/preview", s.previewHandler)

	api.GET("/workspaces/:id/designs", s.listDesignsHandler)
	api.POST("/workspaces/:id/designs", s.saveDesignHandler)
	api.POST("/workspaces/:id/designs/:designId/load", s.loadDesignHandler)
	api.DELETE("/workspaces/:id/designs/:designId", s.deleteDesignHandler)
}

// StatusFor maps domain errors onto HTTP status codes.
func StatusFor(err error) int {
	var limit *core.LimitExceededError
	switch {
	case errors.As(err, &limit),
		errors.Is(err, core.ErrEmptyDesign),
		errors.Is(err, core.ErrNothingToExport),
		errors.Is(err, core.ErrUnreadableImage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrWorkspaceNotFound),
		errors.Is(err, core.ErrImageNotFound),
		errors.Is(err, core.ErrDesignNotFound),
		errors.Is(err, canvas.ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, canvas.ErrFrameNotEditable),
		errors.Is(err, canvas.ErrObjectLocked):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoImageFiles),
		errors.Is(err, core.ErrInvalidSide),
		errors.Is(err, core.ErrInvalidDirection),
		errors.Is(err, canvas.ErrUnknownAction),
		errors.Is(err, canvas.ErrInvalidPatch),
		errors.Is(err, canvas.ErrInvalidExportOptions):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as a notification body. Server errors are logged with
// their cause; the client only sees the generic text.
func fail(ctx echo.Context, handler string, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(handler+": request failed", "status", status, "route", ctx.Path(), "error", err)
	} else {
		slog.Warn(handler+": request rejected", "status", status, "route", ctx.Path(), "error", err)
	}
	return ctx.JSON(status, core.NotificationFor(err))
}

func toSceneResponse(scene *canvas.Scene) sceneResponse {
	resp := sceneResponse{
		Width:    scene.Width,
		Height:   scene.Height,
		Revision: scene.Revision,
		Objects:  scene.Objects,
	}
	if scene.History != nil {
		resp.CanUndo = scene.History.CanUndo()
		resp.CanRedo = scene.History.CanRedo()
	}
	return resp
}

func (s *APIService) createWorkspaceHandler(ctx echo.Context) error {
	ws, err := s.coreService.CreateWorkspace(ctx.Request().Context())
	if err != nil {
		return fail(ctx, "createWorkspaceHandler", err)
	}
	summary, err := s.coreService.Summary(ws.ID)
	if err != nil {
		return fail(ctx, "createWorkspaceHandler", err)
	}
	return ctx.JSON(http.StatusCreated, summary)
}

func (s *APIService) summaryHandler(ctx echo.Context) error {
	summary, err := s.coreService.Summary(ctx.Param("id"))
	if err != nil {
		return fail(ctx, "summaryHandler", err)
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (s *APIService) resetAllHandler(ctx echo.Context) error {
	if err := s.coreService.ResetAll(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return fail(ctx, "resetAllHandler", err)
	}
	return ctx.JSON(http.StatusOK, core.Info("Design reset", "Both shin guards were cleared"))
}

func (s *APIService) resetSideHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if err := s.coreService.ResetSide(ctx.Request().Context(), ctx.Param("id"), side); err != nil {
		return fail(ctx, "resetSideHandler", err)
	}
	return ctx.JSON(http.StatusOK, core.Info("Side reset", fmt.Sprintf("The %s shin guard was cleared", side)))
}

func (s *APIService) listImagesHandler(ctx echo.Context) error {
	images, err := s.coreService.ListImages(ctx.Param("id"), ctx.Param("side"))
	if err != nil {
		return fail(ctx, "listImagesHandler", err)
	}
	return ctx.JSON(http.StatusOK, images)
}

func (s *APIService) uploadImagesHandler(ctx echo.Context) error {
	form, err := ctx.MultipartForm()
	if err != nil {
		slog.Warn("uploadImagesHandler: failed to parse multipart form", "status", http.StatusBadRequest, "error", err)
		return fail(ctx, "uploadImagesHandler", core.ErrNoImageFiles)
	}
	files, err := ReadUploadFiles(form.File["images"])
	if err != nil {
		return fail(ctx, "uploadImagesHandler", err)
	}

	images, err := s.coreService.UploadImages(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), files)
	if err != nil {
		return fail(ctx, "uploadImagesHandler", err)
	}
	return ctx.JSON(http.StatusCreated, uploadResponse{
		Images:       images,
		Notification: core.Info("Images uploaded", fmt.Sprintf("%d images added", len(images))),
	})
}

func (s *APIService) removeImageHandler(ctx echo.Context) error {
	err := s.coreService.RemoveImage(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("imageId"))
	if err != nil {
		return fail(ctx, "removeImageHandler", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) moveImageHandler(ctx echo.Context) error {
	dir := strings.ToLower(strings.TrimSpace(ctx.QueryParam("dir")))
	if err := s.coreService.MoveImage(ctx.Param("id"), ctx.Param("side"), ctx.Param("imageId"), dir); err != nil {
		return fail(ctx, "moveImageHandler", err)
	}
	images, err := s.coreService.ListImages(ctx.Param("id"), ctx.Param("side"))
	if err != nil {
		return fail(ctx, "moveImageHandler", err)
	}
	return ctx.JSON(http.StatusOK, images)
}

func (s *APIService) imageContentHandler(ctx echo.Context) error {
	img, err := s.coreService.GetImageByID(ctx.Param("imageId"))
	if err != nil {
		return fail(ctx, "imageContentHandler", err)
	}
	return ctx.Blob(http.StatusOK, mimePNG, img.ProcessedImage)
}

func (s *APIService) thumbnailHandler(ctx echo.Context) error {
	thumbnail, err := s.coreService.Thumbnail(ctx.Param("imageId"))
	if err != nil {
		return fail(ctx, "thumbnailHandler", err)
	}
	return ctx.Blob(http.StatusOK, mimePNG, thumbnail)
}

func (s *APIService) sceneHandler(ctx echo.Context) error {
	scene, err := s.coreService.Scene(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"))
	if err != nil {
		return fail(ctx, "sceneHandler", err)
	}
	return ctx.JSON(http.StatusOK, toSceneResponse(scene))
}

type actionRequest struct {
	Action string `json:"action" form:"action" query:"action" validate:"required"`
}

func (s *APIService) actionHandler(ctx echo.Context) error {
	var req actionRequest
	if err := ctx.Bind(&req); err != nil {
		return fail(ctx, "actionHandler", fmt.Errorf("%w: %v", canvas.ErrUnknownAction, err))
	}
	if err := ctx.Validate(&req); err != nil {
		return fail(ctx, "actionHandler", fmt.Errorf("%w: %v", canvas.ErrUnknownAction, err))
	}
	obj, err := s.coreService.ApplyAction(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("objectId"), req.Action)
	if err != nil {
		return fail(ctx, "actionHandler", err)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (s *APIService) patchObjectHandler(ctx echo.Context) error {
	var patch canvas.Patch
	if err := ctx.Bind(&patch); err != nil {
		return fail(ctx, "patchObjectHandler", fmt.Errorf("%w: %v", canvas.ErrInvalidPatch, err))
	}
	if err := ctx.Validate(&patch); err != nil {
		return fail(ctx, "patchObjectHandler", fmt.Errorf("%w: %v", canvas.ErrInvalidPatch, err))
	}
	obj, err := s.coreService.UpdateObject(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("objectId"), patch)
	if err != nil {
		return fail(ctx, "patchObjectHandler", err)
	}
	return ctx.JSON(http.StatusOK, obj)
}

func (s *APIService) duplicateObjectHandler(ctx echo.Context) error {
	obj, err := s.coreService.DuplicateObject(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("objectId"))
	if err != nil {
		return fail(ctx, "duplicateObjectHandler", err)
	}
	return ctx.JSON(http.StatusCreated, obj)
}

func (s *APIService) removeObjectHandler(ctx echo.Context) error {
	if err := s.coreService.RemoveObject(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("objectId")); err != nil {
		return fail(ctx, "removeObjectHandler", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) objectStatsHandler(ctx echo.Context) error {
	stats, err := s.coreService.ObjectStats(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"), ctx.Param("objectId"))
	if err != nil {
		return fail(ctx, "objectStatsHandler", err)
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (s *APIService) undoHandler(ctx echo.Context) error {
	return s.historyStep(ctx, "undoHandler", s.coreService.Undo)
}

func (s *APIService) redoHandler(ctx echo.Context) error {
	return s.historyStep(ctx, "redoHandler", s.coreService.Redo)
}

func (s *APIService) historyStep(ctx echo.Context, handler string, step func(c context.Context, workspaceID, side string) (bool, error)) error {
	workspaceID, side := ctx.Param("id"), ctx.Param("side")
	changed, err := step(ctx.Request().Context(), workspaceID, side)
	if err != nil {
		return fail(ctx, handler, err)
	}
	scene, err := s.coreService.Scene(ctx.Request().Context(), workspaceID, side)
	if err != nil {
		return fail(ctx, handler, err)
	}
	return ctx.JSON(http.StatusOK, historyResponse{Changed: changed, Scene: toSceneResponse(scene)})
}

// exportOptions reads format, quality and multiplier on top of the configured defaults.
func (s *APIService) exportOptions(ctx echo.Context) (canvas.ExportOptions, error) {
	opts := s.coreService.Config().ExportOptions()

	format, err := canvas.ParseFormat(ctx.QueryParam("format"))
	if err != nil {
		return opts, err
	}
	opts.Format = format

	if raw := ctx.QueryParam("quality"); raw != "" {
		quality, err := strconv.Atoi(raw)
		if err != nil {
			return opts, fmt.Errorf("%w: quality %q", canvas.ErrInvalidExportOptions, raw)
		}
		opts.Quality = quality
	}
	if raw := ctx.QueryParam("multiplier"); raw != "" {
		multiplier, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, fmt.Errorf("%w: multiplier %q", canvas.ErrInvalidExportOptions, raw)
		}
		opts.Multiplier = multiplier
	}
	return opts, opts.Validate()
}

type dataURLResponse struct {
	FileName string `json:"fileName"`
	DataURL  string `json:"dataUrl"`
}

func (s *APIService) exportSideHandler(ctx echo.Context) error {
	opts, err := s.exportOptions(ctx)
	if err != nil {
		return fail(ctx, "exportSideHandler", err)
	}
	workspaceID, side := ctx.Param("id"), ctx.Param("side")
	fileName := core.ExportFileName(side, opts.Format)

	switch ctx.QueryParam("encoding") {
	case "", "binary":
		data, err := s.coreService.ExportSide(ctx.Request().Context(), workspaceID, side, opts)
		if err != nil {
			return fail(ctx, "exportSideHandler", err)
		}
		setAttachment(ctx, fileName)
		return ctx.Blob(http.StatusOK, opts.Format.ContentType(), data)
	case "dataurl":
		url, err := s.coreService.ExportSideDataURL(ctx.Request().Context(), workspaceID, side, opts)
		if err != nil {
			return fail(ctx, "exportSideHandler", err)
		}
		return ctx.JSON(http.StatusOK, dataURLResponse{FileName: fileName, DataURL: url})
	default:
		return fail(ctx, "exportSideHandler", fmt.Errorf("%w: encoding %q", canvas.ErrInvalidExportOptions, ctx.QueryParam("encoding")))
	}
}

func (s *APIService) previewHandler(ctx echo.Context) error {
	data, err := s.coreService.Preview(ctx.Request().Context(), ctx.Param("id"), ctx.Param("side"))
	if err != nil {
		return fail(ctx, "previewHandler", err)
	}
	setNoCache(ctx)
	return ctx.Blob(http.StatusOK, mimePNG, data)
}

func (s *APIService) exportAllHandler(ctx echo.Context) error {
	data, err := s.coreService.ExportAll(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return fail(ctx, "exportAllHandler", err)
	}
	setAttachment(ctx, "shin-guards.zip")
	return ctx.Blob(http.StatusOK, mimeZip, data)
}

func (s *APIService) listDesignsHandler(ctx echo.Context) error {
	designs, err := s.coreService.ListDesigns(ctx.Param("id"))
	if err != nil {
		return fail(ctx, "listDesignsHandler", err)
	}
	return ctx.JSON(http.StatusOK, designs)
}

func (s *APIService) saveDesignHandler(ctx echo.Context) error {
	design, err := s.coreService.SaveDesign(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return fail(ctx, "saveDesignHandler", err)
	}
	return ctx.JSON(http.StatusCreated, map[string]any{
		"design":       design,
		"notification": core.Info("Design saved", design.Name+" was saved"),
	})
}

func (s *APIService) loadDesignHandler(ctx echo.Context) error {
	dropped, err := s.coreService.LoadDesign(ctx.Request().Context(), ctx.Param("id"), ctx.Param("designId"))
	if err != nil {
		return fail(ctx, "loadDesignHandler", err)
	}
	notification := core.Info("Design loaded", "Both shin guards were restored")
	if dropped > 0 {
		notification.Description = fmt.Sprintf("%d objects were skipped because their images were removed", dropped)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"dropped":      dropped,
		"notification": notification,
	})
}

func (s *APIService) deleteDesignHandler(ctx echo.Context) error {
	if err := s.coreService.DeleteDesign(ctx.Param("id"), ctx.Param("designId")); err != nil {
		return fail(ctx, "deleteDesignHandler", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ReadUploadFiles loads multipart file headers into memory.
func ReadUploadFiles(headers []*multipart.FileHeader) ([]core.UploadFile, error) {
	files := make([]core.UploadFile, 0, len(headers))
	for _, header := range headers {
		data, err := readFileHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read uploaded file %s: %w", header.Filename, err)
		}
		files = append(files, core.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get(echo.HeaderContentType),
			Data:        data,
		})
	}
	return files, nil
}

func readFileHeader(header *multipart.FileHeader) ([]byte, error) {
	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("readFileHeader: failed to close uploaded file reader", "error", cerr, "filename", header.Filename)
		}
	}()
	return io.ReadAll(src)
}

func setAttachment(ctx echo.Context, fileName string) {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
