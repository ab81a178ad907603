package frontend

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jo-hoe/shinguard/internal/backend"
	"github.com/jo-hoe/shinguard/internal/backend/database"
	"github.com/jo-hoe/shinguard/internal/canvas"
	"github.com/jo-hoe/shinguard/internal/core"
	"github.com/labstack/echo/v4"
)

const (
	MainPageName    = "index.html"
	viewsPattern    = "views/*.html"
	workspaceCookie = "shinguard_workspace"
)

//go:embed views/*.html
var templateFS embed.FS

//go:embed views/icon.svg
var assetsFS embed.FS

// Template adapts html/template to echo.Renderer.
type Template struct {
	templates *template.Template
}

func (t *Template) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

type FrontendService struct {
	coreService *core.CoreService
	hub         *Hub
	templates   *template.Template
}

type actionButton struct {
	Action    canvas.Action
	Label     string
	Transform bool // disabled while the object is locked
}

var objectActions = []actionButton{
	{canvas.ActionZoomIn, "Zoom +", true},
	{canvas.ActionZoomOut, "Zoom -", true},
	{canvas.ActionRotateCCW, "Rotate left", true},
	{canvas.ActionRotateCW, "Rotate right", true},
	{canvas.ActionFlipHorizontal, "Flip H", true},
	{canvas.ActionFlipVertical, "Flip V", true},
	{canvas.ActionCenter, "Center", true},
	{canvas.ActionBringToFront, "Front", true},
	{canvas.ActionSendToBack, "Back", true},
	{canvas.ActionReset, "Reset", true},
	{canvas.ActionToggleLock, "Lock / unlock", false},
}

type pageData struct {
	Workspace    *core.WorkspaceSummary
	Sides        []*sideData
	Designs      []*database.Design
	FrameWarning *core.Notification
}

type sideData struct {
	WorkspaceID string
	Side        string
	Title       string
	Count       int
	Max         int
	Images      []imageItem
	Objects     []objectItem
	Actions     []actionButton
	CanUndo     bool
	CanRedo     bool
	PreviewURL  string
	Timestamp   string
	OOB         bool
}

type imageItem struct {
	core.ImageInfo
	First bool
	Last  bool
}

type objectItem struct {
	ID    string
	Label string
	Stats canvas.Stats
}

func NewFrontendService(coreService *core.CoreService, hub *Hub) *FrontendService {
	return &FrontendService{
		coreService: coreService,
		hub:         hub,
		templates:   template.Must(template.New("").ParseFS(templateFS, viewsPattern)),
	}
}

// rootRedirectHandler redirects root path to index.html
func (service *FrontendService) rootRedirectHandler(ctx echo.Context) error {
	return ctx.Redirect(http.StatusMovedPermanently, "/"+MainPageName)
}

func (service *FrontendService) SetRoutes(e *echo.Echo) {
	e.Renderer = &Template{templates: service.templates}

	e.GET("/", service.rootRedirectHandler) // Redirect root to index.html
	e.GET("/"+MainPageName, service.indexHandler)

	htmx := e.Group("/htmx/workspaces/:id")
	htmx.GET("/sides/:side", service.htmxSideHandler)
	htmx.DELETE("/sides", service.htmxResetAllHandler)
	htmx.DELETE("/sides/:side", service.htmxResetSideHandler)
	htmx.POST("/sides/:side/images", service.htmxUploadImagesHandler)
	htmx.DELETE("/sides/:side/images/:imageId", service.htmxRemoveImageHandler)
	htmx.POST("/sides/:side/images/:imageId/move", service.htmxMoveImageHandler)
	htmx.POST("/sides/:side/objects/:objectId/actions", service.htmxActionHandler)
	htmx.POST("/sides/:side/objects/:objectId/duplicate", service.htmxDuplicateHandler)
	htmx.DELETE("/sides/:side/objects/:objectId", service.htmxRemoveObjectHandler)
	htmx.POST("/sides/:side/undo", service.htmxUndoHandler)
	htmx.POST("/sides/:side/redo", service.htmxRedoHandler)
	htmx.POST("/designs", service.htmxSaveDesignHandler)
	htmx.POST("/designs/:designId/load", service.htmxLoadDesignHandler)
	htmx.DELETE("/designs/:designId", service.htmxDeleteDesignHandler)

	e.GET("/ws/workspaces/:id", service.hub.websocketHandler)

	// Favicon (SVG) route
	e.GET("/icon.svg", service.iconHandler)
}

// indexHandler renders the designer for the workspace named by the query or
// the cookie, creating a new workspace when neither resolves.
func (service *FrontendService) indexHandler(ctx echo.Context) error {
	summary, err := service.resolveWorkspace(ctx)
	if err != nil {
		slog.Error("indexHandler: failed to resolve workspace", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to open workspace")
	}

	data := pageData{
		Workspace:    summary,
		FrameWarning: service.coreService.FrameWarning(),
	}
	for _, side := range core.Sides {
		sd, err := service.buildSide(ctx.Request().Context(), summary.ID, side)
		if err != nil {
			slog.Error("indexHandler: failed to build side", "side", side, "error", err)
			return ctx.String(http.StatusInternalServerError, "Failed to load workspace")
		}
		data.Sides = append(data.Sides, sd)
	}
	if data.Designs, err = service.coreService.ListDesigns(summary.ID); err != nil {
		slog.Error("indexHandler: failed to list designs", "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load designs")
	}

	service.setNoCache(ctx)
	return ctx.Render(http.StatusOK, MainPageName, data)
}

func (service *FrontendService) resolveWorkspace(ctx echo.Context) (*core.WorkspaceSummary, error) {
	candidates := []string{ctx.QueryParam("workspace")}
	if cookie, err := ctx.Cookie(workspaceCookie); err == nil {
		candidates = append(candidates, cookie.Value)
	}
	for _, id := range candidates {
		if id == "" {
			continue
		}
		summary, err := service.coreService.Summary(id)
		if err == nil {
			service.setWorkspaceCookie(ctx, id)
			return summary, nil
		}
		if !errors.Is(err, core.ErrWorkspaceNotFound) {
			return nil, err
		}
	}

	ws, err := service.coreService.CreateWorkspace(ctx.Request().Context())
	if err != nil {
		return nil, err
	}
	service.setWorkspaceCookie(ctx, ws.ID)
	return service.coreService.Summary(ws.ID)
}

func (service *FrontendService) setWorkspaceCookie(ctx echo.Context, id string) {
	ctx.SetCookie(&http.Cookie{
		Name:     workspaceCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().AddDate(0, 0, 30),
	})
}

func (service *FrontendService) buildSide(ctx context.Context, workspaceID, side string) (*sideData, error) {
	images, err := service.coreService.ListImages(workspaceID, side)
	if err != nil {
		return nil, err
	}
	scene, err := service.coreService.Scene(ctx, workspaceID, side)
	if err != nil {
		return nil, err
	}

	ts := service.timestampNanoStr()
	sd := &sideData{
		WorkspaceID: workspaceID,
		Side:        side,
		Title:       strings.ToUpper(side[:1]) + side[1:] + " shin guard",
		Count:       len(images),
		Max:         service.coreService.Config().Upload.MaxImagesPerSide,
		Actions:     objectActions,
		PreviewURL:  fmt.Sprintf("/api/workspaces/%s/sides/%s/preview?ts=%s", workspaceID, side, ts),
		Timestamp:   ts,
	}
	if scene.History != nil {
		sd.CanUndo = scene.History.CanUndo()
		sd.CanRedo = scene.History.CanRedo()
	}
	for i, img := range images {
		sd.Images = append(sd.Images, imageItem{ImageInfo: img, First: i == 0, Last: i == len(images)-1})
	}
	// topmost first, like a layers panel
	objects := scene.ImageObjects()
	for i := len(objects) - 1; i >= 0; i-- {
		obj := objects[i]
		label := obj.Label
		if label == "" {
			label = fmt.Sprintf("Image %d", i+1)
		}
		stats, err := scene.Stats(obj.ID)
		if err != nil {
			return nil, err
		}
		sd.Objects = append(sd.Objects, objectItem{ID: obj.ID, Label: label, Stats: stats})
	}
	return sd, nil
}

// renderSide answers an htmx request with the refreshed side, the counter and
// an optional toast.
func (service *FrontendService) renderSide(ctx echo.Context, side string, notification *core.Notification) error {
	workspaceID := ctx.Param("id")
	sd, err := service.buildSide(ctx.Request().Context(), workspaceID, side)
	if err != nil {
		return service.toastError(ctx, "renderSide", err)
	}

	var b bytes.Buffer
	if err := service.templates.ExecuteTemplate(&b, "side", sd); err != nil {
		return service.toastError(ctx, "renderSide", err)
	}
	if err := service.writeCounter(&b, workspaceID); err != nil {
		return service.toastError(ctx, "renderSide", err)
	}
	if notification != nil {
		if err := service.templates.ExecuteTemplate(&b, "toast", notification); err != nil {
			return service.toastError(ctx, "renderSide", err)
		}
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, b.String())
}

// renderOOB returns out-of-band updates only: both sides, the counter and a toast.
func (service *FrontendService) renderOOB(ctx echo.Context, notification core.Notification) error {
	workspaceID := ctx.Param("id")
	var b bytes.Buffer
	for _, side := range core.Sides {
		sd, err := service.buildSide(ctx.Request().Context(), workspaceID, side)
		if err != nil {
			return service.toastError(ctx, "renderOOB", err)
		}
		sd.OOB = true
		if err := service.templates.ExecuteTemplate(&b, "side", sd); err != nil {
			return service.toastError(ctx, "renderOOB", err)
		}
	}
	if err := service.writeCounter(&b, workspaceID); err != nil {
		return service.toastError(ctx, "renderOOB", err)
	}
	if err := service.templates.ExecuteTemplate(&b, "toast", notification); err != nil {
		return service.toastError(ctx, "renderOOB", err)
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, b.String())
}

func (service *FrontendService) writeCounter(w io.Writer, workspaceID string) error {
	summary, err := service.coreService.Summary(workspaceID)
	if err != nil {
		return err
	}
	return service.templates.ExecuteTemplate(w, "counter", summary)
}

// toastError reports err as a toast and leaves the swap target untouched.
func (service *FrontendService) toastError(ctx echo.Context, handler string, err error) error {
	status := backend.StatusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(handler+": request failed", "route", ctx.Path(), "error", err)
	} else {
		slog.Warn(handler+": request rejected", "route", ctx.Path(), "status", status, "error", err)
	}

	var b bytes.Buffer
	if terr := service.templates.ExecuteTemplate(&b, "toast", core.NotificationFor(err)); terr != nil {
		slog.Error(handler+": failed to render toast", "error", terr)
		return ctx.String(http.StatusInternalServerError, "Something went wrong")
	}
	ctx.Response().Header().Set("HX-Reswap", "none")
	return ctx.HTML(http.StatusOK, b.String())
}

func (service *FrontendService) htmxSideHandler(ctx echo.Context) error {
	return service.renderSide(ctx, ctx.Param("side"), nil)
}

func (service *FrontendService) htmxResetAllHandler(ctx echo.Context) error {
	if err := service.coreService.ResetAll(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return service.toastError(ctx, "htmxResetAllHandler", err)
	}
	return service.renderOOB(ctx, core.Info("Design reset", "Both shin guards were cleared"))
}

func (service *FrontendService) htmxResetSideHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if err := service.coreService.ResetSide(ctx.Request().Context(), ctx.Param("id"), side); err != nil {
		return service.toastError(ctx, "htmxResetSideHandler", err)
	}
	notification := core.Info("Side reset", fmt.Sprintf("The %s shin guard was cleared", side))
	return service.renderSide(ctx, side, &notification)
}

func (service *FrontendService) htmxUploadImagesHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	form, err := ctx.MultipartForm()
	if err != nil {
		return service.toastError(ctx, "htmxUploadImagesHandler", core.ErrNoImageFiles)
	}
	files, err := backend.ReadUploadFiles(form.File["images"])
	if err != nil {
		return service.toastError(ctx, "htmxUploadImagesHandler", err)
	}

	images, err := service.coreService.UploadImages(ctx.Request().Context(), ctx.Param("id"), side, files)
	if err != nil {
		return service.toastError(ctx, "htmxUploadImagesHandler", err)
	}
	notification := core.Info("Images uploaded", fmt.Sprintf("%d images added to the %s shin guard", len(images), side))
	return service.renderSide(ctx, side, &notification)
}

func (service *FrontendService) htmxRemoveImageHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if err := service.coreService.RemoveImage(ctx.Request().Context(), ctx.Param("id"), side, ctx.Param("imageId")); err != nil {
		return service.toastError(ctx, "htmxRemoveImageHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxMoveImageHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	dir := strings.ToLower(strings.TrimSpace(ctx.QueryParam("dir")))
	if err := service.coreService.MoveImage(ctx.Param("id"), side, ctx.Param("imageId"), dir); err != nil {
		return service.toastError(ctx, "htmxMoveImageHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxActionHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	_, err := service.coreService.ApplyAction(ctx.Request().Context(), ctx.Param("id"), side, ctx.Param("objectId"), ctx.FormValue("action"))
	if err != nil {
		return service.toastError(ctx, "htmxActionHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxDuplicateHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if _, err := service.coreService.DuplicateObject(ctx.Request().Context(), ctx.Param("id"), side, ctx.Param("objectId")); err != nil {
		return service.toastError(ctx, "htmxDuplicateHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxRemoveObjectHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if err := service.coreService.RemoveObject(ctx.Request().Context(), ctx.Param("id"), side, ctx.Param("objectId")); err != nil {
		return service.toastError(ctx, "htmxRemoveObjectHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxUndoHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if _, err := service.coreService.Undo(ctx.Request().Context(), ctx.Param("id"), side); err != nil {
		return service.toastError(ctx, "htmxUndoHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) htmxRedoHandler(ctx echo.Context) error {
	side := ctx.Param("side")
	if _, err := service.coreService.Redo(ctx.Request().Context(), ctx.Param("id"), side); err != nil {
		return service.toastError(ctx, "htmxRedoHandler", err)
	}
	return service.renderSide(ctx, side, nil)
}

func (service *FrontendService) renderDesigns(ctx echo.Context, notification *core.Notification) error {
	workspaceID := ctx.Param("id")
	summary, err := service.coreService.Summary(workspaceID)
	if err != nil {
		return service.toastError(ctx, "renderDesigns", err)
	}
	designs, err := service.coreService.ListDesigns(workspaceID)
	if err != nil {
		return service.toastError(ctx, "renderDesigns", err)
	}

	var b bytes.Buffer
	if err := service.templates.ExecuteTemplate(&b, "designs", pageData{Workspace: summary, Designs: designs}); err != nil {
		return service.toastError(ctx, "renderDesigns", err)
	}
	if notification != nil {
		if err := service.templates.ExecuteTemplate(&b, "toast", notification); err != nil {
			return service.toastError(ctx, "renderDesigns", err)
		}
	}
	service.setNoCache(ctx)
	return ctx.HTML(http.StatusOK, b.String())
}

func (service *FrontendService) htmxSaveDesignHandler(ctx echo.Context) error {
	design, err := service.coreService.SaveDesign(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return service.toastError(ctx, "htmxSaveDesignHandler", err)
	}
	notification := core.Info("Design saved", design.Name+" was saved")
	return service.renderDesigns(ctx, &notification)
}

func (service *FrontendService) htmxLoadDesignHandler(ctx echo.Context) error {
	dropped, err := service.coreService.LoadDesign(ctx.Request().Context(), ctx.Param("id"), ctx.Param("designId"))
	if err != nil {
		return service.toastError(ctx, "htmxLoadDesignHandler", err)
	}
	notification := core.Info("Design loaded", "Both shin guards were restored")
	if dropped > 0 {
		notification.Description = fmt.Sprintf("%d objects were skipped because their images were removed", dropped)
	}
	return service.renderOOB(ctx, notification)
}

func (service *FrontendService) htmxDeleteDesignHandler(ctx echo.Context) error {
	if err := service.coreService.DeleteDesign(ctx.Param("id"), ctx.Param("designId")); err != nil {
		return service.toastError(ctx, "htmxDeleteDesignHandler", err)
	}
	return service.renderDesigns(ctx, nil)
}

func (service *FrontendService) setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}

func (service *FrontendService) timestampNanoStr() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

func (service *FrontendService) iconHandler(ctx echo.Context) error {
	data, err := assetsFS.ReadFile("views/icon.svg")
	if err != nil {
		slog.Error("iconHandler: failed to read icon.svg", "status", http.StatusInternalServerError, "error", err)
		return ctx.String(http.StatusInternalServerError, "Failed to load icon")
	}
	// Cache for 7 days
	ctx.Response().Header().Set("Cache-Control", "public, max-age=604800, immutable")
	return ctx.Blob(http.StatusOK, "image/svg+xml", data)
}
