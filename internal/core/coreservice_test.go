package core

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/jo-hoe/shinguard/internal/backend/database"
	"github.com/jo-hoe/shinguard/internal/backend/scenestore"
	"github.com/jo-hoe/shinguard/internal/canvas"

	_ "github.com/jo-hoe/shinguard/internal/backend/commands"
)

func newTestCoreService(t *testing.T, mutate ...func(*ServiceConfig)) *CoreService {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database = Database{Type: "sqlite", ConnectionString: ":memory:"}
	for _, m := range mutate {
		m(cfg)
	}
	svc, err := NewCoreService(cfg)
	if err != nil {
		t.Fatalf("NewCoreService failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestWorkspace(t *testing.T, svc *CoreService) string {
	t.Helper()
	ws, err := svc.CreateWorkspace(context.Background())
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}
	return ws.ID
}

func pngFiles(t *testing.T, n int) []UploadFile {
	t.Helper()
	files := make([]UploadFile, 0, n)
	for i := 0; i < n; i++ {
		files = append(files, UploadFile{
			Name:        "photo.png",
			ContentType: "image/png",
			Data:        makePNG(t, 40, 20, color.NRGBA{R: 200, A: 255}),
		})
	}
	return files
}

func upload(t *testing.T, svc *CoreService, ws, side string, n int) []ImageInfo {
	t.Helper()
	infos, err := svc.UploadImages(context.Background(), ws, side, pngFiles(t, n))
	if err != nil {
		t.Fatalf("UploadImages failed: %v", err)
	}
	return infos
}

func TestCoreService_UploadPlacesImages(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	infos := upload(t, svc, ws, database.SideLeft, 3)
	if len(infos) != 3 {
		t.Fatalf("expected 3 images, got %d", len(infos))
	}
	if infos[0].Width != 40 || infos[0].Height != 20 {
		t.Errorf("unexpected processed size %dx%d", infos[0].Width, infos[0].Height)
	}
	if infos[0].URL != "/api/images/"+infos[0].ID+"/content" {
		t.Errorf("unexpected url %q", infos[0].URL)
	}

	scene, err := svc.Scene(ctx, ws, database.SideLeft)
	if err != nil {
		t.Fatalf("Scene failed: %v", err)
	}
	objects := scene.ImageObjects()
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(objects))
	}
	if objects[2].Left != 80 || objects[2].Top != 220 {
		t.Errorf("third image should start a new row, got (%v, %v)", objects[2].Left, objects[2].Top)
	}
	if scene.Frame() == nil || scene.Objects[len(scene.Objects)-1] != scene.Frame() {
		t.Error("frame should be the topmost object")
	}

	summary, err := svc.Summary(ws)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Left != 3 || summary.Right != 0 || summary.Total != 3 || summary.MaxPerSide != 4 || summary.MaxTotal != 8 {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestCoreService_UploadLimits(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	_, err := svc.UploadImages(ctx, ws, database.SideRight, pngFiles(t, 5))
	var limit *LimitExceededError
	if !errors.As(err, &limit) || limit.Remaining != 4 {
		t.Fatalf("expected limit error with 4 remaining, got %v", err)
	}

	upload(t, svc, ws, database.SideRight, 3)
	_, err = svc.UploadImages(ctx, ws, database.SideRight, pngFiles(t, 2))
	if !errors.As(err, &limit) || limit.Remaining != 1 {
		t.Fatalf("expected limit error with 1 remaining, got %v", err)
	}
	count, _ := svc.databaseService.CountImages(ws, database.SideRight)
	if count != 3 {
		t.Errorf("rejected batch must not store anything, got %d images", count)
	}

	// the other side has its own slots
	upload(t, svc, ws, database.SideLeft, 4)

	_, err = svc.UploadImages(ctx, ws, database.SideLeft, []UploadFile{{Name: "a.txt", Data: []byte("text")}})
	if !errors.Is(err, ErrNoImageFiles) {
		t.Fatalf("expected ErrNoImageFiles, got %v", err)
	}
}

func TestCoreService_UploadRejectsBrokenImage(t *testing.T) {
	svc := newTestCoreService(t)
	ws := newTestWorkspace(t, svc)

	files := append(pngFiles(t, 1), UploadFile{Name: "broken.png", ContentType: "image/png", Data: []byte("not a png")})
	_, err := svc.UploadImages(context.Background(), ws, database.SideLeft, files)
	if !errors.Is(err, ErrUnreadableImage) {
		t.Fatalf("expected ErrUnreadableImage, got %v", err)
	}
	if count, _ := svc.databaseService.CountImages(ws, database.SideLeft); count != 0 {
		t.Errorf("expected no stored images, got %d", count)
	}
}

func TestCoreService_InvalidTargets(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	if _, err := svc.Scene(ctx, "missing", database.SideLeft); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("expected ErrWorkspaceNotFound, got %v", err)
	}
	if _, err := svc.Scene(ctx, ws, "middle"); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("expected ErrInvalidSide, got %v", err)
	}
	if _, err := svc.GetImageByID("missing"); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound, got %v", err)
	}
	if err := svc.RemoveImage(ctx, ws, database.SideLeft, "missing"); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("expected ErrImageNotFound, got %v", err)
	}
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, "missing", "zoom-in"); !errors.Is(err, canvas.ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, "missing", "explode"); !errors.Is(err, canvas.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestCoreService_ObjectOperations(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)
	upload(t, svc, ws, database.SideLeft, 1)

	scene, _ := svc.Scene(ctx, ws, database.SideLeft)
	objectID := scene.ImageObjects()[0].ID
	frameID := scene.Frame().ID

	obj, err := svc.ApplyAction(ctx, ws, database.SideLeft, objectID, "rotate-cw")
	if err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}
	if obj.Angle != 15 {
		t.Errorf("expected angle 15, got %v", obj.Angle)
	}

	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, frameID, "zoom-in"); !errors.Is(err, canvas.ErrFrameNotEditable) {
		t.Errorf("expected ErrFrameNotEditable, got %v", err)
	}

	left := 10.0
	if _, err := svc.UpdateObject(ctx, ws, database.SideLeft, objectID, canvas.Patch{Left: &left}); err != nil {
		t.Fatalf("UpdateObject failed: %v", err)
	}
	stats, err := svc.ObjectStats(ctx, ws, database.SideLeft, objectID)
	if err != nil {
		t.Fatalf("ObjectStats failed: %v", err)
	}
	if stats.Left != 10 || stats.Rotation != 15 {
		t.Errorf("unexpected stats %+v", stats)
	}

	dup, err := svc.DuplicateObject(ctx, ws, database.SideLeft, objectID)
	if err != nil {
		t.Fatalf("DuplicateObject failed: %v", err)
	}
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, dup.ID, "lock"); err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, dup.ID, "zoom-in"); !errors.Is(err, canvas.ErrObjectLocked) {
		t.Errorf("expected ErrObjectLocked, got %v", err)
	}
	if err := svc.RemoveObject(ctx, ws, database.SideLeft, dup.ID); err != nil {
		t.Fatalf("locked objects can still be removed: %v", err)
	}

	changed, err := svc.Undo(ctx, ws, database.SideLeft)
	if err != nil || !changed {
		t.Fatalf("Undo = %v, %v", changed, err)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	if len(scene.ImageObjects()) != 2 {
		t.Errorf("undo should bring the duplicate back, got %d objects", len(scene.ImageObjects()))
	}
	changed, err = svc.Redo(ctx, ws, database.SideLeft)
	if err != nil || !changed {
		t.Fatalf("Redo = %v, %v", changed, err)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	if len(scene.ImageObjects()) != 1 {
		t.Errorf("redo should remove the duplicate again, got %d objects", len(scene.ImageObjects()))
	}
	if scene.Objects[len(scene.Objects)-1].ID != frameID {
		t.Error("frame should stay on top after undo/redo")
	}
}

func TestCoreService_RemoveAndReset(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)
	left := upload(t, svc, ws, database.SideLeft, 2)
	upload(t, svc, ws, database.SideRight, 1)

	scene, _ := svc.Scene(ctx, ws, database.SideLeft)
	if _, err := svc.DuplicateObject(ctx, ws, database.SideLeft, scene.ImageObjects()[0].ID); err != nil {
		t.Fatalf("DuplicateObject failed: %v", err)
	}

	if err := svc.RemoveImage(ctx, ws, database.SideLeft, left[0].ID); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	if len(scene.ImageObjects()) != 1 {
		t.Errorf("expected the image and its duplicate to be removed, %d objects left", len(scene.ImageObjects()))
	}
	images, _ := svc.ListImages(ws, database.SideLeft)
	if len(images) != 1 || images[0].ID != left[1].ID {
		t.Errorf("unexpected images after removal %+v", images)
	}

	if err := svc.ResetSide(ctx, ws, database.SideLeft); err != nil {
		t.Fatalf("ResetSide failed: %v", err)
	}
	summary, _ := svc.Summary(ws)
	if summary.Left != 0 || summary.Right != 1 {
		t.Errorf("unexpected summary after side reset %+v", summary)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	if len(scene.ImageObjects()) != 0 || scene.Frame() == nil {
		t.Error("reset should keep only the frame")
	}

	if err := svc.ResetAll(ctx, ws); err != nil {
		t.Fatalf("ResetAll failed: %v", err)
	}
	summary, _ = svc.Summary(ws)
	if summary.Total != 0 {
		t.Errorf("expected empty workspace, got %+v", summary)
	}
}

func TestCoreService_MoveImage(t *testing.T) {
	svc := newTestCoreService(t)
	ws := newTestWorkspace(t, svc)
	infos := upload(t, svc, ws, database.SideLeft, 3)

	if err := svc.MoveImage(ws, database.SideLeft, infos[2].ID, "up"); err != nil {
		t.Fatalf("MoveImage failed: %v", err)
	}
	if err := svc.MoveImage(ws, database.SideLeft, infos[0].ID, "up"); err != nil {
		t.Fatalf("moving the first image up should be a no-op: %v", err)
	}
	if err := svc.MoveImage(ws, database.SideLeft, infos[0].ID, "sideways"); !errors.Is(err, ErrInvalidDirection) {
		t.Errorf("expected ErrInvalidDirection, got %v", err)
	}

	images, _ := svc.ListImages(ws, database.SideLeft)
	got := []string{images[0].ID, images[1].ID, images[2].ID}
	want := []string{infos[0].ID, infos[2].ID, infos[1].ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestCoreService_Designs(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	if _, err := svc.SaveDesign(ctx, ws); !errors.Is(err, ErrEmptyDesign) {
		t.Fatalf("expected ErrEmptyDesign, got %v", err)
	}

	left := upload(t, svc, ws, database.SideLeft, 2)
	first, err := svc.SaveDesign(ctx, ws)
	if err != nil {
		t.Fatalf("SaveDesign failed: %v", err)
	}
	if first.Name != "Design 1" || len(first.LeftImages) != 2 || len(first.RightImages) != 0 {
		t.Errorf("unexpected design %+v", first)
	}
	second, _ := svc.SaveDesign(ctx, ws)
	if second.Name != "Design 2" {
		t.Errorf("expected Design 2, got %q", second.Name)
	}

	// change the scene, then restore the first design
	scene, _ := svc.Scene(ctx, ws, database.SideLeft)
	objectID := scene.ImageObjects()[0].ID
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, objectID, "rotate-cw"); err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}
	if err := svc.RemoveImage(ctx, ws, database.SideLeft, left[1].ID); err != nil {
		t.Fatalf("RemoveImage failed: %v", err)
	}

	dropped, err := svc.LoadDesign(ctx, ws, first.ID)
	if err != nil {
		t.Fatalf("LoadDesign failed: %v", err)
	}
	if dropped != 1 {
		t.Errorf("expected the object of the removed image to be dropped, got %d", dropped)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	objects := scene.ImageObjects()
	if len(objects) != 1 || objects[0].Angle != 0 {
		t.Errorf("unexpected restored objects %+v", objects)
	}
	if scene.Frame() == nil || scene.Objects[len(scene.Objects)-1] != scene.Frame() {
		t.Error("frame should be on top after loading a design")
	}

	designs, _ := svc.ListDesigns(ws)
	if len(designs) != 2 {
		t.Fatalf("expected 2 designs, got %d", len(designs))
	}
	if err := svc.DeleteDesign(ws, first.ID); err != nil {
		t.Fatalf("DeleteDesign failed: %v", err)
	}
	if err := svc.DeleteDesign(ws, first.ID); !errors.Is(err, ErrDesignNotFound) {
		t.Errorf("expected ErrDesignNotFound, got %v", err)
	}
	if _, err := svc.LoadDesign(ctx, ws, first.ID); !errors.Is(err, ErrDesignNotFound) {
		t.Errorf("expected ErrDesignNotFound, got %v", err)
	}
}

func TestCoreService_Export(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	if _, err := svc.ExportSide(ctx, ws, database.SideLeft, svc.config.ExportOptions()); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
	if _, err := svc.ExportAll(ctx, ws); !errors.Is(err, ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport for an empty workspace, got %v", err)
	}

	upload(t, svc, ws, database.SideLeft, 1)

	data, err := svc.ExportSide(ctx, ws, database.SideLeft, canvas.ExportOptions{Format: canvas.FormatPNG, Multiplier: 1})
	if err != nil {
		t.Fatalf("ExportSide failed: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("export is not an image: %v", err)
	}
	if format != "png" || cfg.Width != 350 || cfg.Height != 450 {
		t.Errorf("unexpected export %s %dx%d", format, cfg.Width, cfg.Height)
	}

	url, err := svc.ExportSideDataURL(ctx, ws, database.SideLeft, canvas.ExportOptions{Format: canvas.FormatJPEG, Quality: 80, Multiplier: 1})
	if err != nil {
		t.Fatalf("ExportSideDataURL failed: %v", err)
	}
	if len(url) < 23 || url[:23] != "data:image/jpeg;base64," {
		t.Errorf("unexpected data url prefix %q", url[:min(len(url), 30)])
	}

	preview, err := svc.Preview(ctx, ws, database.SideLeft)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	cfg, _, _ = image.DecodeConfig(bytes.NewReader(preview))
	if cfg.Width > 200 || cfg.Height > 250 {
		t.Errorf("preview %dx%d exceeds the preview box", cfg.Width, cfg.Height)
	}

	archive, err := svc.ExportAll(ctx, ws)
	if err != nil {
		t.Fatalf("ExportAll failed: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("export is not a zip: %v", err)
	}
	if len(reader.File) != 1 || reader.File[0].Name != "shin-guard-left.png" {
		names := []string{}
		for _, f := range reader.File {
			names = append(names, f.Name)
		}
		t.Errorf("unexpected archive entries %v", names)
	}
}

func TestCoreService_SceneListener(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)

	var (
		mu     sync.Mutex
		events []string
	)
	svc.OnSceneChange(func(workspaceID, side string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, workspaceID+"/"+side)
	})

	upload(t, svc, ws, database.SideRight, 1)
	if err := svc.ResetSide(ctx, ws, database.SideRight); err != nil {
		t.Fatalf("ResetSide failed: %v", err)
	}
	// failed mutations are not announced
	_, _ = svc.ApplyAction(ctx, ws, database.SideRight, "missing", "zoom-in")

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != ws+"/right" || events[1] != ws+"/right" {
		t.Errorf("unexpected events %v", events)
	}
}

func TestCoreService_MissingFrameTemplate(t *testing.T) {
	svc := newTestCoreService(t, func(cfg *ServiceConfig) {
		cfg.Canvas.FrameTemplate = "/path/that/does/not/exist/frame.svg"
	})
	if svc.FrameWarning() == nil {
		t.Fatal("expected a frame warning")
	}
	if svc.FrameWarning().Variant != VariantDestructive {
		t.Errorf("unexpected warning %+v", svc.FrameWarning())
	}

	ws := newTestWorkspace(t, svc)
	scene, err := svc.Scene(context.Background(), ws, database.SideLeft)
	if err != nil {
		t.Fatalf("Scene failed: %v", err)
	}
	if scene.Frame() != nil {
		t.Error("scene should continue without a frame")
	}
}

func TestWorkspaceLocks(t *testing.T) {
	locks := newWorkspaceLocks()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("ws")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("expected 50 increments, got %d", counter)
	}
	if len(locks.locks) != 0 {
		t.Errorf("expected released entries to be dropped, %d left", len(locks.locks))
	}
}

// assertCanvasMatchesRecords checks that every image object has a stored
// image and that the side shows exactly wantObjects objects for wantRecords images.
func assertCanvasMatchesRecords(t *testing.T, svc *CoreService, ws, side string, wantObjects, wantRecords int) {
	t.Helper()
	scene, err := svc.Scene(context.Background(), ws, side)
	if err != nil {
		t.Fatalf("Scene failed: %v", err)
	}
	objects := scene.ImageObjects()
	for _, obj := range objects {
		if _, err := svc.GetImageByID(obj.ImageID); err != nil {
			t.Errorf("object %s shows image %s without a record: %v", obj.ID, obj.ImageID, err)
		}
	}
	count, err := svc.databaseService.CountImages(ws, side)
	if err != nil {
		t.Fatalf("CountImages failed: %v", err)
	}
	if len(objects) != wantObjects || count != wantRecords {
		t.Errorf("expected %d objects for %d images, got %d objects for %d images", wantObjects, wantRecords, len(objects), count)
	}
}

func TestCoreService_UndoStopsAtImageChanges(t *testing.T) {
	tests := []struct {
		name        string
		change      func(t *testing.T, svc *CoreService, ws string, infos []ImageInfo)
		wantObjects int
		wantRecords int
	}{
		{
			name:        "upload",
			change:      func(t *testing.T, svc *CoreService, ws string, infos []ImageInfo) {},
			wantObjects: 2,
			wantRecords: 2,
		},
		{
			name: "remove image",
			change: func(t *testing.T, svc *CoreService, ws string, infos []ImageInfo) {
				if err := svc.RemoveImage(context.Background(), ws, database.SideLeft, infos[0].ID); err != nil {
					t.Fatalf("RemoveImage failed: %v", err)
				}
			},
			wantObjects: 1,
			wantRecords: 1,
		},
		{
			name: "reset side",
			change: func(t *testing.T, svc *CoreService, ws string, infos []ImageInfo) {
				if err := svc.ResetSide(context.Background(), ws, database.SideLeft); err != nil {
					t.Fatalf("ResetSide failed: %v", err)
				}
			},
			wantObjects: 0,
			wantRecords: 0,
		},
		{
			name: "reset all",
			change: func(t *testing.T, svc *CoreService, ws string, infos []ImageInfo) {
				if err := svc.ResetAll(context.Background(), ws); err != nil {
					t.Fatalf("ResetAll failed: %v", err)
				}
			},
			wantObjects: 0,
			wantRecords: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCoreService(t)
			ctx := context.Background()
			ws := newTestWorkspace(t, svc)
			infos := upload(t, svc, ws, database.SideLeft, 2)

			tt.change(t, svc, ws, infos)

			for _, step := range []func(context.Context, string, string) (bool, error){svc.Undo, svc.Redo} {
				changed, err := step(ctx, ws, database.SideLeft)
				if err != nil {
					t.Fatalf("history step failed: %v", err)
				}
				if changed {
					t.Error("expected no history across the image change")
				}
			}
			assertCanvasMatchesRecords(t, svc, ws, database.SideLeft, tt.wantObjects, tt.wantRecords)
		})
	}
}

func TestCoreService_EditsAfterUploadStayUndoable(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)
	upload(t, svc, ws, database.SideLeft, 1)

	scene, _ := svc.Scene(ctx, ws, database.SideLeft)
	objectID := scene.ImageObjects()[0].ID
	if _, err := svc.ApplyAction(ctx, ws, database.SideLeft, objectID, "rotate-cw"); err != nil {
		t.Fatalf("ApplyAction failed: %v", err)
	}

	if changed, err := svc.Undo(ctx, ws, database.SideLeft); err != nil || !changed {
		t.Fatalf("Undo = %v, %v", changed, err)
	}
	if changed, err := svc.Undo(ctx, ws, database.SideLeft); err != nil || changed {
		t.Fatalf("undo must stop at the upload, got %v, %v", changed, err)
	}
	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	objects := scene.ImageObjects()
	if len(objects) != 1 || objects[0].ID != objectID || objects[0].Angle != 0 {
		t.Errorf("expected the uploaded object unrotated, got %+v", objects)
	}

	// a second upload keeps the earlier object and restarts the history
	upload(t, svc, ws, database.SideLeft, 1)
	if changed, err := svc.Undo(ctx, ws, database.SideLeft); err != nil || changed {
		t.Fatalf("undo must stop at the second upload, got %v, %v", changed, err)
	}
	assertCanvasMatchesRecords(t, svc, ws, database.SideLeft, 2, 2)
}

func TestCoreService_UploadSlotIgnoresDuplicates(t *testing.T) {
	svc := newTestCoreService(t)
	ctx := context.Background()
	ws := newTestWorkspace(t, svc)
	upload(t, svc, ws, database.SideLeft, 1)

	scene, _ := svc.Scene(ctx, ws, database.SideLeft)
	if _, err := svc.DuplicateObject(ctx, ws, database.SideLeft, scene.ImageObjects()[0].ID); err != nil {
		t.Fatalf("DuplicateObject failed: %v", err)
	}
	second := upload(t, svc, ws, database.SideLeft, 1)

	scene, _ = svc.Scene(ctx, ws, database.SideLeft)
	for _, obj := range scene.ImageObjects() {
		if obj.ImageID != second[0].ID {
			continue
		}
		if obj.Left != 220 || obj.Top != 100 {
			t.Errorf("second image should take the second grid slot, got (%v, %v)", obj.Left, obj.Top)
		}
		return
	}
	t.Fatal("second image has no object")
}

type failingImageStore struct {
	database.DatabaseService
	createLimit int
	created     int
}

func (store *failingImageStore) CreateImage(img *database.Image) (string, error) {
	if store.created >= store.createLimit {
		return "", errors.New("disk full")
	}
	store.created++
	return store.DatabaseService.CreateImage(img)
}

type failingSceneStore struct {
	scenestore.SceneStore
}

func (failingSceneStore) Save(context.Context, string, string, *canvas.Scene) error {
	return errors.New("store unavailable")
}

func TestCoreService_UploadRollsBackOnStoreFailure(t *testing.T) {
	tests := []struct {
		name   string
		broken func(svc *CoreService)
	}{
		{
			name: "second insert fails",
			broken: func(svc *CoreService) {
				svc.databaseService = &failingImageStore{DatabaseService: svc.databaseService, createLimit: 1}
			},
		},
		{
			name: "scene save fails",
			broken: func(svc *CoreService) {
				svc.sceneStore = failingSceneStore{SceneStore: svc.sceneStore}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestCoreService(t)
			ctx := context.Background()
			ws := newTestWorkspace(t, svc)
			databaseService, sceneStore := svc.databaseService, svc.sceneStore

			tt.broken(svc)
			if _, err := svc.UploadImages(ctx, ws, database.SideLeft, pngFiles(t, 3)); err == nil {
				t.Fatal("expected upload to fail")
			}

			svc.databaseService, svc.sceneStore = databaseService, sceneStore
			assertCanvasMatchesRecords(t, svc, ws, database.SideLeft, 0, 0)

			// the failed batch must not hold on to upload slots
			upload(t, svc, ws, database.SideLeft, 4)
			assertCanvasMatchesRecords(t, svc, ws, database.SideLeft, 4, 4)
		})
	}
}
