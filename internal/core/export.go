package core

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/shinguard/internal/backend/database"
	"github.com/jo-hoe/shinguard/internal/canvas"
)

// ExportFileName is the download name of one side.
func ExportFileName(side string, format canvas.Format) string {
	return "shin-guard-" + side + "." + format.Extension()
}

// ExportSide renders one side with opts.
func (service *CoreService) ExportSide(ctx context.Context, workspaceID, side string, opts canvas.ExportOptions) ([]byte, error) {
	scene, images, err := service.renderInput(ctx, workspaceID, side)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := service.renderer.Export(&buf, scene, images, opts); err != nil {
		return nil, fmt.Errorf("failed to export %s side: %w", side, err)
	}
	slog.Info("Export: side rendered", "workspace_id", workspaceID, "side", side,
		"format", opts.Format, "multiplier", opts.Multiplier, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// ExportSideDataURL renders one side as a base64 data URL.
func (service *CoreService) ExportSideDataURL(ctx context.Context, workspaceID, side string, opts canvas.ExportOptions) (string, error) {
	scene, images, err := service.renderInput(ctx, workspaceID, side)
	if err != nil {
		return "", err
	}
	url, err := service.renderer.DataURL(scene, images, opts)
	if err != nil {
		return "", fmt.Errorf("failed to export %s side: %w", side, err)
	}
	return url, nil
}

// Preview renders a small PNG of one side that fits the preview box.
func (service *CoreService) Preview(ctx context.Context, workspaceID, side string) ([]byte, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	if err := validateSide(side); err != nil {
		return nil, err
	}
	scene, err := service.loadScene(ctx, workspaceID, side)
	if err != nil {
		return nil, err
	}
	images, err := service.sideImages(workspaceID, side)
	if err != nil {
		return nil, err
	}
	opts := canvas.ExportOptions{
		Format:     canvas.FormatPNG,
		Multiplier: canvas.PreviewMultiplier(scene.Width, scene.Height),
	}
	var buf bytes.Buffer
	if err := service.renderer.Export(&buf, scene, images, opts); err != nil {
		return nil, fmt.Errorf("failed to render preview: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportAll renders every side that has images into a zip archive.
func (service *CoreService) ExportAll(ctx context.Context, workspaceID string) ([]byte, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, err
	}
	opts := service.config.ExportOptions()

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	written := 0
	for _, side := range []string{database.SideLeft, database.SideRight} {
		data, err := service.ExportSide(ctx, workspaceID, side, opts)
		if err != nil {
			if errors.Is(err, ErrNothingToExport) {
				continue
			}
			return nil, err
		}
		w, err := archive.Create(ExportFileName(side, opts.Format))
		if err != nil {
			return nil, fmt.Errorf("failed to add %s side to archive: %w", side, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to add %s side to archive: %w", side, err)
		}
		written++
	}
	if written == 0 {
		return nil, ErrNothingToExport
	}
	if err := archive.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// renderInput loads the scene and decoded images of a side that has images.
func (service *CoreService) renderInput(ctx context.Context, workspaceID, side string) (*canvas.Scene, map[string]image.Image, error) {
	if err := service.requireWorkspace(workspaceID); err != nil {
		return nil, nil, err
	}
	if err := validateSide(side); err != nil {
		return nil, nil, err
	}
	images, err := service.sideImages(workspaceID, side)
	if err != nil {
		return nil, nil, err
	}
	if len(images) == 0 {
		return nil, nil, ErrNothingToExport
	}
	scene, err := service.loadScene(ctx, workspaceID, side)
	if err != nil {
		return nil, nil, err
	}
	return scene, images, nil
}

// sideImages decodes the processed images of a side keyed by image id.
func (service *CoreService) sideImages(workspaceID, side string) (map[string]image.Image, error) {
	records, err := service.databaseService.GetImages(workspaceID, side, "id", "processed_image")
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	images := make(map[string]image.Image, len(records))
	for _, record := range records {
		img, _, err := image.Decode(bytes.NewReader(record.ProcessedImage))
		if err != nil {
			slog.Warn("Export: skipping undecodable image", "image_id", record.ID, "error", err)
			continue
		}
		images[record.ID] = img
	}
	return images, nil
}
