package core

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const mimeSVG = "image/svg+xml"

// UploadFile is one file of an upload batch.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type processedUpload struct {
	file      UploadFile
	mimeType  string
	processed []byte
	width     int
	height    int
}

// detectMimeType prefers the declared type and sniffs the content otherwise.
func detectMimeType(file UploadFile) string {
	declared := strings.ToLower(strings.TrimSpace(file.ContentType))
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mediaType
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}

	sniffed := http.DetectContentType(file.Data)
	// SVG sniffs as XML or text
	if strings.EqualFold(filepath.Ext(file.Name), ".svg") &&
		(strings.HasPrefix(sniffed, "text/xml") || strings.HasPrefix(sniffed, "text/plain")) {
		return mimeSVG
	}
	if mediaType, _, err := mime.ParseMediaType(sniffed); err == nil {
		return mediaType
	}
	return sniffed
}

// filterImageFiles keeps the files whose MIME type is image/*.
func filterImageFiles(files []UploadFile) []UploadFile {
	images := make([]UploadFile, 0, len(files))
	for _, file := range files {
		if strings.HasPrefix(detectMimeType(file), "image/") {
			images = append(images, file)
		}
	}
	return images
}

// checkUpload applies the batch rules: at least one image, every file within
// the size limit, and no more images than free slots.
func checkUpload(files []UploadFile, existing, maxPerSide int, maxFileBytes int64) ([]UploadFile, error) {
	images := filterImageFiles(files)
	if len(images) == 0 {
		return nil, ErrNoImageFiles
	}
	for _, file := range images {
		if maxFileBytes > 0 && int64(len(file.Data)) > maxFileBytes {
			return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, file.Name, maxFileBytes)
		}
	}
	remaining := max(maxPerSide-existing, 0)
	if len(images) > remaining {
		return nil, &LimitExceededError{Remaining: remaining}
	}
	return images, nil
}

func (service *CoreService) processUpload(file UploadFile) (*processedUpload, error) {
	processed, err := service.pipeline.Execute(file.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, file.Name, err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(processed))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableImage, file.Name, err)
	}
	return &processedUpload{
		file:      file,
		mimeType:  detectMimeType(file),
		processed: processed,
		width:     cfg.Width,
		height:    cfg.Height,
	}, nil
}
