package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoImageFiles      = errors.New("please select image files only")
	ErrFileTooLarge      = errors.New("file is too large")
	ErrUnreadableImage   = errors.New("image could not be processed")
	ErrEmptyDesign       = errors.New("add at least one image before saving a design")
	ErrNothingToExport   = errors.New("there are no images to export on this side")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrImageNotFound     = errors.New("image not found")
	ErrDesignNotFound    = errors.New("design not found")
	ErrInvalidSide       = errors.New("side must be left or right")
	ErrInvalidDirection  = errors.New("direction must be up or down")
)

// LimitExceededError rejects an upload batch that does not fit the free slots of a side.
type LimitExceededError struct {
	Remaining int
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("you can only upload %d more images", e.Remaining)
}
