package core

import (
	"errors"
	"fmt"

	"github.com/jo-hoe/shinguard/internal/canvas"
)

type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is the short-lived message shown to the user after an action.
type Notification struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

func Info(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

func Failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive}
}

// NotificationFor describes err for the user. Unknown errors get a generic text
// so internal details never reach the client.
func NotificationFor(err error) Notification {
	var limit *LimitExceededError
	switch {
	case errors.As(err, &limit):
		return Failure("Image limit reached", fmt.Sprintf("You can only upload %d more images", limit.Remaining))
	case errors.Is(err, ErrNoImageFiles):
		return Failure("Invalid files", "Please select image files only")
	case errors.Is(err, ErrFileTooLarge):
		return Failure("File too large", err.Error())
	case errors.Is(err, ErrUnreadableImage):
		return Failure("Invalid image", err.Error())
	case errors.Is(err, ErrEmptyDesign):
		return Failure("Empty design", "Add at least one image before saving")
	case errors.Is(err, ErrNothingToExport):
		return Failure("Nothing to export", "Upload images to this side first")
	case errors.Is(err, ErrWorkspaceNotFound):
		return Failure("Workspace not found", "Reload the page to start a new design")
	case errors.Is(err, ErrImageNotFound):
		return Failure("Image not found", "The image was already removed")
	case errors.Is(err, ErrDesignNotFound):
		return Failure("Design not found", "The design was already deleted")
	case errors.Is(err, ErrInvalidSide), errors.Is(err, ErrInvalidDirection):
		return Failure("Invalid request", err.Error())
	case errors.Is(err, canvas.ErrObjectNotFound):
		return Failure("Object not found", "Select an object on the canvas first")
	case errors.Is(err, canvas.ErrFrameNotEditable):
		return Failure("Template frame", "The shin guard frame cannot be edited")
	case errors.Is(err, canvas.ErrObjectLocked):
		return Failure("Object locked", "Unlock the object to edit it")
	case errors.Is(err, canvas.ErrUnknownAction), errors.Is(err, canvas.ErrInvalidPatch),
		errors.Is(err, canvas.ErrInvalidExportOptions):
		return Failure("Invalid request", err.Error())
	default:
		return Failure("Something went wrong", "Please try again")
	}
}
