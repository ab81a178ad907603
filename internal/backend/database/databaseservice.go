package database

import "database/sql"

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	CreateWorkspace() (*Workspace, error)
	// GetWorkspace returns nil when the workspace does not exist.
	GetWorkspace(id string) (*Workspace, error)

	// CreateImage stores img at the end of its side and returns the new id.
	CreateImage(img *Image) (string, error)
	// GetImages returns the images of one side (all sides when side is empty)
	// in rank order. Only the requested fields are loaded; none means all.
	GetImages(workspaceID, side string, fields ...string) ([]*Image, error)
	// GetImageByID returns nil when the image does not exist.
	GetImageByID(id string) (*Image, error)
	CountImages(workspaceID, side string) (int, error)
	UpdateRanks(ranks map[string]string) error
	DeleteImage(id string) error
	// DeleteImages removes every image of a side (both sides when side is empty).
	DeleteImages(workspaceID, side string) (int64, error)

	CreateDesign(design *Design) (string, error)
	GetDesigns(workspaceID string) ([]*Design, error)
	// GetDesignByID returns nil when the design does not exist.
	GetDesignByID(id string) (*Design, error)
	CountDesigns(workspaceID string) (int, error)
	DeleteDesign(id string) error
}
