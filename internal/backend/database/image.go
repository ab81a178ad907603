package database

import (
	"encoding/json"
	"time"
)

const (
	SideLeft  = "left"
	SideRight = "right"
)

// Workspace groups the two sides of one customisation session.
type Workspace struct {
	ID        string    `db:"id"`
	CreatedAt time.Time `db:"created_at"`
}

type Image struct {
	ID             string    `db:"id"`
	WorkspaceID    string    `db:"workspace_id"`
	Side           string    `db:"side"`
	Name           string    `db:"name"`
	MimeType       string    `db:"mime_type"`
	OriginalImage  []byte    `db:"original_image"`  // uploaded bytes as received
	ProcessedImage []byte    `db:"processed_image"` // normalised PNG
	Width          int       `db:"width"`
	Height         int       `db:"height"`
	Rank           string    `db:"rank"` // LexoRank string to maintain ordering within a side
	CreatedAt      time.Time `db:"created_at"`
}

// ImageRef is the part of an image a saved design keeps.
type ImageRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Design is a named snapshot of both sides of a workspace.
type Design struct {
	ID          string                     `db:"id" json:"id"`
	WorkspaceID string                     `db:"workspace_id" json:"workspaceId"`
	Name        string                     `db:"name" json:"name"`
	LeftImages  []ImageRef                 `db:"left_images" json:"leftImages"`
	RightImages []ImageRef                 `db:"right_images" json:"rightImages"`
	Scenes      map[string]json.RawMessage `db:"scenes" json:"scenes"` // side -> object list
	CreatedAt   time.Time                  `db:"created_at" json:"createdAt"`
}
