package canvas

import (
	"math"

	"github.com/google/uuid"
)

type ObjectKind string

const (
	KindImage ObjectKind = "image"
	KindFrame ObjectKind = "frame"
)

const (
	// FrameName identifies the template overlay that is kept above user images.
	FrameName = "frame"
	// UserImageName identifies objects created from uploaded images.
	UserImageName = "userImage"
)

// Object is a single drawable entry of a scene. Left/Top address the top-left
// corner of the unrotated, scaled box; rotation and flips apply about the centre.
type Object struct {
	ID         string     `json:"id"`
	Kind       ObjectKind `json:"kind"`
	Name       string     `json:"name"`
	ImageID    string     `json:"imageId,omitempty"`
	Label      string     `json:"label,omitempty"`
	Left       float64    `json:"left"`
	Top        float64    `json:"top"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	ScaleX     float64    `json:"scaleX"`
	ScaleY     float64    `json:"scaleY"`
	Angle      float64    `json:"angle"`
	FlipX      bool       `json:"flipX"`
	FlipY      bool       `json:"flipY"`
	Locked     bool       `json:"locked"`
	Selectable bool       `json:"selectable"`
	Initial    Placement  `json:"initial"`
}

// Placement is the position and scale an object was created with.
type Placement struct {
	Left  float64 `json:"left"`
	Top   float64 `json:"top"`
	Scale float64 `json:"scale"`
}

// Stats is the read-out shown next to the controls of a selected object.
type Stats struct {
	ObjectID string `json:"objectId"`
	Zoom     int    `json:"zoom"`
	Rotation int    `json:"rotation"`
	Left     int    `json:"left"`
	Top      int    `json:"top"`
	Locked   bool   `json:"locked"`
}

func newObjectID() string {
	return uuid.NewString()
}

// IsFrame reports whether o is the template overlay.
func (o *Object) IsFrame() bool {
	return o.Kind == KindFrame || o.Name == FrameName
}

// ScaledWidth returns the on-canvas width before rotation.
func (o *Object) ScaledWidth() float64 {
	return float64(o.Width) * o.ScaleX
}

// ScaledHeight returns the on-canvas height before rotation.
func (o *Object) ScaledHeight() float64 {
	return float64(o.Height) * o.ScaleY
}

// Center returns the point rotation and flips are applied around.
func (o *Object) Center() (float64, float64) {
	return o.Left + o.ScaledWidth()/2, o.Top + o.ScaledHeight()/2
}

// zoom sets a uniform scale derived from the horizontal one; the top-left
// corner stays where it is.
func (o *Object) zoom(factor float64) {
	s := o.ScaleX
	if s == 0 {
		s = 1
	}
	o.ScaleX = s * factor
	o.ScaleY = s * factor
}

func (o *Object) setCenter(cx, cy float64) {
	o.Left = cx - o.ScaledWidth()/2
	o.Top = cy - o.ScaledHeight()/2
}

func (o *Object) stats() Stats {
	return Stats{
		ObjectID: o.ID,
		Zoom:     int(math.Round(o.ScaleX * 100)),
		Rotation: int(math.Round(o.Angle)),
		Left:     int(math.Round(o.Left)),
		Top:      int(math.Round(o.Top)),
		Locked:   o.Locked,
	}
}

func (o *Object) clone() *Object {
	c := *o
	return &c
}

// normalizeAngle folds any angle into [0, 360).
func normalizeAngle(angle float64) float64 {
	a := math.Mod(angle, 360)
	if a < 0 {
		a += 360
	}
	return a
}
