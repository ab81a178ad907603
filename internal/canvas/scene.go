package canvas

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
)

var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrFrameNotEditable = errors.New("the template frame cannot be edited")
	ErrObjectLocked     = errors.New("object is locked")
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidPatch     = errors.New("invalid transform values")
	ErrInvalidImageSize = errors.New("image dimensions must be positive")
)

const (
	zoomInFactor  = 1.1
	zoomOutFactor = 0.9
	rotationStep  = 15.0
	duplicateStep = 20.0

	// initial placement of uploaded images: two columns, rows of 120px
	layoutOriginX   = 80.0
	layoutOriginY   = 100.0
	layoutColumnGap = 140.0
	layoutRowGap    = 120.0
	layoutBox       = 80.0
	layoutMaxScale  = 0.5
)

// Action is a one-step transform requested from the object controls.
type Action string

const (
	ActionZoomIn         Action = "zoom-in"
	ActionZoomOut        Action = "zoom-out"
	ActionRotateCW       Action = "rotate-cw"
	ActionRotateCCW      Action = "rotate-ccw"
	ActionFlipHorizontal Action = "flip-horizontal"
	ActionFlipVertical   Action = "flip-vertical"
	ActionCenter         Action = "center"
	ActionBringToFront   Action = "bring-to-front"
	ActionSendToBack     Action = "send-to-back"
	ActionReset          Action = "reset"
	ActionLock           Action = "lock"
	ActionUnlock         Action = "unlock"
	ActionToggleLock     Action = "toggle-lock"
)

var knownActions = []Action{
	ActionZoomIn, ActionZoomOut, ActionRotateCW, ActionRotateCCW,
	ActionFlipHorizontal, ActionFlipVertical, ActionCenter,
	ActionBringToFront, ActionSendToBack, ActionReset,
	ActionLock, ActionUnlock, ActionToggleLock,
}

// ParseAction validates a client supplied action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if slices.Contains(knownActions, a) {
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Patch carries the values a client computed while dragging transform handles.
// Nil fields are left untouched.
type Patch struct {
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	ScaleX *float64 `json:"scaleX,omitempty" validate:"omitempty,gt=0"`
	ScaleY *float64 `json:"scaleY,omitempty" validate:"omitempty,gt=0"`
	Angle  *float64 `json:"angle,omitempty"`
}

// Scene is the object list of one canvas. Objects are ordered bottom to top
// and the frame, when present, is always last.
type Scene struct {
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Objects  []*Object `json:"objects"`
	Revision int64     `json:"revision"`
	History  *History  `json:"history"`
}

// NewScene creates an empty canvas of the given size.
func NewScene(width, height int) *Scene {
	s := &Scene{
		Width:   width,
		Height:  height,
		Objects: []*Object{},
		History: NewHistory(defaultHistorySize),
	}
	s.snapshot()
	return s
}

// SetFrame installs the template overlay, scaled to fit and centred. The
// history is restarted so undo never removes the frame.
func (s *Scene) SetFrame(width, height int) (*Object, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImageSize
	}
	s.Objects = slices.DeleteFunc(s.Objects, func(o *Object) bool { return o.IsFrame() })

	scale := math.Min(float64(s.Width)/float64(width), float64(s.Height)/float64(height))
	frame := &Object{
		ID:     newObjectID(),
		Kind:   KindFrame,
		Name:   FrameName,
		Width:  width,
		Height: height,
		ScaleX: scale,
		ScaleY: scale,
	}
	frame.setCenter(float64(s.Width)/2, float64(s.Height)/2)
	frame.Initial = Placement{Left: frame.Left, Top: frame.Top, Scale: scale}

	s.Objects = append(s.Objects, frame)
	s.Revision++
	s.ResetHistory()
	return frame, nil
}

// ResetHistory makes the current objects the only undo state. Call it after
// image records were added or deleted; undo must not step across them.
func (s *Scene) ResetHistory() {
	if s.History != nil {
		s.History.Clear()
	}
	s.snapshot()
}

// Frame returns the template overlay or nil.
func (s *Scene) Frame() *Object {
	for _, o := range s.Objects {
		if o.IsFrame() {
			return o
		}
	}
	return nil
}

// ImageObjects returns user objects in z-order.
func (s *Scene) ImageObjects() []*Object {
	out := make([]*Object, 0, len(s.Objects))
	for _, o := range s.Objects {
		if !o.IsFrame() {
			out = append(out, o)
		}
	}
	return out
}

// Find returns the object with the given id.
func (s *Scene) Find(id string) (*Object, error) {
	for _, o := range s.Objects {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
}

// AddImage places a new user image using the two-column grid layout. slot is
// the image's position in the side's image list; duplicates do not take one.
func (s *Scene) AddImage(imageID, label string, width, height, slot int) (*Object, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidImageSize
	}
	index := max(slot, 0)
	scale := math.Min(math.Min(layoutBox/float64(width), layoutBox/float64(height)), layoutMaxScale)

	obj := &Object{
		ID:         newObjectID(),
		Kind:       KindImage,
		Name:       UserImageName,
		ImageID:    imageID,
		Label:      label,
		Left:       layoutOriginX + float64(index%2)*layoutColumnGap,
		Top:        layoutOriginY + float64(index/2)*layoutRowGap,
		Width:      width,
		Height:     height,
		ScaleX:     scale,
		ScaleY:     scale,
		Selectable: true,
	}
	obj.Initial = Placement{Left: obj.Left, Top: obj.Top, Scale: scale}
	slog.Debug("Scene: adding image", "image_id", imageID, "label", label, "index", index)

	s.Objects = append(s.Objects, obj)
	s.commit()
	return obj, nil
}

// editable resolves id to a user object that may be transformed.
func (s *Scene) editable(id string) (*Object, error) {
	obj, err := s.Find(id)
	if err != nil {
		return nil, err
	}
	if obj.IsFrame() {
		return nil, ErrFrameNotEditable
	}
	return obj, nil
}

// Apply performs a single control action on an object.
func (s *Scene) Apply(id string, action Action) (*Object, error) {
	obj, err := s.editable(id)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionLock:
		obj.Locked = true
		s.commit()
		return obj, nil
	case ActionUnlock:
		obj.Locked = false
		s.commit()
		return obj, nil
	case ActionToggleLock:
		obj.Locked = !obj.Locked
		s.commit()
		return obj, nil
	}

	if obj.Locked {
		return nil, ErrObjectLocked
	}

	switch action {
	case ActionZoomIn:
		obj.zoom(zoomInFactor)
	case ActionZoomOut:
		obj.zoom(zoomOutFactor)
	case ActionRotateCW:
		obj.Angle = normalizeAngle(obj.Angle + rotationStep)
	case ActionRotateCCW:
		obj.Angle = normalizeAngle(obj.Angle - rotationStep)
	case ActionFlipHorizontal:
		obj.FlipX = !obj.FlipX
	case ActionFlipVertical:
		obj.FlipY = !obj.FlipY
	case ActionCenter:
		obj.setCenter(float64(s.Width)/2, float64(s.Height)/2)
	case ActionBringToFront:
		s.moveTo(obj, len(s.Objects)-1)
	case ActionSendToBack:
		s.moveTo(obj, 0)
	case ActionReset:
		obj.Left = obj.Initial.Left
		obj.Top = obj.Initial.Top
		obj.ScaleX = obj.Initial.Scale
		obj.ScaleY = obj.Initial.Scale
		obj.Angle = 0
		obj.FlipX = false
		obj.FlipY = false
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s.commit()
	return obj, nil
}

// Update applies the values produced by direct manipulation.
func (s *Scene) Update(id string, patch Patch) (*Object, error) {
	obj, err := s.editable(id)
	if err != nil {
		return nil, err
	}
	if obj.Locked {
		return nil, ErrObjectLocked
	}
	if err := patch.validate(); err != nil {
		return nil, err
	}

	if patch.Left != nil {
		obj.Left = *patch.Left
	}
	if patch.Top != nil {
		obj.Top = *patch.Top
	}
	if patch.ScaleX != nil {
		obj.ScaleX = *patch.ScaleX
	}
	if patch.ScaleY != nil {
		obj.ScaleY = *patch.ScaleY
	}
	if patch.Angle != nil {
		obj.Angle = normalizeAngle(*patch.Angle)
	}

	s.commit()
	return obj, nil
}

func (p Patch) validate() error {
	for _, v := range []*float64{p.Left, p.Top, p.ScaleX, p.ScaleY, p.Angle} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return ErrInvalidPatch
		}
	}
	if p.ScaleX != nil && *p.ScaleX <= 0 {
		return fmt.Errorf("%w: scaleX must be positive", ErrInvalidPatch)
	}
	if p.ScaleY != nil && *p.ScaleY <= 0 {
		return fmt.Errorf("%w: scaleY must be positive", ErrInvalidPatch)
	}
	return nil
}

// Duplicate clones an object slightly offset from the original.
func (s *Scene) Duplicate(id string) (*Object, error) {
	obj, err := s.editable(id)
	if err != nil {
		return nil, err
	}
	if obj.Locked {
		return nil, ErrObjectLocked
	}

	dup := obj.clone()
	dup.ID = newObjectID()
	dup.Name = UserImageName
	dup.Left += duplicateStep
	dup.Top += duplicateStep
	dup.Locked = false
	dup.Selectable = true
	dup.Initial = Placement{Left: dup.Left, Top: dup.Top, Scale: dup.ScaleX}

	s.Objects = append(s.Objects, dup)
	s.commit()
	return dup, nil
}

// Remove deletes a user object. Locked objects may still be removed.
func (s *Scene) Remove(id string) error {
	obj, err := s.editable(id)
	if err != nil {
		return err
	}
	s.Objects = slices.DeleteFunc(s.Objects, func(o *Object) bool { return o == obj })
	s.commit()
	return nil
}

// RemoveImage deletes every object that shows imageID and returns how many were removed.
func (s *Scene) RemoveImage(imageID string) int {
	before := len(s.Objects)
	s.Objects = slices.DeleteFunc(s.Objects, func(o *Object) bool {
		return !o.IsFrame() && o.ImageID == imageID
	})
	removed := before - len(s.Objects)
	if removed > 0 {
		s.commit()
	}
	return removed
}

// ClearImages removes all user objects, keeping the frame.
func (s *Scene) ClearImages() {
	s.Objects = slices.DeleteFunc(s.Objects, func(o *Object) bool { return !o.IsFrame() })
	s.commit()
}

// Restore replaces the user objects with a previously captured list. Objects
// whose image is not accepted by keep are dropped.
func (s *Scene) Restore(objects []*Object, keep func(imageID string) bool) int {
	frame := s.Frame()
	restored := make([]*Object, 0, len(objects)+1)
	dropped := 0
	for _, o := range objects {
		if o.IsFrame() {
			continue
		}
		if keep != nil && !keep(o.ImageID) {
			dropped++
			continue
		}
		restored = append(restored, o.clone())
	}
	if frame != nil {
		restored = append(restored, frame)
	}
	s.Objects = restored
	s.commit()
	return dropped
}

// Stats returns the control read-out for an object.
func (s *Scene) Stats(id string) (Stats, error) {
	obj, err := s.editable(id)
	if err != nil {
		return Stats{}, err
	}
	return obj.stats(), nil
}

// Undo reverts the last mutation and reports whether anything changed.
func (s *Scene) Undo() (bool, error) {
	objects, err := s.History.Undo()
	if err != nil || objects == nil {
		return false, err
	}
	s.Objects = objects
	s.ensureFrameOnTop()
	s.Revision++
	return true, nil
}

// Redo re-applies the last undone mutation and reports whether anything changed.
func (s *Scene) Redo() (bool, error) {
	objects, err := s.History.Redo()
	if err != nil || objects == nil {
		return false, err
	}
	s.Objects = objects
	s.ensureFrameOnTop()
	s.Revision++
	return true, nil
}

func (s *Scene) moveTo(obj *Object, index int) {
	s.Objects = slices.DeleteFunc(s.Objects, func(o *Object) bool { return o == obj })
	if index > len(s.Objects) {
		index = len(s.Objects)
	}
	s.Objects = slices.Insert(s.Objects, index, obj)
}

// ensureFrameOnTop re-inserts the frame as the last object when something
// ended up above it. It reports whether the order changed.
func (s *Scene) ensureFrameOnTop() bool {
	last := len(s.Objects) - 1
	for i, o := range s.Objects {
		if !o.IsFrame() {
			continue
		}
		if i == last {
			return false
		}
		s.Objects = append(slices.Delete(s.Objects, i, i+1), o)
		return true
	}
	return false
}

func (s *Scene) commit() {
	s.ensureFrameOnTop()
	s.Revision++
	s.snapshot()
}

func (s *Scene) snapshot() {
	if s.History == nil {
		s.History = NewHistory(defaultHistorySize)
	}
	if err := s.History.Save(s.Objects); err != nil {
		slog.Warn("Scene: failed to record history", "error", err)
	}
}
