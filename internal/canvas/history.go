package canvas

import (
	"encoding/json"
	"fmt"
)

const defaultHistorySize = 50

// History keeps JSON snapshots of the object list for undo/redo.
type History struct {
	States  []string `json:"states"`
	Current int      `json:"current"`
	Max     int      `json:"max"`
}

// NewHistory creates an empty history holding at most max snapshots.
func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &History{
		States:  make([]string, 0, max),
		Current: -1,
		Max:     max,
	}
}

// Save records objects as the newest state, dropping any redo branch.
func (h *History) Save(objects []*Object) error {
	data, err := json.Marshal(objects)
	if err != nil {
		return fmt.Errorf("failed to snapshot scene: %w", err)
	}

	if h.Current < len(h.States)-1 {
		h.States = h.States[:h.Current+1]
	}

	if len(h.States) == h.Max {
		// drop the oldest state in place so its string can be collected
		copy(h.States, h.States[1:])
		h.States[len(h.States)-1] = string(data)
		return nil
	}
	h.States = append(h.States, string(data))
	h.Current++
	return nil
}

func (h *History) CanUndo() bool {
	return h.Current > 0
}

func (h *History) CanRedo() bool {
	return h.Current < len(h.States)-1
}

// Undo steps back one state. It returns nil when there is nothing to undo.
func (h *History) Undo() ([]*Object, error) {
	if !h.CanUndo() {
		return nil, nil
	}
	h.Current--
	return h.load(h.Current)
}

// Redo steps forward one state. It returns nil when there is nothing to redo.
func (h *History) Redo() ([]*Object, error) {
	if !h.CanRedo() {
		return nil, nil
	}
	h.Current++
	return h.load(h.Current)
}

// Clear drops every snapshot.
func (h *History) Clear() {
	h.States = h.States[:0]
	h.Current = -1
}

func (h *History) load(idx int) ([]*Object, error) {
	var objects []*Object
	if err := json.Unmarshal([]byte(h.States[idx]), &objects); err != nil {
		return nil, fmt.Errorf("failed to restore scene snapshot: %w", err)
	}
	if objects == nil {
		objects = []*Object{}
	}
	return objects, nil
}
