package core

import "sync"

// workspaceLocks serialises mutations per workspace. Entries are dropped once
// no goroutine holds or waits for them.
type workspaceLocks struct {
	mu    sync.Mutex
	locks map[string]*workspaceLock
}

type workspaceLock struct {
	mu   sync.Mutex
	refs int
}

func newWorkspaceLocks() *workspaceLocks {
	return &workspaceLocks{locks: make(map[string]*workspaceLock)}
}

// lock blocks until the workspace is free and returns the matching unlock.
func (w *workspaceLocks) lock(workspaceID string) func() {
	w.mu.Lock()
	entry, ok := w.locks[workspaceID]
	if !ok {
		entry = &workspaceLock{}
		w.locks[workspaceID] = entry
	}
	entry.refs++
	w.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		w.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(w.locks, workspaceID)
		}
		w.mu.Unlock()
	}
}
