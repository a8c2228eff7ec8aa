package pipeline

import (
	"context"
	"sync"

	"github.com/yeonjae-dev/bizradar/internal/common"
)

// RunHandle serializes pipeline runs: at most one run may hold the slot
// at a time. The holder of a successful Acquire must call the returned
// release exactly once.
type RunHandle struct {
	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// NewRunHandle creates an idle run handle.
func NewRunHandle() *RunHandle {
	return &RunHandle{}
}

// Acquire claims the run slot. It returns common.ErrRunActive when a run
// already holds it.
func (h *RunHandle) Acquire(cancel context.CancelFunc) (release func(), err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.active {
		return nil, common.ErrRunActive
	}
	h.active = true
	h.cancel = cancel

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			h.active = false
			h.cancel = nil
			h.mu.Unlock()
		})
	}, nil
}

// IsActive reports whether a run currently holds the slot.
func (h *RunHandle) IsActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active
}

// Cancel cancels the active run, if any. Safe to call repeatedly and
// when idle.
func (h *RunHandle) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
