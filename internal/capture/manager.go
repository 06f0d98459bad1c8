package capture

import (
	"log/slog"
	"sync"
)

// Manager serializes access to the process-wide capture resource. The
// microphone is a singleton: a second Acquire while one lease is
// outstanding returns ErrBusy rather than corrupting the active session.
type Manager struct {
	mu     sync.Mutex
	active bool
	holder string
}

func NewManager() *Manager {
	return &Manager{}
}

// Acquire takes the capture lease for the named holder.
func (m *Manager) Acquire(holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		slog.Debug("capture lease refused", "holder", holder, "held_by", m.holder)
		return ErrBusy
	}
	m.active = true
	m.holder = holder
	return nil
}

// Release returns the lease. Releasing an unheld lease is a no-op so that
// defensive teardown paths stay safe.
func (m *Manager) Release(holder string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	if m.holder != holder {
		slog.Warn("capture lease released by non-holder", "holder", holder, "held_by", m.holder)
		return
	}
	m.active = false
	m.holder = ""
}

// Busy reports whether the capture resource is currently held.
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
