// Package connectivity models the host environment's online/offline
// signal: a current boolean state plus transition callbacks the sync
// manager subscribes to.
package connectivity

import (
	"sync"
)

// Signal reports connectivity and notifies on transitions.
type Signal interface {
	// Online reports the current connectivity state.
	Online() bool

	// OnChange registers a callback invoked on every online/offline
	// transition. The returned function unregisters it.
	OnChange(callback func(online bool)) (unsubscribe func())
}

// ManualSignal is a Signal driven by the host (or a test) calling
// SetOnline. Callbacks fire only on actual transitions.
type ManualSignal struct {
	mu        sync.Mutex
	online    bool
	callbacks map[int]func(online bool)
	next      int
}

// NewManualSignal creates a manual signal with the given initial state.
func NewManualSignal(online bool) *ManualSignal {
	return &ManualSignal{
		online:    online,
		callbacks: make(map[int]func(online bool)),
	}
}

// Online reports the current connectivity state.
func (s *ManualSignal) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline updates the state, notifying callbacks if it changed.
func (s *ManualSignal) SetOnline(online bool) {
	s.mu.Lock()
	if s.online == online {
		s.mu.Unlock()
		return
	}
	s.online = online
	callbacks := make([]func(bool), 0, len(s.callbacks))
	for _, cb := range s.callbacks {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(online)
	}
}

// OnChange registers a transition callback.
func (s *ManualSignal) OnChange(callback func(online bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.callbacks[id] = callback
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.callbacks, id)
	}
}
