// Package checkpoint provides per-conversation state persistence.
//
// The saver keeps the latest pipeline state for each thread so a
// conversation can be resumed within the process lifetime. Threads are
// isolated: concurrent conversations never observe each other's state.
package checkpoint

import "sync"

// MemorySaver stores the latest state per thread id. Safe for concurrent
// use. The zero value is not usable; call NewMemorySaver.
type MemorySaver[S any] struct {
	mu     sync.RWMutex
	states map[string]S
}

// NewMemorySaver creates an empty in-memory saver.
func NewMemorySaver[S any]() *MemorySaver[S] {
	return &MemorySaver[S]{states: make(map[string]S)}
}

// Put records state as the latest for threadID, replacing any previous
// checkpoint for that thread.
func (s *MemorySaver[S]) Put(threadID string, state S) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[threadID] = state
}

// Get returns the latest state for threadID. The second return value
// reports whether a checkpoint exists.
func (s *MemorySaver[S]) Get(threadID string) (S, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[threadID]
	return state, ok
}

// Delete removes the checkpoint for threadID.
func (s *MemorySaver[S]) Delete(threadID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, threadID)
}

// Len returns the number of threads with a checkpoint.
func (s *MemorySaver[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
