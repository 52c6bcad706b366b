// Package history keeps the question/answer turns of one chat session.
package history

import (
	"sync"

	"docqa/internal/domain"
)

// Session is an append-only list of turns guarded by one lock. Create one
// per chat session and pass it to whoever needs it.
type Session struct {
	mu    sync.RWMutex
	turns []domain.Turn
}

// New returns an empty session.
func New() *Session {
	return &Session{}
}

// Append records a completed turn.
func (s *Session) Append(t domain.Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.mu.Unlock()
}

// All returns a copy of every turn in chronological order.
func (s *Session) All() []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Clear forgets every turn.
func (s *Session) Clear() {
	s.mu.Lock()
	s.turns = nil
	s.mu.Unlock()
}
