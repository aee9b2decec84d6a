package domain

import (
	"fmt"
	"sync"
)

type SessionState int

const (
	Connecting SessionState = iota
	Active
	Disconnected
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Session is the lifecycle of one connection.
// Allowed transitions are Connecting -> Active and any state -> Disconnected.
type Session struct {
	ID string

	mu       sync.RWMutex
	state    SessionState
	identity Identity
}

func NewSession(id string) *Session {
	return &Session{ID: id, state: Connecting}
}

// Activate stamps the identity on the session.
// It fails when the session already left the Connecting state.
func (s *Session) Activate(identity Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Connecting {
		return fmt.Errorf("cannot activate session %s in state %s", s.ID, s.state)
	}
	s.identity = identity
	s.state = Active
	return nil
}

// Close moves the session to Disconnected and returns the state it left.
// Only the first call sees something other than Disconnected.
func (s *Session) Close() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.state
	s.state = Disconnected
	return previous
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns false unless the session is Active.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Active {
		return Identity{}, false
	}
	return s.identity, true
}
