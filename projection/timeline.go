// Package projection builds local timelines from observed events.
// Handles ordering and deduplication of one team's messages.
// Does not emit events or interact with UI directly.
package projection

import (
	"context"
	"sync"

	"team-chat/domain"
	"team-chat/domain/event"

	"github.com/google/uuid"
)

// Timeline is the newest-first view of one team.
// History pages are appended below, live messages are prepended on top,
// and a message id is never shown twice.
type Timeline struct {
	Team domain.TeamID

	mu       sync.RWMutex
	messages []domain.ChatMessage
	seen     map[uuid.UUID]struct{}
}

func NewTimeline(team domain.TeamID) *Timeline {
	return &Timeline{
		Team: team,
		seen: make(map[uuid.UUID]struct{}),
	}
}

// LoadHistory appends a newest-first page below what is already shown.
func (t *Timeline) LoadHistory(page []domain.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range page {
		if t.remember(m) {
			t.messages = append(t.messages, m)
		}
	}
}

// Receive prepends a live message. It returns false for duplicates and
// for messages of another team.
func (t *Timeline) Receive(m domain.ChatMessage) bool {
	if m.TeamID != t.Team {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.remember(m) {
		return false
	}
	t.messages = append([]domain.ChatMessage{m}, t.messages...)
	return true
}

// Consume lets a Timeline sit behind any event source.
func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	if posted, ok := e.(event.MessagePosted); ok {
		t.Receive(posted.Message)
	}
	return nil
}

// Messages returns a copy, newest first.
func (t *Timeline) Messages() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.ChatMessage(nil), t.messages...)
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

func (t *Timeline) remember(m domain.ChatMessage) bool {
	if _, ok := t.seen[m.ID]; ok {
		return false
	}
	t.seen[m.ID] = struct{}{}
	return true
}
