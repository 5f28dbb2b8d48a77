// Package audit captures an append-only trail of consent decisions so the
// site can demonstrate when and how a visitor's choice was made.
package audit

import (
	"context"
	"sync"
	"time"
)

// Audit event actions
const (
	ActionAcceptAll       = "consent_accept_all"
	ActionRejectAll       = "consent_reject_all"
	ActionSavePreferences = "consent_save_preferences"
)

// Audit event reasons
const (
	ReasonUserInitiated = "user_initiated"
)

// Event records a single consent decision with the resulting flags.
type Event struct {
	Action    string
	Reason    string
	Analytics bool
	Marketing bool
	Timestamp time.Time
}

// Store persists audit events.
// Error Contract:
// - Append returns nil on success or a wrapped error on infrastructure failure
type Store interface {
	Append(ctx context.Context, event Event) error
}

// InMemoryStore stores audit events in memory, for tests and single-process use.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

// NewInMemoryStore constructs an empty in-memory audit store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns a copy of all recorded events in append order.
func (s *InMemoryStore) List() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
