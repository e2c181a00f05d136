// Package memory keeps the last resource ids seen in each conversation.
package memory

import (
	"context"
	"errors"
	"sync"
)

// Memory is the per-conversation record of the last ids returned by each tool.
type Memory struct {
	LastAllergyID             string `json:"lastAllergyId,omitempty"`
	LastPatientID             string `json:"lastPatientId,omitempty"`
	LastMedicationRequestID   string `json:"lastMedicationRequestId,omitempty"`
	LastFamilyMemberHistoryID string `json:"lastFamilyMemberHistoryId,omitempty"`
	LastImmunizationID        string `json:"lastImmunizationId,omitempty"`
	LastPersonID              string `json:"lastPersonId,omitempty"`
	LastProcedureID           string `json:"lastProcedureId,omitempty"`
}

// Merge returns m with every non-empty field of other laid over it.
func (m Memory) Merge(other Memory) Memory {
	overlay := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	overlay(&m.LastAllergyID, other.LastAllergyID)
	overlay(&m.LastPatientID, other.LastPatientID)
	overlay(&m.LastMedicationRequestID, other.LastMedicationRequestID)
	overlay(&m.LastFamilyMemberHistoryID, other.LastFamilyMemberHistoryID)
	overlay(&m.LastImmunizationID, other.LastImmunizationID)
	overlay(&m.LastPersonID, other.LastPersonID)
	overlay(&m.LastProcedureID, other.LastProcedureID)
	return m
}

// IsZero reports whether no id has been recorded.
func (m Memory) IsZero() bool {
	return m == Memory{}
}

// ErrEmptyConversationID is returned for a blank conversation id.
var ErrEmptyConversationID = errors.New("conversation id is required")

// Store reads and writes conversation memory. A missing conversation reads as
// the zero Memory. Concurrent writers to one conversation are last-write-wins.
type Store interface {
	Get(ctx context.Context, conversationID string) (Memory, error)
	Set(ctx context.Context, conversationID string, m Memory) error
}

// InMemoryStore is a Store that lives for the lifetime of the process.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]Memory
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]Memory)}
}

// Get returns the memory for conversationID.
func (s *InMemoryStore) Get(_ context.Context, conversationID string) (Memory, error) {
	if conversationID == "" {
		return Memory{}, ErrEmptyConversationID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[conversationID], nil
}

// Set replaces the memory for conversationID.
func (s *InMemoryStore) Set(_ context.Context, conversationID string, m Memory) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[conversationID] = m
	return nil
}

// Len returns the number of conversations held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
