package design

import (
	"sync"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Store resolves a design id to its full graph, populated by whatever
// loads design definitions (config file, future API) ahead of execution.
type Store struct {
	mu      sync.RWMutex
	designs map[string]*v1.Design
}

// NewStore builds an empty design Store.
func NewStore() *Store {
	return &Store{designs: make(map[string]*v1.Design)}
}

// Register adds or replaces a design.
func (s *Store) Register(d *v1.Design) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.designs[d.ID] = d
}

// Get returns the design with the given id, or NotFound.
func (s *Store) Get(id string) (*v1.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.designs[id]
	if !ok {
		return nil, apperrors.NotFound("design", id)
	}
	return d, nil
}

// All returns every registered design.
func (s *Store) All() []*v1.Design {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*v1.Design, 0, len(s.designs))
	for _, d := range s.designs {
		out = append(out, d)
	}
	return out
}
