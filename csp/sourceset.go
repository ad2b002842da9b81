package csp

import (
	"fmt"
	"sort"
	"sync"
)

// SourceSets is a registry of named, reusable groups of source expressions.
//
// A SourceSets may be shared by many [Policy] instances with [WithSourceSets].
// Shared registries should be populated once at startup and only read afterward.
type SourceSets struct {
	mu   sync.RWMutex
	sets map[string][]string
}

func NewSourceSets() *SourceSets {
	return &SourceSets{sets: map[string][]string{}}
}

// Define sets the expressions for name, replacing any previous definition.
// Expressions are not validated.
func (s *SourceSets) Define(name string, expressions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sets == nil {
		s.sets = map[string][]string{}
	}
	s.sets[name] = append([]string{}, expressions...)
}

// Resolve returns the expressions defined for name, in definition order.
// [ErrSetNotFound] is returned if name has never been defined.
func (s *SourceSets) Resolve(name string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrSetNotFound, name)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	exprs, ok := s.sets[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrSetNotFound, name)
	}
	return append([]string(nil), exprs...), nil
}

// Has reports whether name has been defined.
func (s *SourceSets) Has(name string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sets[name]
	return ok
}

// Names returns the defined set names, sorted.
func (s *SourceSets) Names() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
