package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFound = errors.New("entity not found")
	ErrExists   = errors.New("entity already exists")
	ErrStale    = errors.New("etag does not match")
)

// Store keeps every family's documents in insertion order. Documents are
// stored in canonical JSON so that equal content yields equal ETags.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

type table struct {
	order []string
	docs  map[string]json.RawMessage
}

func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) table(family string) *table {
	t, ok := s.tables[family]
	if !ok {
		t = &table{docs: make(map[string]json.RawMessage)}
		s.tables[family] = t
	}
	return t
}

// ETag is the quoted sha256 of a canonical document.
func ETag(doc json.RawMessage) string {
	sum := sha256.Sum256(doc)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func canonical(doc any) (json.RawMessage, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// List returns the documents of family in insertion order.
func (s *Store) List(family string) []json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[family]
	if !ok {
		return []json.RawMessage{}
	}
	out := make([]json.RawMessage, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.docs[id])
	}
	return out
}

// Get returns a document and its ETag.
func (s *Store) Get(family, id string) (json.RawMessage, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[family]
	if !ok {
		return nil, "", ErrNotFound
	}
	doc, ok := t.docs[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	return doc, ETag(doc), nil
}

// Create inserts a new document.
func (s *Store) Create(family, id string, doc any) (json.RawMessage, string, error) {
	raw, err := canonical(doc)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(family)
	if _, ok := t.docs[id]; ok {
		return nil, "", ErrExists
	}
	t.order = append(t.order, id)
	t.docs[id] = raw
	return raw, ETag(raw), nil
}

// Update replaces a document when ifMatch is its current ETag.
func (s *Store) Update(family, id, ifMatch string, doc any) (json.RawMessage, string, error) {
	raw, err := canonical(doc)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(family)
	cur, ok := t.docs[id]
	if !ok {
		return nil, "", ErrNotFound
	}
	if ETag(cur) != ifMatch {
		return nil, "", ErrStale
	}
	t.docs[id] = raw
	return raw, ETag(raw), nil
}

// Replace overwrites a document unconditionally. It is used by bulk
// operations, which carry no ETags.
func (s *Store) Replace(family, id string, doc any) error {
	raw, err := canonical(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(family)
	if _, ok := t.docs[id]; !ok {
		t.order = append(t.order, id)
	}
	t.docs[id] = raw
	return nil
}

// Delete removes ids. Nothing is removed unless every id exists.
func (s *Store) Delete(family string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(family)
	var missing []string
	for _, id := range ids {
		if _, ok := t.docs[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrNotFound, missing)
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(t.docs, id)
	}
	kept := t.order[:0]
	for _, id := range t.order {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	t.order = kept
	return nil
}

// Seed loads documents keyed by idField, replacing existing ones.
func (s *Store) Seed(family, idField string, docs ...json.RawMessage) error {
	for i, raw := range docs {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("seed %s %d: %w", family, i, err)
		}
		id, _ := m[idField].(string)
		if id == "" {
			return fmt.Errorf("seed %s %d: missing %s", family, i, idField)
		}
		if err := s.Replace(family, id, m); err != nil {
			return err
		}
	}
	return nil
}
