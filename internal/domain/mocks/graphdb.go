package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// GraphDB is a mock implementation of ports.GraphDB.
type GraphDB struct {
	mu       sync.Mutex
	Concepts map[string]entities.CanonicalConcept
	Edges    map[string]string // sourceKey|relType|targetKey -> relType
	Err      error
}

// NewGraphDB creates a new mock GraphDB.
func NewGraphDB() *GraphDB {
	return &GraphDB{
		Concepts: make(map[string]entities.CanonicalConcept),
		Edges:    make(map[string]string),
	}
}

// UpsertConcept creates or updates the canonical node for a concept.
func (m *GraphDB) UpsertConcept(_ context.Context, concept entities.CanonicalConcept) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Concepts[concept.Key] = concept
	return nil
}

// DeleteConcept removes the canonical node for a key.
func (m *GraphDB) DeleteConcept(_ context.Context, key string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Concepts, key)
	return nil
}

// RelateConcepts records a relation between two canonical nodes.
func (m *GraphDB) RelateConcepts(_ context.Context, sourceKey, targetKey, relType string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Edges[sourceKey+"|"+relType+"|"+targetKey] = relType
	return nil
}

// RelabelType moves every node of one type label to another, rewriting keys
// to the target prefix.
func (m *GraphDB) RelabelType(_ context.Context, source, target string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sourcePrefix := entities.NormalizeName(source) + ":"
	targetPrefix := entities.NormalizeName(target) + ":"
	for key, c := range m.Concepts {
		if c.TypeName != source {
			continue
		}
		c.TypeName = target
		c.Key = targetPrefix + strings.TrimPrefix(key, sourcePrefix)
		delete(m.Concepts, key)
		m.Concepts[c.Key] = c
	}
	return nil
}

// CountConcepts counts canonical nodes for a type.
func (m *GraphDB) CountConcepts(_ context.Context, typeName string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.Concepts {
		if c.TypeName == typeName {
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (m *GraphDB) Close(_ context.Context) error {
	return nil
}
