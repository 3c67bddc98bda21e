package mocks

import (
	"context"
	"sync"

	"github.com/ersonp/canon-core/internal/domain/entities"
)

// VectorDB is a mock implementation of ports.VectorDB.
type VectorDB struct {
	mu         sync.Mutex
	Concepts   map[string]entities.CanonicalConcept
	Embeddings map[string][]float32
	Err        error
}

// NewVectorDB creates a new mock VectorDB.
func NewVectorDB() *VectorDB {
	return &VectorDB{
		Concepts:   make(map[string]entities.CanonicalConcept),
		Embeddings: make(map[string][]float32),
	}
}

// UpsertConcept stores the concept with its embedding.
func (m *VectorDB) UpsertConcept(_ context.Context, concept entities.CanonicalConcept, embedding []float32) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Concepts[concept.Key] = concept
	m.Embeddings[concept.Key] = embedding
	return nil
}

// DeleteConcept removes the stored embedding for a concept key.
func (m *VectorDB) DeleteConcept(_ context.Context, key string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Concepts, key)
	delete(m.Embeddings, key)
	return nil
}

// Search returns stored concepts up to the limit, ignoring the embedding.
func (m *VectorDB) Search(_ context.Context, _ []float32, limit int) ([]entities.CanonicalConcept, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []entities.CanonicalConcept
	for _, c := range m.Concepts {
		result = append(result, c)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
