package mocks

import "context"

// Embedder is a mock implementation of ports.Embedder that returns a fixed
// small vector per text.
type Embedder struct {
	Dim int
	Err error
}

// NewEmbedder creates a new mock Embedder.
func NewEmbedder() *Embedder {
	return &Embedder{Dim: 4}
}

// Embed generates a deterministic fake embedding for the given text.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	vec := make([]float32, m.Dim)
	for i, r := range text {
		vec[i%m.Dim] += float32(r)
	}
	return vec, nil
}
