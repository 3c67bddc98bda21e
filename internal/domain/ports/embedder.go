package ports

import "context"

// Embedder turns text into a vector embedding for the concept mirror.
type Embedder interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
