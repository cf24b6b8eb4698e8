// Package storage persists computed embeddings across runs so that a restart
// does not have to re-run inference for texts it has already seen.
package storage

import "context"

// Store is a persistent vector cache keyed by model name and input text.
type Store interface {
	// GetVector returns the stored vector for (model, text), with ok=false
	// when no entry exists.
	GetVector(ctx context.Context, model, text string) ([]float32, bool, error)
	// PutVector stores the vector for (model, text), replacing any previous entry.
	PutVector(ctx context.Context, model, text string, vec []float32) error
	// CountVectors returns the number of stored entries.
	CountVectors(ctx context.Context) (int64, error)
	Close() error
}
