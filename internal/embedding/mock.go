package embedding

import (
	"context"
	"math"

	"github.com/hyperjump/umekomi/pkg/utils"
)

// MockBackend loads deterministic in-memory models without touching model
// asset contents. Used in tests and by server --mock.
type MockBackend struct {
	// Dims is the vector size of loaded models; 0 means 384.
	Dims int
	// LoadErr, when set, is returned from Load to exercise failure paths.
	LoadErr error
}

// Load implements Backend.
func (b *MockBackend) Load(dir string) (Model, error) {
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	dims := b.Dims
	if dims <= 0 {
		dims = 384
	}
	return &MockModel{Dims: dims}, nil
}

// MockModel produces a deterministic unit vector derived from the text hash,
// so the same text always gets the same embedding.
type MockModel struct {
	Dims int
	// Err, when set, is returned from Encode to exercise failure paths.
	Err error
}

var _ Model = (*MockModel)(nil)

// Encode returns a deterministic embedding based on the text hash.
func (m *MockModel) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	h := hashString(text)
	emb := make([]float32, m.Dims)
	for i := 0; i < m.Dims; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (m *MockModel) Dimensions() int { return m.Dims }

// Name identifies the mock model.
func (m *MockModel) Name() string { return "mock" }

// Close is a no-op for MockModel.
func (m *MockModel) Close() error { return nil }

// hashString returns a deterministic hash of s.
func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}
