package embedding

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State is the service lifecycle state.
type State int

const (
	// StateUninitialized means Initialize has not been called yet.
	StateUninitialized State = iota
	// StateInitializing means asset verification or model loading is in flight.
	StateInitializing
	// StateReady means a model is loaded and Embed may be called.
	StateReady
	// StateFailed means the last Initialize failed; Err holds the reason.
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// VectorStore persists embeddings across runs. Implementations must return
// exactly the vector previously put for (model, text).
type VectorStore interface {
	GetVector(ctx context.Context, model, text string) ([]float32, bool, error)
	PutVector(ctx context.Context, model, text string, vec []float32) error
}

// Option configures a Service.
type Option func(*Service)

// WithCacheSize enables an in-memory LRU of the given capacity.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cache = NewCache(n)
		}
	}
}

// WithStore sets a persistent vector store consulted between the LRU and the model.
func WithStore(store VectorStore) Option {
	return func(s *Service) { s.store = store }
}

// WithLogger sets a logger for debug output (cache hits, store failures).
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service owns a single loaded model and serves embedding requests.
//
// Lifecycle: Uninitialized -> Initializing -> Ready or Failed. Ready is
// reached at most once per loaded handle; a second Initialize while Ready is
// a no-op returning nil, so a working handle is never replaced. A Failed
// service may Initialize again (verification and loading have no side
// effects), but nothing retries automatically. Embed never changes state:
// inference errors leave the service Ready.
type Service struct {
	backend Backend
	cache   *Cache
	store   VectorStore
	logger  *zap.Logger

	mu      sync.Mutex
	state   State
	model   Model
	initErr error
}

// NewService creates a service around backend. No model is loaded until Initialize.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		state:   StateUninitialized,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize verifies the required asset files under assetDir, then asks the
// backend to load the model. A missing asset fails with *MissingAssetError
// before the backend is invoked; a backend failure is wrapped in *LoadError
// with the backend diagnostic intact. On success the service is Ready and
// holds exactly one model handle for its remaining lifetime.
func (s *Service) Initialize(ctx context.Context, assetDir string) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateInitializing:
		s.mu.Unlock()
		return ErrInitializing
	}
	s.state = StateInitializing
	s.initErr = nil
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		s.fail(err)
		return err
	}

	if err := VerifyAssets(assetDir); err != nil {
		s.fail(err)
		return err
	}

	s.logger.Debug("loading model", zap.String("asset_dir", assetDir))
	model, err := s.backend.Load(assetDir)
	if err != nil {
		lerr := &LoadError{Err: err}
		s.fail(lerr)
		return lerr
	}

	s.mu.Lock()
	s.model = model
	s.state = StateReady
	s.mu.Unlock()
	s.logger.Info("model loaded",
		zap.String("model", model.Name()),
		zap.Int("dimensions", model.Dimensions()))
	return nil
}

// InitializeAsync runs Initialize on its own goroutine and delivers the
// result on the returned channel. The channel receives exactly one value.
func (s *Service) InitializeAsync(ctx context.Context, assetDir string) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.Initialize(ctx, assetDir)
	}()
	return done
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.initErr = err
	s.mu.Unlock()
	s.logger.Warn("initialization failed", zap.Error(err))
}

// Embed returns the embedding vector for text. The service must be Ready;
// otherwise ErrNotInitialized. The result is a fresh slice owned by the
// caller. Inference failures are returned as *InferenceError and leave the
// service Ready.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrNotInitialized
	}
	model := s.model
	s.mu.Unlock()

	if s.cache != nil {
		if vec, ok := s.cache.Get(text); ok {
			return cloneVector(vec), nil
		}
	}

	if s.store != nil {
		vec, ok, err := s.store.GetVector(ctx, model.Name(), text)
		if err != nil {
			s.logger.Warn("vector store read failed", zap.Error(err))
		} else if ok {
			if s.cache != nil {
				s.cache.Set(text, cloneVector(vec))
			}
			return vec, nil
		}
	}

	vec, err := model.Encode(ctx, text)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}

	if s.cache != nil {
		s.cache.Set(text, cloneVector(vec))
	}
	if s.store != nil {
		if err := s.store.PutVector(ctx, model.Name(), text, vec); err != nil {
			s.logger.Warn("vector store write failed", zap.Error(err))
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text in order. The first failure aborts the batch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = vec
	}
	return embeddings, nil
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error behind a Failed state, nil otherwise.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initErr
}

// Dimensions returns the loaded model's vector size, or 0 before Ready.
func (s *Service) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return 0
	}
	return s.model.Dimensions()
}

// ModelName returns the loaded model's name, or "" before Ready.
func (s *Service) ModelName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return ""
	}
	return s.model.Name()
}

// CacheLen returns the number of entries in the in-memory cache.
func (s *Service) CacheLen() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.Len()
}

// Close releases the model. Afterwards the service is Uninitialized and may
// be initialized again. Intended for process shutdown.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.model != nil {
		err = s.model.Close()
		s.model = nil
	}
	s.state = StateUninitialized
	s.initErr = nil
	return err
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
