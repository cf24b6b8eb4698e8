package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestService_InitializeAndEmbed(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 8}, WithCacheSize(16))
	defer svc.Close()

	if got := svc.State(); got != StateUninitialized {
		t.Fatalf("state before init: %v", got)
	}
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if got := svc.State(); got != StateReady {
		t.Fatalf("state after init: %v", got)
	}
	if svc.Dimensions() != 8 {
		t.Errorf("dimensions: got %d", svc.Dimensions())
	}

	vec, err := svc.Embed(context.Background(), "The cat is black")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 8 {
		t.Errorf("vector length: got %d, want 8", len(vec))
	}
	for i, v := range vec {
		if v != v { // NaN check
			t.Errorf("vector[%d] is NaN", i)
		}
	}
}

func TestService_EmbedBeforeInitialize(t *testing.T) {
	svc := NewService(&MockBackend{Dims: 4})
	if _, err := svc.Embed(context.Background(), "hello"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestService_InitializeTwiceIsNoOp(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 4})
	defer svc.Close()

	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	first, err := svc.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}

	// Second call must succeed without replacing the working handle.
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	second, err := svc.Embed(context.Background(), "same text")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("embedding changed after redundant initialize at %d", i)
		}
	}
}

func TestService_InitializeMissingAsset(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	removeAsset(t, dir, AssetVocabulary)

	backend := &MockBackend{Dims: 4}
	svc := NewService(backend)
	err := svc.Initialize(context.Background(), dir)
	var missErr *MissingAssetError
	if !errors.As(err, &missErr) {
		t.Fatalf("expected MissingAssetError, got %v", err)
	}
	if missErr.Name != AssetVocabulary {
		t.Errorf("missing asset: got %s, want %s", missErr.Name, AssetVocabulary)
	}
	if got := svc.State(); got != StateFailed {
		t.Errorf("state after missing asset: %v", got)
	}
	if _, err := svc.Embed(context.Background(), "x"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("embed after failed init: %v", err)
	}
}

func TestService_InitializeBackendFailure(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)

	backendErr := fmt.Errorf("weights corrupted at offset 42")
	svc := NewService(&MockBackend{LoadErr: backendErr})
	err := svc.Initialize(context.Background(), dir)
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected LoadError, got %v", err)
	}
	// Backend diagnostic must pass through unmodified.
	if !errors.Is(err, backendErr) {
		t.Errorf("load error should wrap the backend error: %v", err)
	}
	if got := svc.State(); got != StateFailed {
		t.Errorf("state: %v", got)
	}
	if svc.Err() == nil {
		t.Error("Err() should report the failure reason")
	}
}

func TestService_RetryAfterFailure(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)

	backend := &MockBackend{Dims: 4, LoadErr: fmt.Errorf("transient")}
	svc := NewService(backend)
	if err := svc.Initialize(context.Background(), dir); err == nil {
		t.Fatal("expected failure")
	}

	backend.LoadErr = nil
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got := svc.State(); got != StateReady {
		t.Errorf("state after retry: %v", got)
	}
}

func TestService_InitializeAsync(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 4})
	defer svc.Close()

	done := svc.InitializeAsync(context.Background(), dir)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("initialization did not complete")
	}
	if got := svc.State(); got != StateReady {
		t.Errorf("state: %v", got)
	}
}

func TestService_EmbedDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 16})
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	a, err := svc.Embed(context.Background(), "deterministic input")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Embed(context.Background(), "deterministic input")
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestService_EmbedEmptyText(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 8})
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	vec, err := svc.Embed(context.Background(), "")
	if err != nil {
		var infErr *InferenceError
		if !errors.As(err, &infErr) {
			t.Fatalf("empty text must yield a vector or an InferenceError, got %v", err)
		}
		return
	}
	if len(vec) != 8 {
		t.Errorf("vector length for empty text: got %d", len(vec))
	}
}

func TestService_InferenceErrorKeepsReady(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	model := &MockModel{Dims: 4}
	svc := NewService(&staticBackend{model: model})
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	model.Err = fmt.Errorf("tokenizer blew up")
	_, err := svc.Embed(context.Background(), "boom")
	var infErr *InferenceError
	if !errors.As(err, &infErr) {
		t.Fatalf("expected InferenceError, got %v", err)
	}
	if got := svc.State(); got != StateReady {
		t.Errorf("state after inference error: %v", got)
	}

	model.Err = nil
	if _, err := svc.Embed(context.Background(), "recovered"); err != nil {
		t.Errorf("embed after recovery: %v", err)
	}
}

func TestService_CallerOwnsResult(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 4}, WithCacheSize(8))
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	first, err := svc.Embed(context.Background(), "aliasing check")
	if err != nil {
		t.Fatal(err)
	}
	want := first[0]
	first[0] = 999 // mutating the caller's copy must not poison the cache

	second, err := svc.Embed(context.Background(), "aliasing check")
	if err != nil {
		t.Fatal(err)
	}
	if second[0] != want {
		t.Errorf("cached vector was aliased: got %f, want %f", second[0], want)
	}
}

func TestService_EmbedConcurrent(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 8}, WithCacheSize(64))
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			vec, err := svc.Embed(context.Background(), fmt.Sprintf("text %d", n%5))
			if err != nil {
				errs <- err
				return
			}
			if len(vec) != 8 {
				errs <- fmt.Errorf("length %d", len(vec))
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestService_EmbedBatch(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 4})
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	texts := []string{"one", "two", "three"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("batch size: got %d", len(vecs))
	}
	for i, v := range vecs {
		if len(v) != 4 {
			t.Errorf("vector %d length: got %d", i, len(v))
		}
	}
}

func TestService_StoreReadThrough(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	store := newFakeStore()
	svc := NewService(&MockBackend{Dims: 4}, WithStore(store))
	defer svc.Close()
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}

	vec, err := svc.Embed(context.Background(), "persist me")
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.GetVector(context.Background(), svc.ModelName(), "persist me")
	if err != nil || !ok {
		t.Fatalf("store should hold the vector: ok=%v err=%v", ok, err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Fatalf("stored vector differs at %d", i)
		}
	}

	// A second service with the same store but a broken model must serve from
	// the store without touching the model.
	model := &MockModel{Dims: 4, Err: fmt.Errorf("should not be called")}
	svc2 := NewService(&staticBackend{model: model}, WithStore(store))
	if err := svc2.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	again, err := svc2.Embed(context.Background(), "persist me")
	if err != nil {
		t.Fatalf("embed via store: %v", err)
	}
	for i := range vec {
		if again[i] != vec[i] {
			t.Fatalf("store-served vector differs at %d", i)
		}
	}
}

func TestService_Close(t *testing.T) {
	dir := t.TempDir()
	writeAssets(t, dir)
	svc := NewService(&MockBackend{Dims: 4})
	if err := svc.Initialize(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if got := svc.State(); got != StateUninitialized {
		t.Errorf("state after close: %v", got)
	}
	if _, err := svc.Embed(context.Background(), "x"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("embed after close: %v", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateUninitialized, "uninitialized"},
		{StateInitializing, "initializing"},
		{StateReady, "ready"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

// staticBackend hands out a fixed model, so tests can reach inside it.
type staticBackend struct {
	model Model
}

func (b *staticBackend) Load(string) (Model, error) { return b.model, nil }

// fakeStore is an in-memory VectorStore for service tests.
type fakeStore struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]float32)}
}

func (f *fakeStore) GetVector(_ context.Context, model, text string) ([]float32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[model+"\x00"+text]
	return v, ok, nil
}

func (f *fakeStore) PutVector(_ context.Context, model, text string, vec []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[model+"\x00"+text] = append([]float32(nil), vec...)
	return nil
}

func removeAsset(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		t.Fatal(err)
	}
}
