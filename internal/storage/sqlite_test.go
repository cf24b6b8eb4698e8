package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "embeddings.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_PutGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	vec := []float32{0.1, -0.2, 0.3, 4}
	if err := store.PutVector(ctx, "bert-minilm", "the cat is black", vec); err != nil {
		t.Fatal(err)
	}

	got, ok, err := store.GetVector(ctx, "bert-minilm", "the cat is black")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != len(vec) {
		t.Fatalf("length: got %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vector[%d]: got %f, want %f", i, got[i], vec[i])
		}
	}
}

func TestSQLiteStore_Miss(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.GetVector(context.Background(), "bert-minilm", "never seen")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected miss")
	}
}

func TestSQLiteStore_ModelKeyedSeparately(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutVector(ctx, "model-a", "text", []float32{1}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.GetVector(ctx, "model-b", "text"); ok {
		t.Error("vector leaked across models")
	}
}

func TestSQLiteStore_Replace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.PutVector(ctx, "m", "text", []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := store.PutVector(ctx, "m", "text", []float32{3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	got, ok, err := store.GetVector(ctx, "m", "text")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got) != 3 || got[0] != 3 {
		t.Errorf("replaced vector: got %v", got)
	}

	n, err := store.CountVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count after replace: got %d, want 1", n)
	}
}

func TestSQLiteStore_Count(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.CountVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("empty count: got %d", n)
	}

	for i, text := range []string{"a", "b", "c"} {
		if err := store.PutVector(ctx, "m", text, []float32{float32(i)}); err != nil {
			t.Fatal(err)
		}
	}
	n, err = store.CountVectors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("count: got %d, want 3", n)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	vec := []float32{0, -1.5, 3.25, 1e-7}
	got, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatal(err)
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("roundtrip[%d]: got %f, want %f", i, got[i], vec[i])
		}
	}
}

func TestDecodeVector_BadLength(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
