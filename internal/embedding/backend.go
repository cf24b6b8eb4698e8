// Package embedding provides text embedding inference over a pretrained
// transformer model loaded from a directory of asset files.
package embedding

import "context"

// Backend loads models from an asset directory. It is the only thing the
// service knows about the underlying runtime, so tests can substitute a mock
// without real weight files.
type Backend interface {
	Load(dir string) (Model, error)
}

// Model is a loaded, immutable model+tokenizer pair.
type Model interface {
	// Encode produces the embedding vector for text. Implementations must be
	// deterministic: equal input yields an equal vector. Empty text is valid;
	// the tokenizer decides how to represent it.
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed output vector length.
	Dimensions() int

	// Name returns a human-readable model identifier.
	Name() string

	// Close releases model resources.
	Close() error
}

// ONNXOptions configure the ONNX backend. The zero value gets BERT-style
// defaults (see onnx.go).
type ONNXOptions struct {
	// LibraryPath optionally points at the onnxruntime shared library; when
	// empty the default loader paths are used.
	LibraryPath string
	// MaxTokens caps the tokenized sequence length. Zero means 256.
	MaxTokens int
	// Pooling reduces token-level output to one vector. Empty means mean.
	Pooling PoolingStrategy
	// Normalize L2-normalizes output vectors.
	Normalize bool
	// InputNames and OutputNames are the ONNX tensor names. Defaults cover
	// BERT-style exports: input_ids/attention_mask/token_type_ids in, and
	// last_hidden_state out (or "output" when Pooling is PoolingNone).
	InputNames  []string
	OutputNames []string
}
