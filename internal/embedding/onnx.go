//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/umekomi/pkg/utils"
)

// ONNXBackend loads transformer models exported to ONNX. It requires CGO and
// the onnxruntime shared library.
type ONNXBackend struct {
	opts ONNXOptions
}

// NewONNXBackend creates an ONNX backend with the given options.
func NewONNXBackend(opts ONNXOptions) *ONNXBackend {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 256
	}
	if opts.Pooling == "" {
		opts.Pooling = PoolingMean
	}
	if len(opts.InputNames) == 0 {
		opts.InputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
	}
	if len(opts.OutputNames) == 0 {
		if opts.Pooling == PoolingNone {
			opts.OutputNames = []string{"output"}
		} else {
			opts.OutputNames = []string{"last_hidden_state"}
		}
	}
	return &ONNXBackend{opts: opts}
}

// modelConfig is the subset of the model's config.json the backend reads.
type modelConfig struct {
	ModelType  string `json:"model_type"`
	HiddenSize int    `json:"hidden_size"`
}

// Load implements Backend. dir is expected to have passed VerifyAssets; the
// tokenizer is read from tokenizer.json, the embedding dimensionality from
// config.json, and the weights from model.onnx.
func (b *ONNXBackend) Load(dir string) (Model, error) {
	if !b.opts.Pooling.Valid() {
		return nil, fmt.Errorf("unknown pooling strategy: %s", b.opts.Pooling)
	}

	if b.opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(b.opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	cfgData, err := os.ReadFile(filepath.Join(dir, AssetModelConfig))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AssetModelConfig, err)
	}
	var mc modelConfig
	if err := json.Unmarshal(cfgData, &mc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", AssetModelConfig, err)
	}
	if mc.HiddenSize <= 0 {
		return nil, fmt.Errorf("parse %s: hidden_size missing or invalid", AssetModelConfig)
	}

	tkFile, err := os.Open(filepath.Join(dir, AssetTokenizer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", AssetTokenizer, err)
	}
	defer tkFile.Close()
	tk, err := pretrained.FromReader(tkFile)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(dir, AssetModelWeights),
		b.opts.InputNames,
		b.opts.OutputNames,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	name := mc.ModelType
	if name == "" {
		name = "onnx"
	}
	return &onnxModel{
		tk:        tk,
		session:   session,
		name:      fmt.Sprintf("%s-%s", name, filepath.Base(dir)),
		dims:      mc.HiddenSize,
		maxTokens: b.opts.MaxTokens,
		pooling:   b.opts.Pooling,
		normalize: b.opts.Normalize,
	}, nil
}

// onnxModel is a loaded ONNX session plus its tokenizer. Inference is
// serialized by mu: at most one Encode runs at a time.
type onnxModel struct {
	tk        *tokenizer.Tokenizer
	session   *ort.DynamicAdvancedSession
	name      string
	dims      int
	maxTokens int
	pooling   PoolingStrategy
	normalize bool
	mu        sync.Mutex
}

var _ Model = (*onnxModel)(nil)

// Name returns the model identifier (model_type plus asset directory name).
func (m *onnxModel) Name() string { return m.name }

// Dimensions returns the embedding vector size from the model config.
func (m *onnxModel) Dimensions() int { return m.dims }

// Encode tokenizes text and runs the ONNX forward pass, pooling token
// output to a single vector. The returned slice is freshly allocated.
func (m *onnxModel) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return nil, fmt.Errorf("model closed")
	}

	input := tokenizer.NewSingleEncodeInput(tokenizer.NewInputSequence(text))
	encodings, err := m.tk.EncodeBatch([]tokenizer.EncodeInput{input}, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(encodings) == 0 {
		return nil, fmt.Errorf("tokenize: no encoding produced")
	}
	enc := encodings[0]

	seqLen := len(enc.Ids)
	if seqLen > m.maxTokens {
		seqLen = m.maxTokens
	}
	if seqLen == 0 {
		// Even empty text normally tokenizes to start/end markers; a fully
		// empty encoding means there is nothing to run.
		return make([]float32, m.dims), nil
	}

	inputIDs := make([]int64, seqLen)
	attentionMask := make([]int64, seqLen)
	tokenTypeIDs := make([]int64, seqLen)
	for i := 0; i < seqLen; i++ {
		inputIDs[i] = int64(enc.Ids[i])
		if i < len(enc.AttentionMask) {
			attentionMask[i] = int64(enc.AttentionMask[i])
		}
		if i < len(enc.TypeIds) {
			tokenTypeIDs[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(seqLen))
	idsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()
	typeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typeTensor.Destroy()

	var outShape ort.Shape
	if m.pooling == PoolingNone {
		outShape = ort.NewShape(1, int64(m.dims))
	} else {
		outShape = ort.NewShape(1, int64(seqLen), int64(m.dims))
	}
	outTensor, err := ort.NewEmptyTensor[float32](outShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outTensor.Destroy()

	inputs := []ort.ArbitraryTensor{idsTensor, maskTensor, typeTensor}
	outputs := []ort.ArbitraryTensor{outTensor}
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	flat := outTensor.GetData()
	var vec []float32
	switch m.pooling {
	case PoolingNone:
		if len(flat) < m.dims {
			return nil, fmt.Errorf("unexpected output size: got %d, want %d", len(flat), m.dims)
		}
		vec = make([]float32, m.dims)
		copy(vec, flat[:m.dims])
	case PoolingCLS:
		vec = clsPool(flat, m.dims)
	default:
		vec = meanPool(flat, attentionMask, seqLen, m.dims)
	}

	if m.normalize {
		utils.NormalizeL2(vec)
	}
	return vec, nil
}

// Close destroys the ONNX session. The model is unusable afterwards.
func (m *onnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			return fmt.Errorf("destroy session: %w", err)
		}
		m.session = nil
	}
	return nil
}
