package embedding

// PoolingStrategy selects how per-token model outputs reduce to a single
// sentence vector. The strategy is fixed at load time so equal inputs always
// yield equal outputs.
type PoolingStrategy string

const (
	// PoolingMean averages token embeddings weighted by the attention mask.
	PoolingMean PoolingStrategy = "mean"
	// PoolingCLS uses only the first token's embedding.
	PoolingCLS PoolingStrategy = "cls"
	// PoolingNone means the model already outputs sentence embeddings.
	PoolingNone PoolingStrategy = "none"
)

// Valid reports whether p is a known strategy.
func (p PoolingStrategy) Valid() bool {
	switch p {
	case PoolingMean, PoolingCLS, PoolingNone:
		return true
	}
	return false
}

// meanPool averages token embeddings weighted by the attention mask.
// hidden has shape [seqLen, hiddenSize] flattened; mask has length seqLen.
func meanPool(hidden []float32, mask []int64, seqLen, hiddenSize int) []float32 {
	result := make([]float32, hiddenSize)
	var maskSum float32
	for s := 0; s < seqLen; s++ {
		maskVal := float32(mask[s])
		maskSum += maskVal
		if maskVal > 0 {
			offset := s * hiddenSize
			for h := 0; h < hiddenSize; h++ {
				result[h] += hidden[offset+h] * maskVal
			}
		}
	}
	if maskSum > 0 {
		for h := 0; h < hiddenSize; h++ {
			result[h] /= maskSum
		}
	}
	return result
}

// clsPool extracts the first token's embedding from [seqLen, hiddenSize] output.
func clsPool(hidden []float32, hiddenSize int) []float32 {
	result := make([]float32, hiddenSize)
	copy(result, hidden[:hiddenSize])
	return result
}
