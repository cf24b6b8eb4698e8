// Package models defines request and response types for the embedding API.
package models

import "fmt"

// MaxBatchSize caps the number of texts accepted in one batch request.
const MaxBatchSize = 64

// EmbedRequest asks for the embedding of a single text. Empty text is
// accepted; the tokenizer decides how to represent it.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse carries the embedding vector for one text.
type EmbedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Model      string    `json:"model"`
}

// BatchEmbedRequest asks for embeddings of several texts at once.
type BatchEmbedRequest struct {
	Texts []string `json:"texts"`
}

// Validate ensures the batch is non-empty and within MaxBatchSize.
func (r *BatchEmbedRequest) Validate() error {
	if len(r.Texts) == 0 {
		return fmt.Errorf("texts cannot be empty")
	}
	if len(r.Texts) > MaxBatchSize {
		return fmt.Errorf("too many texts: %d (max %d)", len(r.Texts), MaxBatchSize)
	}
	return nil
}

// BatchEmbedResponse carries one embedding per input text, in order.
type BatchEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimensions int         `json:"dimensions"`
	Model      string      `json:"model"`
}

// SimilarityRequest asks for the cosine similarity of two texts.
type SimilarityRequest struct {
	TextA string `json:"text_a"`
	TextB string `json:"text_b"`
}

// SimilarityResponse carries the cosine similarity in [-1, 1].
type SimilarityResponse struct {
	Similarity float64 `json:"similarity"`
	Model      string  `json:"model"`
}

// StatusResponse reports service state and model metadata.
type StatusResponse struct {
	State          string `json:"state"`
	Error          string `json:"error,omitempty"`
	Model          string `json:"model,omitempty"`
	Dimensions     int    `json:"dimensions,omitempty"`
	AssetDir       string `json:"asset_dir,omitempty"`
	CacheEntries   int    `json:"cache_entries"`
	StoredVectors  int64  `json:"stored_vectors,omitempty"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}
