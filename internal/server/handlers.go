package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/umekomi/internal/embedding"
	"github.com/hyperjump/umekomi/internal/models"
	"github.com/hyperjump/umekomi/internal/storage"
	"github.com/hyperjump/umekomi/pkg/utils"
)

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	var req models.EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("embed request", zap.Int("text_len", len(req.Text)))

	vec, err := s.service.Embed(r.Context(), req.Text)
	if err != nil {
		s.respondEmbedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.EmbedResponse{
		Embedding:  vec,
		Dimensions: len(vec),
		Model:      s.service.ModelName(),
	})
}

func (s *Server) handleEmbedBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchEmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("batch embed request", zap.Int("texts", len(req.Texts)))

	vecs, err := s.service.EmbedBatch(r.Context(), req.Texts)
	if err != nil {
		s.respondEmbedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.BatchEmbedResponse{
		Embeddings: vecs,
		Dimensions: s.service.Dimensions(),
		Model:      s.service.ModelName(),
	})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	var req models.SimilarityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vecA, err := s.service.Embed(r.Context(), req.TextA)
	if err != nil {
		s.respondEmbedError(w, err)
		return
	}
	vecB, err := s.service.Embed(r.Context(), req.TextB)
	if err != nil {
		s.respondEmbedError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.SimilarityResponse{
		Similarity: utils.Cosine(vecA, vecB),
		Model:      s.service.ModelName(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := models.StatusResponse{
		State:        s.service.State().String(),
		Model:        s.service.ModelName(),
		Dimensions:   s.service.Dimensions(),
		AssetDir:     s.config.Embedding.AssetDir,
		CacheEntries: s.service.CacheLen(),
	}
	if err := s.service.Err(); err != nil {
		resp.Error = err.Error()
	}
	if s.store != nil {
		if n, err := s.store.CountVectors(r.Context()); err == nil {
			resp.StoredVectors = n
		} else {
			s.logger.Error("status: count vectors failed", zap.Error(err))
		}
		if bytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath); err == nil {
			resp.DiskUsageBytes = &bytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// respondEmbedError maps service errors to HTTP statuses: not-ready is 503
// (the model may still be loading), anything else is 500.
func (s *Server) respondEmbedError(w http.ResponseWriter, err error) {
	if errors.Is(err, embedding.ErrNotInitialized) {
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.logger.Error("embed failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}
