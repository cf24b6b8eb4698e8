// Package cli provides CLI output utilities for Umekomi.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/umekomi/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is the raw vector as comma-separated values, one line,
	// for piping into other tools.
	OutputCompact OutputFormat = "compact"
)

// previewValues is how many leading vector components the text format shows.
const previewValues = 8

// WriteEmbedResult writes an embedding result to w in the given format.
// Unknown formats fall back to text.
func WriteEmbedResult(w io.Writer, response *models.EmbedResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		fmt.Fprintln(w, FormatVector(response.Embedding, 0))
		return nil
	default:
		fmt.Fprintf(w, "Model: %s\n", response.Model)
		fmt.Fprintf(w, "Dimensions: %d\n", response.Dimensions)
		fmt.Fprintf(w, "Vector: %s\n", FormatVector(response.Embedding, previewValues))
		return nil
	}
}

// WriteSimilarityResult writes a similarity result to w in the given format.
func WriteSimilarityResult(w io.Writer, response *models.SimilarityResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		fmt.Fprintf(w, "Similarity: %.6f\n", response.Similarity)
		fmt.Fprintf(w, "Model: %s\n", response.Model)
		return nil
	}
}

// WriteStatus writes a service status report to w in the given format.
func WriteStatus(w io.Writer, response *models.StatusResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		fmt.Fprintf(w, "State: %s\n", response.State)
		if response.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", response.Error)
		}
		if response.Model != "" {
			fmt.Fprintf(w, "Model: %s\n", response.Model)
			fmt.Fprintf(w, "Dimensions: %d\n", response.Dimensions)
		}
		if response.AssetDir != "" {
			fmt.Fprintf(w, "Assets: %s\n", response.AssetDir)
		}
		fmt.Fprintf(w, "Cache entries: %d\n", response.CacheEntries)
		if response.StoredVectors > 0 {
			fmt.Fprintf(w, "Stored vectors: %d\n", response.StoredVectors)
		}
		if response.DiskUsageBytes != nil {
			fmt.Fprintf(w, "Disk usage: %d bytes\n", *response.DiskUsageBytes)
		}
		return nil
	}
}

// FormatVector renders vec as comma-separated values. maxValues > 0 limits
// output to that many leading components with a trailing ellipsis.
func FormatVector(vec []float32, maxValues int) string {
	n := len(vec)
	truncated := false
	if maxValues > 0 && n > maxValues {
		n = maxValues
		truncated = true
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%.6f", vec[i])
	}
	out := strings.Join(parts, ", ")
	if truncated {
		out += fmt.Sprintf(", ... (%d values)", len(vec))
	}
	return out
}
