//go:build !cgo
// +build !cgo

package embedding

import "errors"

// ONNXBackend stub type when built without CGO (see onnx.go for the real implementation).
type ONNXBackend struct{}

// NewONNXBackend returns a backend whose Load always fails when built without CGO.
func NewONNXBackend(_ ONNXOptions) *ONNXBackend {
	return &ONNXBackend{}
}

// Load returns an error when built without CGO (ONNX not available).
func (b *ONNXBackend) Load(_ string) (Model, error) {
	return nil, errors.New("ONNX backend requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}
