package embedding

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Embed when the service has no loaded model.
var ErrNotInitialized = errors.New("embedding service not initialized")

// ErrInitializing is returned by Initialize when another initialization is
// already in flight.
var ErrInitializing = errors.New("initialization already in progress")

// MissingAssetError reports a required model asset file absent from the asset
// directory. The model backend is never invoked when an asset is missing.
type MissingAssetError struct {
	Name string
}

func (e *MissingAssetError) Error() string {
	return fmt.Sprintf("missing model asset: %s", e.Name)
}

// LoadError wraps a backend failure during model loading. The backend
// diagnostic is preserved unmodified for debuggability.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("model load failed: %v", e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// InferenceError wraps a backend failure during encoding. The service stays
// Ready after an inference error; subsequent calls may succeed.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return fmt.Sprintf("inference failed: %v", e.Err) }
func (e *InferenceError) Unwrap() error { return e.Err }
