package embedding

import (
	"fmt"
	"os"
	"path/filepath"
)

// Required asset file names (case-sensitive). All six must be present in the
// asset directory before the backend is asked to load anything.
const (
	AssetModelConfig      = "config.json"
	AssetModelWeights     = "model.onnx"
	AssetTokenizer        = "tokenizer.json"
	AssetVocabulary       = "vocab.txt"
	AssetTokenizerConfig  = "tokenizer_config.json"
	AssetSpecialTokensMap = "special_tokens_map.json"
)

// RequiredAssets returns the fixed set of file names that must exist in an
// asset directory. Extra files are ignored.
func RequiredAssets() []string {
	return []string{
		AssetModelConfig,
		AssetModelWeights,
		AssetTokenizer,
		AssetVocabulary,
		AssetTokenizerConfig,
		AssetSpecialTokensMap,
	}
}

// VerifyAssets checks that dir is a readable directory containing every
// required asset file. The first absent file is reported via
// *MissingAssetError; other filesystem problems are returned as-is.
func VerifyAssets(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("asset directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("asset directory: %s is not a directory", dir)
	}
	for _, name := range RequiredAssets() {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			if os.IsNotExist(err) {
				return &MissingAssetError{Name: name}
			}
			return fmt.Errorf("stat asset %s: %w", name, err)
		}
	}
	return nil
}
