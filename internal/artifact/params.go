package artifact

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AdapterParams are the hyperparameters the extraction program records
// beside the adapter weights.
type AdapterParams struct {
	WBias       bool   `json:"w_bias"`
	WLora       bool   `json:"w_lora"`
	LoraRank    int    `json:"lora_rank"`
	LoraTargets string `json:"lora_targets"`
	MaxSeqLen   int    `json:"max_seq_len"`
}

// GenerateParams are the parameters the generation program reads from the
// adapter directory.
type GenerateParams struct {
	MaxSeqLen int `json:"max_seq_len"`
}

// ReadAdapterParams loads the adapter hyperparameters file.
func ReadAdapterParams(path string) (*AdapterParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read adapter params: %w", err)
	}
	var p AdapterParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse adapter params %s: %w", path, err)
	}
	return &p, nil
}

// ReadGenerateParams loads the generation parameters file.
func ReadGenerateParams(path string) (*GenerateParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read generate params: %w", err)
	}
	var p GenerateParams
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse generate params %s: %w", path, err)
	}
	return &p, nil
}

// WriteGenerateParams records the generation parameters beside the adapter,
// matching what the generation program expects to find.
func WriteGenerateParams(path string, p *GenerateParams) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode generate params: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write generate params: %w", err)
	}
	return nil
}
