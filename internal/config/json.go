package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// parseJSON reads a StructuredConfig from the JSON file at path.
func parseJSON(path string) (*StructuredConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading json config file: %w", err)
	}

	cfg := &StructuredConfig{}
	if err = json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing json config file: %w", err)
	}

	return cfg, nil
}
