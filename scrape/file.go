package scrape

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk shape of a source-definition file: a
// single top-level "sources" list of scrape configs.
type definitionFile struct {
	Sources []*ScrapeConfig `yaml:"sources"`
}

// LoadFile reads source definitions from a YAML file and returns the
// validated configs. The file holds registry data, not process
// configuration: each entry is one ScrapeConfig in its yaml-tag shape.
// Any invalid entry fails the whole load with an error naming it.
func LoadFile(path string) ([]*ScrapeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source definitions: %w", err)
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse source definitions: %w", err)
	}

	for i, cfg := range file.Sources {
		if cfg == nil {
			return nil, fmt.Errorf("source definition %d is empty", i)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("source definition %d: %w", i, err)
		}
	}
	return file.Sources, nil
}

// RegisterFile loads a definition file and registers every config it
// contains.
func (r *Registry) RegisterFile(path string) error {
	configs, err := LoadFile(path)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if err := r.Register(cfg); err != nil {
			return err
		}
	}
	return nil
}
