package dictionary

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a dictionary from a YAML file. A missing file yields an empty
// dictionary; linking then falls back to catalog fuzzy matching alone.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(nil), nil
		}
		return nil, fmt.Errorf("failed to read dictionary file: %w", err)
	}

	var file struct {
		Terms []Term `yaml:"terms"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary file %s: %w", path, err)
	}

	for i := range file.Terms {
		if file.Terms[i].Term == "" {
			return nil, fmt.Errorf("dictionary file %s: term %d has no name", path, i)
		}
	}

	return New(file.Terms), nil
}
