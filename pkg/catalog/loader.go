package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// snapshotFile is the on-disk shape of a catalog snapshot.
type snapshotFile struct {
	Version     string              `yaml:"version"`
	Tables      []models.TableMeta  `yaml:"tables"`
	ForeignKeys []models.ForeignKey `yaml:"foreign_keys"`
}

// LoadSnapshot reads a catalog snapshot from a YAML file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	if len(file.Tables) == 0 {
		return nil, fmt.Errorf("catalog file %s contains no tables", path)
	}

	return NewSnapshot(file.Version, file.Tables, file.ForeignKeys), nil
}
