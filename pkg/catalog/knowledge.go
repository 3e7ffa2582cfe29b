package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// LoadRules reads curated business rules from a YAML file. A missing file
// is not an error; a deployment without rules skips the business-logic
// checks that need them.
func LoadRules(path string) ([]models.BusinessRule, error) {
	var file struct {
		Rules []models.BusinessRule `yaml:"rules"`
	}
	if err := loadYAML(path, &file); err != nil {
		return nil, err
	}
	return file.Rules, nil
}

// LoadExamples reads curated question/SQL example pairs from a YAML file.
func LoadExamples(path string) ([]models.QueryExample, error) {
	var file struct {
		Examples []models.QueryExample `yaml:"examples"`
	}
	if err := loadYAML(path, &file); err != nil {
		return nil, err
	}
	return file.Examples, nil
}

// LoadDomains reads configured business domains from a YAML file.
func LoadDomains(path string) ([]models.DomainDefinition, error) {
	var file struct {
		Domains []models.DomainDefinition `yaml:"domains"`
	}
	if err := loadYAML(path, &file); err != nil {
		return nil, err
	}
	return file.Domains, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
