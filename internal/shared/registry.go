package shared

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"

	"landdev/internal/domain"
)

//go:embed entities.yaml
var entitiesYAML []byte

// LoadRegistry parses the embedded entity definitions.
func LoadRegistry() (*domain.Registry, error) {
	return ParseRegistry(entitiesYAML)
}

func ParseRegistry(b []byte) (*domain.Registry, error) {
	var doc struct {
		Entities []domain.Entity `yaml:"entities"`
	}
	if err := yaml.UnmarshalStrict(b, &doc); err != nil {
		return nil, fmt.Errorf("parse entity registry: %w", err)
	}
	return domain.NewRegistry(doc.Entities)
}
