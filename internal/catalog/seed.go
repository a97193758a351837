package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of a catalog seed: a flat list of
// models under a single top-level key. It is decoded with plain
// yaml.Unmarshal, so unknown fields are ignored rather than rejected.
type seedFile struct {
	Models []Model `yaml:"models"`
}

// LoadFile reads a YAML catalog seed and returns a populated Catalog.
// Used by `runengine catalog` and by serve at startup.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("catalog: parse seed file: %w", err)
	}

	cat := New()
	for i := range seed.Models {
		cat.Register(&seed.Models[i])
	}
	return cat, nil
}
