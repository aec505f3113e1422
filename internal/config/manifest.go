package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultManifestPath is where projects declare their agents.
const DefaultManifestPath = "enso.yaml"

// ManifestAgent is a single agent entry in the project manifest.
type ManifestAgent struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Filename    string `yaml:"filename,omitempty"`
}

// Manifest describes an agent project: its identity and the agents it ships.
type Manifest struct {
	Name      string          `yaml:"name"`
	Version   string          `yaml:"version,omitempty"`
	ProjectID string          `yaml:"project_id,omitempty"`
	Agents    []ManifestAgent `yaml:"agents"`
}

// LoadManifest parses the project manifest at path. A missing file is an
// error; callers that treat the manifest as optional should stat first.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("config: read manifest: %w", err)
	}
	return ParseManifest(raw)
}

// ParseManifest decodes manifest YAML and validates its agent entries.
func ParseManifest(raw []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("config: parse manifest: %w", err)
	}
	for i, a := range m.Agents {
		if a.ID == "" {
			return Manifest{}, fmt.Errorf("config: manifest agent %d: id is required", i)
		}
		if a.Name == "" {
			return Manifest{}, fmt.Errorf("config: manifest agent %q: name is required", a.ID)
		}
	}
	return m, nil
}
