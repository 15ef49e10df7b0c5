package plugin

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// ManifestFileName is the manifest's name inside a plugin directory.
const ManifestFileName = "manifest.yaml"

// Manifest describes one plugin: identity, capability grants, the
// zones its effects may target, and the Lua entry point.
type Manifest struct {
	ID           string       `yaml:"id"`
	Capabilities []Capability `yaml:"capabilities"`

	// Zones lists the zone IDs the plugin's effects may target.
	// Empty means every zone.
	Zones []string `yaml:"zones,omitempty"`

	// Entry is the Lua script path, relative to the manifest.
	Entry string `yaml:"entry"`
}

// Validate checks the manifest for structural errors.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return types.NewConfigError("plugin.id", "manifest must declare an id")
	}
	if m.Entry == "" {
		return types.NewConfigError("plugin.entry", "manifest must declare an entry script")
	}
	for _, c := range m.Capabilities {
		if !knownCapabilities[c] {
			return types.NewConfigError("plugin.capabilities", "unknown capability %q", c)
		}
	}

	return nil
}

// ParseManifest reads a manifest from YAML bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, types.NewConfigError("plugin.manifest", "parse: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// LoadManifest reads and validates a plugin directory's manifest,
// returning the manifest and the entry script source.
func LoadManifest(dir string) (*Manifest, string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, "", types.NewConfigError("plugin.manifest", "read: %v", err)
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, "", err
	}

	script, err := os.ReadFile(filepath.Join(dir, m.Entry))
	if err != nil {
		return nil, "", types.NewConfigError("plugin.entry", "read %s: %v", m.Entry, err)
	}

	return m, string(script), nil
}
