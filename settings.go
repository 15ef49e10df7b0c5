package rgbkbd

import (
	"os"

	"github.com/goccy/go-yaml"

	"github.com/punksm4ck/cb-rgb-keyboard-rgbkbd/types"
)

// Settings is the persisted user state: restored at engine start and
// saved at stop, so the keyboard comes back the way it was left.
type Settings struct {
	Brightness int     `yaml:"brightness"`
	Speed      float64 `yaml:"speed"`

	// LastEffect is the most recently activated user effect (plugin
	// effects are not persisted).
	LastEffect *types.ActivateEffect `yaml:"lastEffect,omitempty"`
}

// LoadSettings reads settings from a YAML file.
//
// Returns:
//   - *Settings: The loaded settings
//   - error: nil with nil settings when the file does not exist yet
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewConfigError("settings", "read %s: %v", path, err)
	}

	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, types.NewConfigError("settings", "parse %s: %v", path, err)
	}

	return &s, nil
}

// Save writes the settings to a YAML file.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return types.NewConfigError("settings", "encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.NewConfigError("settings", "write %s: %v", path, err)
	}

	return nil
}
