package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// SystemConfig is the device-level input method configuration
type SystemConfig struct {
	// DefaultIme is "bundle/extension".
	DefaultIme                     string            `yaml:"default_ime"`
	SystemInputMethodConfigAbility string            `yaml:"system_input_method_config_ability"`
	EnableInputMethodFeature       bool              `yaml:"enable_input_method_feature"`
	EnableFullExperienceFeature    bool              `yaml:"enable_full_experience_feature"`
	ProxyImeUIDs                   []int32           `yaml:"proxy_ime_uids"`
	SceneBoard                     bool              `yaml:"scene_board"`
	DisplayGroups                  map[uint64]uint64 `yaml:"display_groups"`
	// InputTypeImes maps "camera", "security" and "voice" to the
	// "bundle/extension" that serves that input type.
	InputTypeImes map[string]string `yaml:"input_type_imes"`
}

// DefaultSystemConfig returns the configuration used when no file exists
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DefaultIme:                  "com.imf.keyboard/InputMethodExtAbility",
		EnableInputMethodFeature:    true,
		EnableFullExperienceFeature: true,
	}
}

// LoadSystemConfig reads path. A missing file yields the defaults.
func LoadSystemConfig(path string) (*SystemConfig, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSystemConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read system config: %w", err)
	}

	cfg := DefaultSystemConfig()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse system config %s: %w", path, err)
	}
	if _, _, ok := cfg.SplitDefaultIme(); !ok {
		return nil, fmt.Errorf("system config %s: default_ime %q is not bundle/extension", path, cfg.DefaultIme)
	}
	return cfg, nil
}

// SplitDefaultIme returns the bundle and extension of DefaultIme
func (c *SystemConfig) SplitDefaultIme() (bundle, extension string, ok bool) {
	bundle, extension, ok = strings.Cut(c.DefaultIme, "/")
	return bundle, extension, ok && bundle != "" && extension != ""
}

// InputTypeIme returns the "bundle/extension" serving inputType
func (c *SystemConfig) InputTypeIme(inputType string) (string, bool) {
	v, ok := c.InputTypeImes[inputType]
	return v, ok && v != ""
}

// IsProxyImeUID reports whether uid may register a proxy IME.
func (c *SystemConfig) IsProxyImeUID(uid int32) bool {
	for _, u := range c.ProxyImeUIDs {
		if u == uid {
			return true
		}
	}
	return false
}
