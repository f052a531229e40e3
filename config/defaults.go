package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// Defaults holds seed data written to the database on first start.
type Defaults struct {
	Settings              map[string]string `yaml:"settings"`
	ApplicationCategories []CategorySeed    `yaml:"application_categories"`
	WebsiteCategories     []CategorySeed    `yaml:"website_categories"`
}

type CategorySeed struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Color        string `yaml:"color"`
	Productivity string `yaml:"productivity"`
}

// LoadDefaults parses the embedded defaults and overlays the optional file at
// path. Settings keys from the file replace embedded ones; category lists
// replace the embedded lists when present.
func LoadDefaults(path string) (*Defaults, error) {
	d := &Defaults{}
	if err := yaml.Unmarshal(embeddedDefaults, d); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}
	if path == "" {
		return d, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings seed %s: %w", path, err)
	}
	override := &Defaults{}
	if err := yaml.Unmarshal(raw, override); err != nil {
		return nil, fmt.Errorf("parse settings seed %s: %w", path, err)
	}

	if d.Settings == nil {
		d.Settings = map[string]string{}
	}
	for k, v := range override.Settings {
		d.Settings[k] = v
	}
	if len(override.ApplicationCategories) > 0 {
		d.ApplicationCategories = override.ApplicationCategories
	}
	if len(override.WebsiteCategories) > 0 {
		d.WebsiteCategories = override.WebsiteCategories
	}
	return d, nil
}
