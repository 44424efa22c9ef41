// config/overlay.go
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// SearchesFile lets per-source search criteria live next to the main config,
// so tweaking a city or budget never touches engine settings.
type SearchesFile struct {
	Search  Search            `yaml:"search"`
	Sources map[string]Search `yaml:"sources"`
}

// OverlaySearches replaces the default search block, and records per-source
// overrides, from a separate yaml file. A missing file is fine.
func OverlaySearches(cfg *Config, overrides map[string]Search, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		// Missing searches file should not kill startup
		return nil
	}

	var sf SearchesFile
	if err := yaml.Unmarshal(b, &sf); err != nil {
		return err
	}

	if sf.Search.City != "" {
		cfg.Search = sf.Search
	}
	for name, s := range sf.Sources {
		if overrides != nil {
			overrides[name] = s
		}
	}
	return nil
}
