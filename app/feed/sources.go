package feed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source is one preset feed entry from the feeds file. Secret and
// lease are optional WebSub parameters for that feed.
type Source struct {
	URL          string `yaml:"url"`
	Secret       string `yaml:"secret"`
	LeaseSeconds int    `yaml:"lease_seconds"`
}

type sourcesFile struct {
	Feeds []Source `yaml:"feeds"`
}

// LoadSources reads the preset feed list. A missing file is not an
// error: the service then serves only on-demand feeds.
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read feeds file: %w", err)
	}

	var parsed sourcesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file: %w", err)
	}

	for i, source := range parsed.Feeds {
		if source.URL == "" {
			return nil, fmt.Errorf("feed at index %d is missing a URL", i)
		}
		if source.LeaseSeconds < 0 {
			return nil, fmt.Errorf("feed %s: lease_seconds must be non-negative", source.URL)
		}
	}

	return parsed.Feeds, nil
}
