package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/satindex/satindex/internal/catalog"
)

// ProfileConfig is the JSON form of a satellite profile. Files in the
// profiles directory extend the built-in dataset registry.
type ProfileConfig struct {
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	CollectionID string                `json:"collection_id"`
	Bands        []string              `json:"bands"`
	Years        catalog.YearRange     `json:"years"`
	CloudMask    *catalog.CloudMask    `json:"cloud_mask,omitempty"`
	SceneFilters []catalog.SceneFilter `json:"scene_filters,omitempty"`
}

// Profile converts the configuration into a catalog profile.
func (c *ProfileConfig) Profile() (*catalog.SatelliteProfile, error) {
	if len(c.Bands) != catalog.SlotCount {
		return nil, fmt.Errorf("profile %q must list exactly %d bands, got %d", c.Name, catalog.SlotCount, len(c.Bands))
	}

	p := &catalog.SatelliteProfile{
		Name:         c.Name,
		Description:  c.Description,
		CollectionID: c.CollectionID,
		Years:        c.Years,
		CloudMask:    c.CloudMask,
		SceneFilters: c.SceneFilters,
	}
	copy(p.Bands[:], c.Bands)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfiles loads profile definitions from JSON files in the specified
// directory and appends them to registry. Only files with a .json extension
// are processed. It returns the number of profiles added.
func LoadProfiles(profilesDir string, registry *catalog.DatasetRegistry) (int, error) {
	info, err := os.Stat(profilesDir)
	if err != nil {
		return 0, fmt.Errorf("failed to access profiles directory %q: %w", profilesDir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("profiles path %q is not a directory", profilesDir)
	}

	entries, err := os.ReadDir(profilesDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read profiles directory %q: %w", profilesDir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		filename := entry.Name()
		if !strings.HasSuffix(strings.ToLower(filename), ".json") {
			continue
		}

		filePath := filepath.Join(profilesDir, filename)
		profile, err := loadProfileFile(filePath)
		if err != nil {
			return loadedCount, fmt.Errorf("failed to load profile from %q: %w", filePath, err)
		}

		if err := registry.Add(profile); err != nil {
			return loadedCount, fmt.Errorf("failed to add profile from %q: %w", filePath, err)
		}

		loadedCount++
	}

	if loadedCount == 0 {
		return 0, fmt.Errorf("no profile files found in %q", profilesDir)
	}

	return loadedCount, nil
}

func loadProfileFile(filePath string) (*catalog.SatelliteProfile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var cfg ProfileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	profile, err := cfg.Profile()
	if err != nil {
		return nil, fmt.Errorf("invalid profile configuration: %w", err)
	}
	return profile, nil
}
