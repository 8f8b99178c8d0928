package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/satindex/satindex/internal/catalog"
)

func writeProfile(t *testing.T, dir, name string, p ProfileConfig) {
	t.Helper()
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		t.Fatalf("failed to marshal test profile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("failed to write test profile: %v", err)
	}
}

func validProfile() ProfileConfig {
	return ProfileConfig{
		Name:         "Landsat-9",
		Description:  "Landsat 9 OLI-2",
		CollectionID: "LANDSAT/LC09/C02/T1_L2",
		Bands:        []string{"SR_B4", "SR_B3", "SR_B2", "SR_B5", "SR_B4"},
		Years:        catalog.YearRange{Min: 2022, Max: 2024},
		CloudMask:    &catalog.CloudMask{QualityBand: "QA_PIXEL", Bitmask: 62},
	}
}

func TestLoadProfiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeProfile(t, tmpDir, "landsat9.json", validProfile())
	os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("ignored"), 0644)

	registry := catalog.BuiltinDatasets()
	n, err := LoadProfiles(tmpDir, registry)
	if err != nil {
		t.Fatalf("LoadProfiles() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 profile, got %d", n)
	}

	names := registry.Names()
	if names[len(names)-1] != "Landsat-9" {
		t.Errorf("expected Landsat-9 appended after the built-ins, got %v", names)
	}

	p, err := registry.Profile("Landsat-9")
	if err != nil {
		t.Fatal(err)
	}
	if p.Bindings()[catalog.RoleNIR] != "SR_B5" {
		t.Errorf("expected NIR bound to SR_B5, got %s", p.Bindings()[catalog.RoleNIR])
	}
}

func TestLoadProfilesInvalidDirectory(t *testing.T) {
	_, err := LoadProfiles("/nonexistent/directory", catalog.NewDatasetRegistry())
	if err == nil {
		t.Error("expected error for nonexistent directory")
	}
}

func TestLoadProfilesEmptyDirectory(t *testing.T) {
	_, err := LoadProfiles(t.TempDir(), catalog.NewDatasetRegistry())
	if err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestLoadProfilesDuplicate(t *testing.T) {
	tmpDir := t.TempDir()
	p := validProfile()
	p.Name = "Sentinel-2"
	writeProfile(t, tmpDir, "dup.json", p)

	if _, err := LoadProfiles(tmpDir, catalog.BuiltinDatasets()); err == nil {
		t.Error("expected duplicate profile to be rejected")
	}
}

func TestProfileConfig_Profile(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ProfileConfig)
		wantError bool
	}{
		{
			name:   "valid",
			mutate: func(*ProfileConfig) {},
		},
		{
			name:      "four bands",
			mutate:    func(p *ProfileConfig) { p.Bands = p.Bands[:4] },
			wantError: true,
		},
		{
			name:      "inverted years",
			mutate:    func(p *ProfileConfig) { p.Years = catalog.YearRange{Min: 2024, Max: 2022} },
			wantError: true,
		},
		{
			name:      "missing collection",
			mutate:    func(p *ProfileConfig) { p.CollectionID = "" },
			wantError: true,
		},
		{
			name:      "scene filter without property",
			mutate:    func(p *ProfileConfig) { p.SceneFilters = []catalog.SceneFilter{{Max: 20}} },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			_, err := p.Profile()
			if (err != nil) != tt.wantError {
				t.Errorf("Profile() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
