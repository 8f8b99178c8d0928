package catalog

import (
	"fmt"
	"strings"
)

// SlotCount is the number of band slots every profile carries.
const SlotCount = 5

// QualityThreshold is the scene-level cloud and snow percentage above which
// optical scenes are discarded.
const QualityThreshold = 20.0

// YearRange is an inclusive range of acquisition years.
type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether year lies in the range.
func (y YearRange) Contains(year int) bool {
	return year >= y.Min && year <= y.Max
}

// CloudMask describes a per-pixel validity rule over a quality band.
type CloudMask struct {
	QualityBand string `json:"quality_band"`
	Bitmask     uint32 `json:"bitmask"`
}

// Clear reports whether a quality value has none of the flagged bits set.
func (m CloudMask) Clear(quality uint32) bool {
	return quality&m.Bitmask == 0
}

// SceneFilter keeps scenes whose metadata Property is strictly below Max.
type SceneFilter struct {
	Property string  `json:"property"`
	Max      float64 `json:"max"`
}

// SatelliteProfile describes one supported imagery source.
type SatelliteProfile struct {
	Name         string
	Description  string
	CollectionID string
	// Bands holds the source band per slot; see Bindings for the role order.
	Bands        [SlotCount]string
	Years        YearRange
	CloudMask    *CloudMask
	SceneFilters []SceneFilter
}

// Bindings maps each role to its concrete band:
// RED=slot 0, BLUE=slot 1, GREEN=slot 2, NIR=slot 3, RED_EDGE=slot 4.
func (p *SatelliteProfile) Bindings() map[Role]string {
	bindings := make(map[Role]string, SlotCount)
	for i, role := range Roles {
		bindings[role] = p.Bands[i]
	}
	return bindings
}

// VisualBands returns the three bands used for the composite map layer.
func (p *SatelliteProfile) VisualBands() []string {
	return []string{p.Bands[0], p.Bands[1], p.Bands[2]}
}

// SourceBands returns the distinct bands referenced by the slots.
func (p *SatelliteProfile) SourceBands() []string {
	seen := make(map[string]bool)
	var bands []string
	for _, b := range p.Bands {
		if !seen[b] {
			seen[b] = true
			bands = append(bands, b)
		}
	}
	return bands
}

// Validate checks the profile invariants.
func (p *SatelliteProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.CollectionID == "" {
		return fmt.Errorf("profile %q: collection id is required", p.Name)
	}
	for i, b := range p.Bands {
		if b == "" {
			return fmt.Errorf("profile %q: band slot %d is empty", p.Name, i)
		}
	}
	if p.Years.Min > p.Years.Max {
		return fmt.Errorf("profile %q: year range min %d is after max %d", p.Name, p.Years.Min, p.Years.Max)
	}
	if p.CloudMask != nil {
		if p.CloudMask.QualityBand == "" {
			return fmt.Errorf("profile %q: cloud mask quality band is required", p.Name)
		}
		if p.CloudMask.Bitmask == 0 {
			return fmt.Errorf("profile %q: cloud mask bitmask must not be zero", p.Name)
		}
	}
	for i, f := range p.SceneFilters {
		if f.Property == "" {
			return fmt.Errorf("profile %q: scene filter %d has no property", p.Name, i)
		}
	}
	return nil
}

// DatasetRegistry holds satellite profiles in registration order.
type DatasetRegistry struct {
	order    []string
	profiles map[string]*SatelliteProfile
}

// NewDatasetRegistry creates an empty dataset registry.
func NewDatasetRegistry() *DatasetRegistry {
	return &DatasetRegistry{profiles: make(map[string]*SatelliteProfile)}
}

// Add validates and registers a profile.
// Returns an error if a profile with the same name already exists.
func (r *DatasetRegistry) Add(p *SatelliteProfile) error {
	if p == nil {
		return fmt.Errorf("cannot add nil profile")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := r.profiles[p.Name]; exists {
		return fmt.Errorf("profile %q already exists", p.Name)
	}
	r.profiles[p.Name] = p
	r.order = append(r.order, p.Name)
	return nil
}

// Profile returns the profile registered under name.
func (r *DatasetRegistry) Profile(name string) (*SatelliteProfile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("dataset %q: %w", name, ErrNotFound)
	}
	return p, nil
}

// Names returns profile names in registration order.
func (r *DatasetRegistry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns profiles in registration order.
func (r *DatasetRegistry) All() []*SatelliteProfile {
	profiles := make([]*SatelliteProfile, 0, len(r.order))
	for _, name := range r.order {
		profiles = append(profiles, r.profiles[name])
	}
	return profiles
}

// Count returns the number of registered profiles.
func (r *DatasetRegistry) Count() int {
	return len(r.order)
}

func bits(positions ...uint) uint32 {
	var mask uint32
	for _, p := range positions {
		mask |= 1 << p
	}
	return mask
}

// BuiltinDatasets returns the registry of supported imagery sources.
func BuiltinDatasets() *DatasetRegistry {
	landsatQA := func(positions ...uint) *CloudMask {
		return &CloudMask{QualityBand: "QA_PIXEL", Bitmask: bits(positions...)}
	}

	profiles := []*SatelliteProfile{
		{
			Name:         "Sentinel-2",
			Description:  "Sentinel-2 MSI surface reflectance, harmonized",
			CollectionID: "COPERNICUS/S2_SR_HARMONIZED",
			Bands:        [SlotCount]string{"B4", "B3", "B2", "B8", "B5"},
			Years:        YearRange{Min: 2019, Max: 2023},
			SceneFilters: []SceneFilter{
				{Property: "CLOUDY_PIXEL_PERCENTAGE", Max: QualityThreshold},
				{Property: "SNOW_ICE_PERCENTAGE", Max: QualityThreshold},
			},
		},
		{
			Name:         "Landsat-5",
			Description:  "Landsat 5 TM collection 2 tier 1 level 2",
			CollectionID: "LANDSAT/LT05/C02/T1_L2",
			Bands:        [SlotCount]string{"SR_B3", "SR_B2", "SR_B1", "SR_B4", "SR_B3"},
			Years:        YearRange{Min: 1985, Max: 2011},
			// dilated cloud, cloud, cloud shadow
			CloudMask: landsatQA(1, 3, 4),
		},
		{
			Name:         "Landsat-7",
			Description:  "Landsat 7 ETM+ collection 2 tier 1 level 2",
			CollectionID: "LANDSAT/LE07/C02/T1_L2",
			Bands:        [SlotCount]string{"SR_B3", "SR_B2", "SR_B1", "SR_B4", "SR_B3"},
			Years:        YearRange{Min: 2000, Max: 2023},
			// dilated cloud, cloud, cloud shadow, snow
			CloudMask: landsatQA(1, 3, 4, 5),
		},
		{
			Name:         "Landsat-8",
			Description:  "Landsat 8 OLI/TIRS collection 2 tier 1 level 2",
			CollectionID: "LANDSAT/LC08/C02/T1_L2",
			Bands:        [SlotCount]string{"SR_B4", "SR_B3", "SR_B2", "SR_B5", "SR_B4"},
			Years:        YearRange{Min: 2014, Max: 2023},
			// dilated cloud, cirrus, cloud, cloud shadow, snow
			CloudMask: landsatQA(1, 2, 3, 4, 5),
		},
		{
			Name:         "MODIS",
			Description:  "MODIS Terra daily surface reflectance",
			CollectionID: "MODIS/006/MOD09GA",
			Bands:        [SlotCount]string{"sur_refl_b01", "sur_refl_b04", "sur_refl_b03", "sur_refl_b02", "sur_refl_b01"},
			Years:        YearRange{Min: 2001, Max: 2022},
			CloudMask:    &CloudMask{QualityBand: "state_1km", Bitmask: bits(10, 11)},
		},
	}

	registry := NewDatasetRegistry()
	for _, p := range profiles {
		if err := registry.Add(p); err != nil {
			panic(err)
		}
	}
	return registry
}
