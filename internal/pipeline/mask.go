package pipeline

import "github.com/satindex/satindex/internal/catalog"

// MaskPolicy is the cloud handling of a dataset: scene-level metadata
// filters applied during search, and a per-pixel quality mask applied to
// every scene before compositing.
type MaskPolicy struct {
	SceneFilters []catalog.SceneFilter
	PixelMask    *catalog.CloudMask
}

// PolicyFor returns the mask policy declared by a profile.
func PolicyFor(p *catalog.SatelliteProfile) MaskPolicy {
	return MaskPolicy{SceneFilters: p.SceneFilters, PixelMask: p.CloudMask}
}

// None reports whether the policy keeps every scene and pixel.
func (m MaskPolicy) None() bool {
	return len(m.SceneFilters) == 0 && m.PixelMask == nil
}
