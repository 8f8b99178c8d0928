// Package stac provides STAC API types and utilities, wrapping planetlabs/go-stac
// for core types and describing satellite datasets as STAC collections.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Collection = gostac.Collection
	Link       = gostac.Link
	Provider   = gostac.Provider
	Extent     = gostac.Extent
)

// NewCollection creates a new STAC Collection with the given ID.
func NewCollection(id, title, description, version string) *gostac.Collection {
	return &gostac.Collection{
		Version:     version,
		Id:          id,
		Title:       title,
		Description: description,
		Links:       make([]*gostac.Link, 0),
		Assets:      make(map[string]*gostac.Asset),
		Summaries:   make(map[string]any),
	}
}

// CollectionsList represents a list of collections response.
type CollectionsList struct {
	Collections []*gostac.Collection `json:"collections"`
	Links       []*gostac.Link       `json:"links"`
}

// NewCollectionsList creates a new CollectionsList.
func NewCollectionsList(collections []*gostac.Collection) *CollectionsList {
	return &CollectionsList{
		Collections: collections,
		Links:       make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the collections list.
func (cl *CollectionsList) AddLink(rel, href, mediaType string) {
	cl.Links = append(cl.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// Conformance represents the conformance classes response.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// LandingPage represents the API landing page response.
type LandingPage struct {
	Type        string         `json:"type"` // "Catalog"
	Id          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	StacVersion string         `json:"stac_version"`
	ConformsTo  []string       `json:"conformsTo,omitempty"`
	Links       []*gostac.Link `json:"links"`
}

// NewLandingPage creates a new landing page response.
func NewLandingPage(id, title, description, version string, conformsTo []string) *LandingPage {
	return &LandingPage{
		Type:        "Catalog",
		Id:          id,
		Title:       title,
		Description: description,
		StacVersion: version,
		ConformsTo:  conformsTo,
		Links:       make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the landing page.
func (lp *LandingPage) AddLink(rel, href, mediaType string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// AddMethodLink adds a link that must be followed with method.
func (lp *LandingPage) AddMethodLink(rel, href, mediaType, method, title string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:    rel,
		Href:   href,
		Type:   mediaType,
		Method: method,
		Title:  title,
	})
}

// Standard conformance URIs
const (
	ConformanceCore        = "https://api.stacspec.org/v1.0.0/core"
	ConformanceCollections = "https://api.stacspec.org/v1.0.0/collections"
	ConformanceOGCFeatCore = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core"
)

// DefaultConformance returns the conformance classes of the service.
func DefaultConformance() []string {
	return []string{
		ConformanceCore,
		ConformanceCollections,
		ConformanceOGCFeatCore,
	}
}

// ExtensionEO is the electro-optical extension used for band summaries.
const ExtensionEO = "https://stac-extensions.github.io/eo/v1.1.0/schema.json"
