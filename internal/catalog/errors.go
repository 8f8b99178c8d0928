// Package catalog holds the immutable registries of supported imagery
// datasets and spectral indices, and the expression tree indices are built
// from.
package catalog

import "errors"

// ErrNotFound is returned when a dataset or index name is unknown.
var ErrNotFound = errors.New("not found")
