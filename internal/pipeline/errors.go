package pipeline

import "errors"

var (
	// ErrInvalidRange is returned for an inverted year range or a year the
	// dataset does not cover. It is raised before any engine call.
	ErrInvalidRange = errors.New("invalid range")

	// ErrEmptyResult is returned when no scene survives the scene search
	// and filters for a dataset, year and region.
	ErrEmptyResult = errors.New("empty result")
)

// ErrInvalidInput is returned for malformed request options such as an
// unknown statistic field or a bad palette color.
var ErrInvalidInput = errors.New("invalid input")
