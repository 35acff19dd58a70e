package mapping

import "errors"

var (
	// ErrNilSource is returned when a builder is handed no source object.
	ErrNilSource = errors.New("mapping: nil source")
	// ErrAlreadyLoaded is returned by a second Load on a populated manager.
	ErrAlreadyLoaded = errors.New("mapping: manager already loaded")
	// ErrInvalidProvider is returned when Load is called without a provider.
	ErrInvalidProvider = errors.New("mapping: invalid provider")
)
