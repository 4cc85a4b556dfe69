package seer

import "errors"

var (
	// ErrNotAvailable is returned when the engine is not initialized, has
	// shut down, or is disabled by preference.
	ErrNotAvailable = errors.New("seer not available")

	// ErrInvalidArgument is returned when the (target, referer) pair does not
	// match the shape the reason requires, or the reason is unknown.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsupportedScheme is returned for a target or referer that is not
	// http or https.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)
