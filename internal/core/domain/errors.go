package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPlaceNotFound means every resolution tier was tried and none produced a coordinate.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrInvalidCoordinate marks non-finite or out-of-range geometry. It is never swallowed.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	ErrAnchorNotFound = errors.New("insertion anchor not found")
	ErrInvalidClock   = errors.New("invalid clock time")
)
