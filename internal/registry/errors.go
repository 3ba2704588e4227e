package registry

import "errors"

// Sentinel errors returned by registry operations. Handlers map these onto
// HTTP status codes with errors.Is, so wrap them rather than replacing them
// when adding detail.
var (
	// ErrClientNotFound is returned when a client ID is not registered.
	ErrClientNotFound = errors.New("client not found")

	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrDuplicateName is returned when a group name collides with an
	// existing group. Names are compared case-insensitively.
	ErrDuplicateName = errors.New("group name already in use")

	// ErrInvalidGrid is returned for grid layouts with non-positive row or
	// column counts.
	ErrInvalidGrid = errors.New("invalid grid dimensions")

	// ErrStreamNotAvailable is returned when a requested stream is not in
	// the group's available set, is exclusively held by another member, or
	// when layout is requested for a group that is not streaming.
	ErrStreamNotAvailable = errors.New("stream not available")

	// ErrGroupActive is returned when an operation requires the group to be
	// stopped first, such as deletion while the wall is streaming.
	ErrGroupActive = errors.New("group is active")

	// ErrCapacityExceeded is returned when an assignment would put more
	// clients into a group than it has screens.
	ErrCapacityExceeded = errors.New("group capacity exceeded")
)
