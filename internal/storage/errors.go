package storage

import "errors"

// Common storage errors
var (
	// ErrEntryNotFound indicates that replica entry was not found
	ErrEntryNotFound = errors.New("replica entry not found")

	// ErrNodeIDNotSet indicates that no node ID has been persisted yet
	ErrNodeIDNotSet = errors.New("node id not set")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnknownDriver indicates an unsupported storage driver name
	ErrUnknownDriver = errors.New("unknown storage driver")
)
