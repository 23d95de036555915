package storage

import "errors"

// ErrObjectNotFound is returned by Open when the key does not exist
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty or escape the storage root
var ErrInvalidKey = errors.New("invalid storage key")
