package storage

import "errors"

// ErrBlobNotFound indicates the requested blob does not exist in the backend.
var ErrBlobNotFound = errors.New("blob not found in storage")

// ErrSizeMismatch indicates the streamed content did not match the declared size.
var ErrSizeMismatch = errors.New("content size mismatch")

// IsNotFound reports whether the error indicates a missing blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBlobNotFound)
}
