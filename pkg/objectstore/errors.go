package objectstore

import "errors"

var (
	ErrInvalidConfig      = errors.New("objectstore: invalid configuration")
	ErrFailedToLoadConfig = errors.New("objectstore: failed to load AWS config")
	ErrObjectNotFound     = errors.New("objectstore: object not found")
	ErrBucketNotFound     = errors.New("objectstore: bucket not found")
	ErrAccessDenied       = errors.New("objectstore: access denied")
	ErrServiceUnavailable = errors.New("objectstore: service unavailable")
	ErrOperationTimeout   = errors.New("objectstore: operation timed out")
	ErrOperationCanceled  = errors.New("objectstore: operation canceled")
)
