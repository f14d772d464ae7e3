package mandate

import "errors"

var (
	ErrNotFound           = errors.New("mandate not found")
	ErrRevoked            = errors.New("mandate bank details have been revoked")
	ErrFailedToCreate     = errors.New("failed to create mandate")
	ErrFailedToTransition = errors.New("failed to update mandate status")
	ErrFailedToSeal       = errors.New("failed to seal bank details")
	ErrFailedToOpen       = errors.New("failed to open bank details")
)
