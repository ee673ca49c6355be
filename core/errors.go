package f

import "errors"

var (
	ErrAcquireTimeout        = errors.New("connection acquisition timed out")
	ErrNoDefaultPool         = errors.New("default pool is not set")
	ErrDefaultPoolAlreadySet = errors.New("default pool is already set")
	ErrPoolCreation          = errors.New("tenant pool creation failed")
	ErrInvalidTemplate       = errors.New("invalid connection string template")
	ErrInvalidTenant         = errors.New("invalid tenant identifier")
	ErrUnsupportedDriver     = errors.New("unsupported database driver")
	ErrConnectionReleased    = errors.New("connection already released")
	ErrRegistryClosed        = errors.New("pool registry is closed")
)
