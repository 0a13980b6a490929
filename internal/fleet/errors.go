package fleet

import "errors"

var (
	ErrNotFound          = errors.New("fleet: not found")
	ErrConflict          = errors.New("fleet: conflict")
	ErrInvalidInput      = errors.New("fleet: invalid input")
	ErrInvalidTransition = errors.New("fleet: invalid status transition")
	ErrLocked            = errors.New("fleet: identity locked")
)
