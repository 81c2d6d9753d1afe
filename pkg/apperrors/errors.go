package apperrors

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrMapNotLoaded          = errors.New("flatmap not loaded")
	ErrDuplicateAnnotationID = errors.New("duplicate annotation identifier")
	ErrUnknownLayer          = errors.New("layer not declared by map manifest")
)
