package domain

import "errors"

var (
	ErrEmptyDriverID      = errors.New("empty driver ID")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)
