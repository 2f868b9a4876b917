package fixes

import "errors"

var (
	ErrNotFound     = errors.New("fix not found")
	ErrInvalidInput = errors.New("invalid input")
)
