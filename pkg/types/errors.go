package types

import "errors"

// ErrWidthMismatch is returned when a row's width disagrees with its schema.
var ErrWidthMismatch = errors.New("row width does not match column count")
