package service

import "errors"

// ErrInvalidQuantity signals a non-positive quantity passed to an operation
// that requires a positive magnitude.
var ErrInvalidQuantity = errors.New("quantity must be positive")
