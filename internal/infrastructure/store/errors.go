package store

import (
	"errors"
	"fmt"
)

var (
	ErrStoreRead     = errors.New("store read failed")
	ErrStoreWrite    = errors.New("store write failed")
	ErrNotFound      = errors.New("document not found")
	ErrInvalidPath   = errors.New("invalid collection path")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrLimitReached  = errors.New("admission limit reached")
	ErrAlreadyExists = errors.New("unique key already taken")
)

func readErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreRead, op, path, err)
}

func writeErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrStoreWrite, op, path, err)
}
