package gallery

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt is returned by Add when the prompt is blank after trimming.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrPersistence matches any *PersistenceError.
	ErrPersistence = errors.New("gallery not persisted")
)

// PersistenceError reports a failed storage write. The in-memory gallery
// already reflects the mutation that could not be saved.
type PersistenceError struct {
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist gallery for user %s: %v", e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ErrLoad matches any *ReadError.
var ErrLoad = errors.New("gallery not loaded")

// ReadError reports a storage read that failed. Mutations are refused so a
// partial view never overwrites the stored gallery.
type ReadError struct {
	UserID string
	Err    error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read gallery for user %s: %v", e.UserID, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrLoad }
