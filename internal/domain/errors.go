package domain

import (
	"errors"
	"fmt"
)

// Error kinds for the upload pipeline and the persistence gateway. Handlers
// match them with errors.As / errors.Is and translate to transport responses;
// nothing below is retried by the pipeline itself.

// InvalidInputError rejects a malformed upload before any side effect.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// DetectionUnavailableError wraps a transport or deadline failure of the
// remote detector, keeping the gRPC status code and the original cause.
type DetectionUnavailableError struct {
	StatusCode string
	Err        error
}

func (e *DetectionUnavailableError) Error() string {
	return fmt.Sprintf("face detection unavailable (%s): %v", e.StatusCode, e.Err)
}

func (e *DetectionUnavailableError) Unwrap() error { return e.Err }

// FaceCountError is the terminal rejection for zero or multiple faces.
type FaceCountError struct {
	Count int
}

func (e *FaceCountError) Error() string {
	if e.Count == 0 {
		return "no faces detected"
	}
	return fmt.Sprintf("multiple faces detected: %d", e.Count)
}

// NameConflictError signals a duplicate photo name at persistence time.
type NameConflictError struct {
	Name string
}

func (e *NameConflictError) Error() string {
	return "a photo with this name already exists: " + e.Name
}

// StorageUnavailableError wraps any storage-layer failure that is not a
// uniqueness violation. Safe for the caller to retry later.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

// InvalidIdentifierError rejects a nil or negative record id.
type InvalidIdentifierError struct {
	ID int64
}

func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("photo id must be a positive number, got %d", e.ID)
}

var (
	// ErrNotFound reports an absent record for lookup-by-id.
	ErrNotFound = errors.New("photo not found")

	// ErrNoRecords reports an empty store for the list operation.
	ErrNoRecords = errors.New("no photos found")
)
