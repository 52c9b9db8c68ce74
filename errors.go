package chunkup

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned when an operation needs at least one file or
	// pending task and none is available.
	ErrNoFiles = errors.New("no files")

	// ErrEmptyFile is returned for files reporting a size of zero bytes;
	// the chunk math and the backend merge both need at least one byte.
	ErrEmptyFile = errors.New("empty file")

	// ErrTaskNotFound is returned when a task id is unknown to the batch.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskInFlight is returned when removing a task that is currently
	// uploading or processing.
	ErrTaskInFlight = errors.New("task is uploading or processing")

	// ErrBatchRunning is returned by Start while a previous run is active.
	ErrBatchRunning = errors.New("batch already running")

	// ErrBatchClosed is returned when using a batch after Close.
	ErrBatchClosed = errors.New("batch is closed")

	// ErrUploadsActive is returned by Close while a task is uploading.
	// Use ForceClose after the caller confirmed the discard.
	ErrUploadsActive = errors.New("uploads still active")

	// ErrUnknownChunkOption is returned for chunk size names outside the catalog.
	ErrUnknownChunkOption = errors.New("unknown chunk size option")
)

// UploadError represents a failed call against the upload backend
type UploadError struct {
	Op       string // Operation that failed
	Filename string // File involved, may be empty
	Status   int    // HTTP status code, 0 when the request never completed
	Err      error  // Underlying error
}

func (e *UploadError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %v (status %d)", e.Op, e.Filename, e.Err, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
