package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for state transitions.
var (
	ErrSectionNotFound     = errors.New("section not found")
	ErrFileNotFound        = errors.New("file not found")
	ErrNoFiles             = errors.New("section has no files to summarize")
	ErrSummarizeInProgress = errors.New("section is already being summarized")
	ErrOperationInProgress = errors.New("another operation is already running on this file")
)

// UploadError is returned when object storage rejects an upload.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload file %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// InvalidPayloadError describes a malformed process-documents request.
type InvalidPayloadError struct {
	Details string
}

func (e *InvalidPayloadError) Error() string {
	return "invalid request payload: " + e.Details
}

// RemoteWorkflowError is returned when the workflow endpoint (or the backend
// function in front of it) does not report success. StatusCode is zero when
// the endpoint could not be reached at all.
type RemoteWorkflowError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteWorkflowError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("workflow error (status %d): %s", e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("workflow error: %s: %v", e.Message, e.Err)
	}
	return "workflow error: " + e.Message
}

func (e *RemoteWorkflowError) Unwrap() error { return e.Err }

// ConversionUnsupportedError is returned for inputs the conversion engine cannot normalize.
type ConversionUnsupportedError struct {
	Name      string
	MediaType string
}

func (e *ConversionUnsupportedError) Error() string {
	return fmt.Sprintf("unsupported file type for conversion: %s (%s)", e.Name, e.MediaType)
}

// ExtractionWarning records an embedded image that could not be recovered.
// It is logged, never returned to callers.
type ExtractionWarning struct {
	Page  int
	Index int
	Ref   string
	Err   error
}

func (w *ExtractionWarning) Error() string {
	return fmt.Sprintf("page %d image %d (%s) skipped: %v", w.Page, w.Index, w.Ref, w.Err)
}

func (w *ExtractionWarning) Unwrap() error { return w.Err }

// PersistenceWarning records a failed audit-log write.
type PersistenceWarning struct {
	SessionID string
	Err       error
}

func (w *PersistenceWarning) Error() string {
	return fmt.Sprintf("failed to persist workflow response for %s: %v", w.SessionID, w.Err)
}

func (w *PersistenceWarning) Unwrap() error { return w.Err }
