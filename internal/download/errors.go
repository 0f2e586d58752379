package download

import "fmt"

// AlreadyInProgressError is returned when a download is requested while
// another one is still running. Downloads are single-flight: the temp file
// naming inside the store is not collision-safe across concurrent transfers.
type AlreadyInProgressError struct {
	TranslationID string // id of the download already in flight
}

func (e *AlreadyInProgressError) Error() string {
	return fmt.Sprintf("a download for translation %q is already in progress", e.TranslationID)
}

// TransferError represents a failed network transfer, including non-success
// HTTP responses. The download is retryable after this error.
type TransferError struct {
	URL        string
	StatusCode int // 0 for non-HTTP failures
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transfer of %s failed with HTTP %d", e.URL, e.StatusCode)
	}

	return fmt.Sprintf("transfer of %s failed: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// MoveError represents a failure to relocate a fully transferred file into
// the permanent store. The previous copy at the destination, if any, is
// untouched.
type MoveError struct {
	Filename string
	Err      error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("failed to move %s into the translation store: %v", e.Filename, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}
