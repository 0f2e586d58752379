package db

import "fmt"

// AttachError represents a failed attach of a translation database. After
// it, nothing is attached; the caller decides whether to fall back or clear
// its selection.
type AttachError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("failed to attach %s: %s", e.Filename, e.Reason)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}
