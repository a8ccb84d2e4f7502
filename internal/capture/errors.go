package capture

import "errors"

var (
	// ErrCapture means no screenshot could be taken.
	ErrCapture = errors.New("screenshot capture failed")
	// ErrOCR means text recognition failed.
	ErrOCR = errors.New("text recognition failed")
)
