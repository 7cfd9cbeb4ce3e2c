package monitor

import (
	"errors"
	"fmt"
)

var (
	// ErrPlantNotFound indicates the plant could not be located or opened on the dashboard.
	ErrPlantNotFound = errors.New("plant not found")
	// ErrElementNotFound indicates a locator matched no element.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoBoundingBox indicates an element exists but is not rendered.
	ErrNoBoundingBox = errors.New("element has no bounding box")
	// ErrMonthlyUnsupported indicates a vendor offers no monthly extraction path.
	ErrMonthlyUnsupported = errors.New("monthly extraction not supported")
	// ErrChallengeExhausted indicates every challenge attempt failed.
	ErrChallengeExhausted = errors.New("challenge attempts exhausted")
)

// FatalError aborts the whole vendor workflow. Notified is set when the internal-error
// notification was already sent by the component that raised it.
type FatalError struct {
	Stage    string
	Err      error
	Notified bool
}

// Fatal wraps err as a vendor-fatal failure raised during stage.
func Fatal(stage string, err error) *FatalError {
	return &FatalError{Stage: stage, Err: err}
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err carries a FatalError.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
