package model

import (
	"errors"
	"fmt"
)

// LoadError reports that the model artifact could not be fetched or opened.
// Loading is not retried.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("model load failed: %v", e.Err)
	}
	return fmt.Sprintf("model load failed (%s): %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// NotReadyError is returned when inference is attempted while the model is
// not loaded.
type NotReadyError struct {
	State State
}

func (e *NotReadyError) Error() string { return "model not ready: " + string(e.State) }

// IsLoadError reports whether err is or wraps a *LoadError.
func IsLoadError(err error) bool {
	var le *LoadError
	return errors.As(err, &le)
}

// IsNotReady reports whether err is or wraps a *NotReadyError.
func IsNotReady(err error) bool {
	var nr *NotReadyError
	return errors.As(err, &nr)
}
