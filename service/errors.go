package service

import (
	"context"
	"errors"

	"github.com/krau/autotone/adjust"
	"github.com/krau/autotone/inference"
	"github.com/krau/autotone/model"
	"github.com/krau/autotone/preprocess"
)

// BusyError is returned when an image is uploaded to a session whose
// previous image is still being analyzed. The in-flight analysis is not
// affected.
type BusyError struct{ SessionID string }

func (e *BusyError) Error() string { return "analysis already in progress for session " + e.SessionID }

// SessionNotFoundError is returned for unknown session ids.
type SessionNotFoundError struct{ SessionID string }

func (e *SessionNotFoundError) Error() string { return "session not found: " + e.SessionID }

// Kind classifies errors for the presentation layer.
type Kind int

const (
	KindInternal Kind = iota
	KindModelLoad
	KindModelNotReady
	KindImageNotReady
	KindBadImage
	KindInference
	KindPrecondition
	KindUnknownLabel
	KindBusy
	KindNotFound
	KindCanceled
)

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	var (
		notReady  *model.NotReadyError
		loadErr   *model.LoadError
		imgErr    *preprocess.ImageNotReadyError
		decodeErr *preprocess.DecodeError
		inferErr  *inference.Error
		shapeErr  *inference.ShapeError
		preErr    *adjust.PreconditionError
		unknown   *adjust.UnknownLabelError
		busy      *BusyError
		notFound  *SessionNotFoundError
	)
	switch {
	case errors.As(err, &notReady):
		return KindModelNotReady
	case errors.As(err, &loadErr):
		return KindModelLoad
	case errors.As(err, &imgErr):
		return KindImageNotReady
	case errors.As(err, &decodeErr):
		return KindBadImage
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &inferErr), errors.As(err, &shapeErr):
		return KindInference
	case errors.As(err, &preErr):
		return KindPrecondition
	case errors.As(err, &unknown):
		return KindUnknownLabel
	case errors.As(err, &busy):
		return KindBusy
	case errors.As(err, &notFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Message converts err into the text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch Classify(err) {
	case KindModelLoad:
		return "Failed to load the model. Check the server logs."
	case KindModelNotReady:
		var nr *model.NotReadyError
		if errors.As(err, &nr) && nr.State == model.StateLoadFailed {
			return "The model failed to load, so images cannot be analyzed."
		}
		return "The model is not loaded yet. Try again shortly."
	case KindImageNotReady:
		return "The image has not finished loading."
	case KindBadImage:
		return "Could not read the uploaded file as an image."
	case KindInference:
		return "An error occurred while analyzing the image."
	case KindPrecondition:
		return "Upload and analyze an image first."
	case KindUnknownLabel:
		return "Unknown recommendation."
	case KindBusy:
		return "An image is already being analyzed. Wait for it to finish."
	case KindNotFound:
		return "Session not found."
	case KindCanceled:
		return "The request was canceled."
	default:
		return "An unexpected error occurred."
	}
}
