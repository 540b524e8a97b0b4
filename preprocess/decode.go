// Package preprocess decodes uploaded images and converts them into model
// input tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/webp"
)

// ImageNotReadyError is returned when preprocessing is attempted before an
// image has been decoded.
type ImageNotReadyError struct{}

func (*ImageNotReadyError) Error() string { return "image is not decoded yet" }

// DecodeError wraps a failure to decode uploaded bytes.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("failed to decode image: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// MaxPixels caps the canvas size Decode accepts. Compressed formats can
// describe canvases far larger than the uploaded bytes.
var MaxPixels = 64 << 20

// ErrTooManyPixels is wrapped in a *DecodeError when an image exceeds MaxPixels.
var ErrTooManyPixels = errors.New("image has too many pixels")

// Decode reads a JPEG, PNG, GIF, WebP or AVIF image.
func Decode(r io.Reader) (image.Image, string, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", &ImageNotReadyError{}
	}
	if cfg.Width > MaxPixels/cfg.Height {
		return nil, "", &DecodeError{Err: fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)}
	}

	img, format, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	if img.Bounds().Empty() {
		return nil, format, &ImageNotReadyError{}
	}
	return img, format, nil
}
