package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/krau/autotone/tensor"
)

// ImageSize is the square edge the model expects.
const ImageSize = 224

const Channels = 3

// InputShape is the tensor shape produced by Preprocess (NHWC).
var InputShape = tensor.Shape{1, ImageSize, ImageSize, Channels}

// Preprocess turns a decoded image into the model input tensor:
// nearest-neighbor resize to 224x224, raw 0-255 channel values as float32,
// and a leading batch dimension. The caller owns the returned tensor and
// must Release it.
func Preprocess(img image.Image) (*tensor.Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, &ImageNotReadyError{}
	}
	resized := resize(img)

	return tensor.Tidy(func(s *tensor.Scope) (*tensor.Tensor, error) {
		pixels, err := s.New(tensor.Shape{ImageSize, ImageSize, Channels})
		if err != nil {
			return nil, err
		}
		data, err := pixels.Data()
		if err != nil {
			return nil, err
		}
		fromPixels(resized, data)
		return s.ExpandDims(pixels, 0)
	})
}

// resize scales img to ImageSize x ImageSize without smoothing. Output pixel
// (x, y) reads source pixel (x*w/ImageSize, y*h/ImageSize), i.e. the grid is
// aligned on the top-left corner, not on pixel centers.
func resize(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, ImageSize, ImageSize))
	for y := 0; y < ImageSize; y++ {
		sy := b.Min.Y + y*b.Dy()/ImageSize
		srow := src.Pix[(sy-b.Min.Y)*src.Stride:]
		drow := dst.Pix[y*dst.Stride:]
		for x := 0; x < ImageSize; x++ {
			sx := x * b.Dx() / ImageSize
			copy(drow[x*4:x*4+4], srow[sx*4:sx*4+4])
		}
	}
	return dst
}

func fromPixels(img *image.NRGBA, out []float32) {
	i := 0
	for y := 0; y < ImageSize; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+ImageSize*4]
		for x := 0; x < ImageSize; x++ {
			px := row[x*4 : x*4+4]
			out[i] = float32(px[0])
			out[i+1] = float32(px[1])
			out[i+2] = float32(px[2])
			i += Channels
		}
	}
}
