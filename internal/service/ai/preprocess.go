package ai

import (
	"image"

	"github.com/nfnt/resize"
)

// ClassifierInputSize is the square input edge of the dish classifiers.
const ClassifierInputSize = 224

// Tensor is a dense float32 tensor in NCHW layout.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// Preprocessor converts a crop into a normalized classifier input.
type Preprocessor struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// NewPreprocessor returns a preprocessor using ImageNet statistics.
func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		Size: ClassifierInputSize,
		Mean: [3]float32{0.485, 0.456, 0.406},
		Std:  [3]float32{0.229, 0.224, 0.225},
	}
}

// Process resizes img to Size x Size, center crops, and normalizes each channel.
// The result has shape [1, 3, Size, Size].
func (p *Preprocessor) Process(img image.Image) *Tensor {
	size := p.Size
	resized := resize.Resize(uint(size), uint(size), img, resize.Bilinear)

	bounds := resized.Bounds()
	offX := bounds.Min.X + (bounds.Dx()-size)/2
	offY := bounds.Min.Y + (bounds.Dy()-size)/2

	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(offX+x, offY+y).RGBA()
			i := y*size + x
			data[i] = (float32(r>>8)/255.0 - p.Mean[0]) / p.Std[0]
			data[plane+i] = (float32(g>>8)/255.0 - p.Mean[1]) / p.Std[1]
			data[2*plane+i] = (float32(b>>8)/255.0 - p.Mean[2]) / p.Std[2]
		}
	}

	return &Tensor{
		Data:  data,
		Shape: []int64{1, 3, int64(size), int64(size)},
	}
}
