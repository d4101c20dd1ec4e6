package ai

import (
	"image"
	"image/draw"
	"math"
)

const (
	// MinCropConfidence is the lowest detector confidence accepted for classification.
	MinCropConfidence = 0.5
	// MinCropArea is the smallest accepted crop, in pixels.
	MinCropArea = 1500
	// MaxCropAreaRatio is the largest accepted crop as a share of the whole image.
	MaxCropAreaRatio = 0.8
)

// CropValidator decides whether a detection box is worth classifying.
type CropValidator struct {
	MinConfidence float64
	MinArea       int
	MaxAreaRatio  float64
}

// NewCropValidator returns a validator with the default thresholds.
func NewCropValidator() *CropValidator {
	return &CropValidator{
		MinConfidence: MinCropConfidence,
		MinArea:       MinCropArea,
		MaxAreaRatio:  MaxCropAreaRatio,
	}
}

// Clamp rounds the detection to integer pixels and clamps it into the image.
// The result is not canonicalized, so an inverted box stays inverted.
func (v *CropValidator) Clamp(det Detection, width, height int) image.Rectangle {
	return image.Rectangle{
		Min: image.Point{
			X: clampInt(roundHalfEven(det.X1), 0, width-1),
			Y: clampInt(roundHalfEven(det.Y1), 0, height-1),
		},
		Max: image.Point{
			X: clampInt(roundHalfEven(det.X2), 0, width),
			Y: clampInt(roundHalfEven(det.Y2), 0, height),
		},
	}
}

// Validate applies the confidence, area and degeneracy rules in that order to a
// clamped box and returns a *RejectError for the first rule that fails.
func (v *CropValidator) Validate(box image.Rectangle, width, height int, confidence float64) error {
	area := (box.Max.X - box.Min.X) * (box.Max.Y - box.Min.Y)

	if confidence < v.MinConfidence {
		return &RejectError{Rule: RuleLowConfidence, Box: box, Confidence: confidence, Area: area}
	}

	if area < v.MinArea || float64(area) > float64(width*height)*v.MaxAreaRatio {
		return &RejectError{Rule: RuleArea, Box: box, Confidence: confidence, Area: area}
	}

	if box.Max.X <= box.Min.X || box.Max.Y <= box.Min.Y {
		return &RejectError{Rule: RuleDegenerate, Box: box, Confidence: confidence, Area: area}
	}

	return nil
}

// Accept reports whether the clamped box passes validation.
func (v *CropValidator) Accept(box image.Rectangle, width, height int, confidence float64) bool {
	return v.Validate(box, width, height, confidence) == nil
}

// Crop copies the region of img inside box into a new image anchored at (0,0).
// It returns false when the region is empty.
func Crop(img image.Image, box image.Rectangle) (*image.RGBA, bool) {
	region := box.Canon().Add(img.Bounds().Min).Intersect(img.Bounds())
	if region.Empty() {
		return nil, false
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(dst, dst.Bounds(), img, region.Min, draw.Src)
	return dst, true
}

func roundHalfEven(v float64) int {
	return int(math.RoundToEven(v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
