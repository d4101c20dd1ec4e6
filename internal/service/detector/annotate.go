package detector

import (
	"fmt"
	"image"
	"image/color"

	"trayaudit/internal/service/ai"

	"gocv.io/x/gocv"
)

// Annotator renders accepted detections onto the source photo.
type Annotator struct{}

func NewAnnotator() *Annotator {
	return &Annotator{}
}

// Annotate draws each box with its label and returns a JPEG buffer.
func (a *Annotator) Annotate(img image.Image, boxes []ai.Annotation) ([]byte, error) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}

	mat, err := matFromImage(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, box := range boxes {
		if err := gocv.Rectangle(&mat, box.Box, red, 2); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %v", err)
		}

		label := fmt.Sprintf("%s (%.2f)", box.Label, box.Confidence)
		pt := image.Pt(box.Box.Min.X, max(box.Box.Min.Y-5, 10))
		if err := gocv.PutText(&mat, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil, fmt.Errorf("failed to draw text: %v", err)
		}
	}

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %v", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}
