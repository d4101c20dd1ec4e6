package ai

import (
	"fmt"
	"image"
	"sort"
)

// Detection is a plate found by the detector, in source image pixels.
type Detection struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	ClassID        int
	Category       string
}

func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f) [%.0f,%.0f,%.0f,%.0f]", d.Category, d.Confidence, d.X1, d.Y1, d.X2, d.Y2)
}

// Annotation is an accepted box with the label drawn on the preview image.
type Annotation struct {
	Box        image.Rectangle
	Label      string
	Confidence float64
}

func (d Detection) area() float64 {
	w := d.X2 - d.X1
	h := d.Y2 - d.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// DecodeYOLOv5 turns a YOLOv5 output matrix into detections. Each row holds
// [cx, cy, w, h, objectness, class scores...] in network input pixels; scaleX and
// scaleY map them back to the source image. Rows below threshold are dropped.
func DecodeYOLOv5(data []float32, rows, cols int, scaleX, scaleY, threshold float64) []Detection {
	if cols < 6 || len(data) < rows*cols {
		return nil
	}

	var detections []Detection
	for i := 0; i < rows; i++ {
		row := data[i*cols : (i+1)*cols]

		objectness := float64(row[4])
		if objectness < threshold {
			continue
		}

		classID := 0
		maxScore := row[5]
		for j := 6; j < cols; j++ {
			if row[j] > maxScore {
				maxScore = row[j]
				classID = j - 5
			}
		}

		confidence := objectness * float64(maxScore)
		if confidence < threshold {
			continue
		}

		cx, cy := float64(row[0]), float64(row[1])
		w, h := float64(row[2]), float64(row[3])

		detections = append(detections, Detection{
			X1:         (cx - w/2) * scaleX,
			Y1:         (cy - h/2) * scaleY,
			X2:         (cx + w/2) * scaleX,
			Y2:         (cy + h/2) * scaleY,
			Confidence: confidence,
			ClassID:    classID,
			Category:   PlateCategory(classID),
		})
	}

	return detections
}

// IoU returns the intersection over union of two detections.
func IoU(a, b Detection) float64 {
	inter := Detection{
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
		X2: min(a.X2, b.X2),
		Y2: min(a.Y2, b.Y2),
	}.area()
	if inter == 0 {
		return 0
	}

	union := a.area() + b.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NonMaxSuppression keeps the most confident detection of each overlapping
// group. Boxes of different classes never suppress each other.
func NonMaxSuppression(detections []Detection, threshold float64) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	var result []Detection
	suppressed := make([]bool, len(sorted))

	for i := range sorted {
		if suppressed[i] {
			continue
		}
		result = append(result, sorted[i])

		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != sorted[i].ClassID {
				continue
			}
			if IoU(sorted[i], sorted[j]) > threshold {
				suppressed[j] = true
			}
		}
	}

	return result
}
