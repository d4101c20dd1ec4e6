package ai

import (
	"math"

	"github.com/chewxy/math32"
)

// Softmax converts logits into probabilities.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}

	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		probs[i] = math32.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Argmax returns the index and value of the largest element, -1 when empty.
// Ties resolve to the lowest index.
func Argmax(values []float32) (int, float32) {
	if len(values) == 0 {
		return -1, 0
	}

	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best, values[best]
}

// roundConfidence rounds to four decimal places.
func roundConfidence(v float32) float64 {
	return math.Round(float64(v)*10000) / 10000
}
