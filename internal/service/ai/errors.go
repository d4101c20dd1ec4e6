package ai

import (
	"fmt"
	"image"
)

// UnknownCategoryError is returned when a detection maps to a category with no classifiers.
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown food category: %s", e.Category)
}

// ClassificationError wraps a model load or inference failure.
type ClassificationError struct {
	Category string
	Model    string
	Err      error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed for %s with %s: %v", e.Category, e.Model, e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// RejectError names the validation rule a detection box failed.
type RejectError struct {
	Rule       string
	Box        image.Rectangle
	Confidence float64
	Area       int
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("detection rejected (%s): box=%d,%d,%d,%d confidence=%.2f area=%d",
		e.Rule, e.Box.Min.X, e.Box.Min.Y, e.Box.Max.X, e.Box.Max.Y, e.Confidence, e.Area)
}

// Rejection rules.
const (
	RuleLowConfidence = "low-confidence"
	RuleArea          = "area"
	RuleDegenerate    = "degenerate"
)
