package ai

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
)

// Scorer runs a single-label classifier and returns its raw logits.
type Scorer interface {
	Score(input *Tensor) ([]float32, error)
	Close() error
}

// ScorerLoader opens the classifier stored at path.
type ScorerLoader func(path string) (Scorer, error)

// Outcome is the arg-max of one classifier.
type Outcome struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classification is the dish type and waste state of one crop.
type Classification struct {
	Category string
	Type     Outcome
	Waste    Outcome
}

// IsWaste reports whether the waste classifier found leftovers.
func (c *Classification) IsWaste() bool {
	return c.Waste.Label == WasteLabelWasted
}

// Classifier runs the per-category type and waste models.
type Classifier struct {
	cache    *ModelCache
	modelDir string
	load     ScorerLoader
}

func NewClassifier(cache *ModelCache, modelDir string, load ScorerLoader) *Classifier {
	return &Classifier{
		cache:    cache,
		modelDir: modelDir,
		load:     load,
	}
}

// Classify predicts the dish type, then the waste state, of a preprocessed crop.
// Unknown categories fail before any model is loaded.
func (c *Classifier) Classify(ctx context.Context, input *Tensor, category string) (*Classification, error) {
	if !IsKnownCategory(category) {
		return nil, &UnknownCategoryError{Category: category}
	}

	typeOut, err := c.run(ctx, TypeModels[category], category, input)
	if err != nil {
		return nil, err
	}
	typeOut.Label = FoodTypeLabel(category, typeOut.Index)

	wasteOut, err := c.run(ctx, WasteModels[category], category, input)
	if err != nil {
		return nil, err
	}
	wasteOut.Label = WasteLabel(wasteOut.Index)

	return &Classification{
		Category: category,
		Type:     typeOut,
		Waste:    wasteOut,
	}, nil
}

func (c *Classifier) run(ctx context.Context, modelName, category string, input *Tensor) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, &ClassificationError{Category: category, Model: modelName, Err: err}
	}

	scorer, err := LoadModel(c.cache, modelName, func() (Scorer, error) {
		return c.load(filepath.Join(c.modelDir, modelName))
	})
	if err != nil {
		return Outcome{}, &ClassificationError{Category: category, Model: modelName, Err: err}
	}

	logits, err := scorer.Score(input)
	if err != nil {
		return Outcome{}, &ClassificationError{Category: category, Model: modelName, Err: errors.Wrap(err, "inference")}
	}
	if len(logits) == 0 {
		return Outcome{}, &ClassificationError{Category: category, Model: modelName, Err: errors.New("model returned no scores")}
	}

	idx, p := Argmax(Softmax(logits))
	return Outcome{Index: idx, Confidence: roundConfidence(p)}, nil
}
