// Package analysis runs the tray pipeline: detect plates, validate and crop each
// one, classify dish type and waste, then store the crop and its record.
package analysis

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"trayaudit/internal/dto"
	"trayaudit/internal/logger"
	"trayaudit/internal/model"
	"trayaudit/internal/repository"
	"trayaudit/internal/service/ai"
	"trayaudit/internal/service/imagesource"
	"trayaudit/internal/service/storage"

	"github.com/pkg/errors"
)

const (
	processedPrefix = "processed"
	annotatedPrefix = "annotated"
	cropQuality     = 90
)

// Detector finds plates in a tray photo.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]ai.Detection, error)
}

// Classifier predicts dish type and waste state of one crop.
type Classifier interface {
	Classify(ctx context.Context, input *ai.Tensor, category string) (*ai.Classification, error)
}

// ImageLoader resolves an image locator into a bitmap.
type ImageLoader interface {
	Load(ctx context.Context, locator string) (*image.RGBA, error)
}

// Annotator renders a preview of the accepted boxes.
type Annotator interface {
	Annotate(img image.Image, boxes []ai.Annotation) ([]byte, error)
}

// Publisher announces newly stored records.
type Publisher interface {
	Publish(ctx context.Context, rec *model.AnalysisRecord) error
}

// InputError reports a missing or unusable request field.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s is required", e.Field)
}

// Dependencies wires an Analyzer. Annotator and Publisher are optional.
type Dependencies struct {
	Loader       ImageLoader
	Detector     Detector
	Validator    *ai.CropValidator
	Preprocessor *ai.Preprocessor
	Classifier   Classifier
	Artifacts    storage.ArtifactStore
	Results      repository.AnalysisRepository
	Dedup        *storage.DedupSet
	Annotator    Annotator
	Publisher    Publisher
	Logger       *logger.Logger
}

// Analyzer processes one tray photo at a time per call.
type Analyzer struct {
	loader       ImageLoader
	detector     Detector
	validator    *ai.CropValidator
	preprocessor *ai.Preprocessor
	classifier   Classifier
	artifacts    storage.ArtifactStore
	results      repository.AnalysisRepository
	dedup        *storage.DedupSet
	annotator    Annotator
	publisher    Publisher
	logger       *logger.Logger
}

func NewAnalyzer(deps Dependencies) *Analyzer {
	a := &Analyzer{
		loader:       deps.Loader,
		detector:     deps.Detector,
		validator:    deps.Validator,
		preprocessor: deps.Preprocessor,
		classifier:   deps.Classifier,
		artifacts:    deps.Artifacts,
		results:      deps.Results,
		dedup:        deps.Dedup,
		annotator:    deps.Annotator,
		publisher:    deps.Publisher,
		logger:       deps.Logger,
	}
	if a.validator == nil {
		a.validator = ai.NewCropValidator()
	}
	if a.preprocessor == nil {
		a.preprocessor = ai.NewPreprocessor()
	}
	if a.dedup == nil {
		a.dedup = storage.NewDedupSet()
	}
	return a
}

// ArtifactKey is the storage key of a classified crop.
func ArtifactKey(category, foodType, wasteLabel string, index int, filename string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%d_%s", processedPrefix, category, foodType, wasteLabel, index, filename)
}

// AnalyzeLocator loads the photo at locator and analyzes it. The crop filenames
// are derived from the last path segment of locator.
func (a *Analyzer) AnalyzeLocator(ctx context.Context, locator, photoDay string) ([]dto.DetectionResult, error) {
	locator = strings.TrimSpace(locator)
	photoDay = strings.TrimSpace(photoDay)

	if locator == "" {
		return nil, &InputError{Field: "image_url"}
	}
	if photoDay == "" {
		return nil, &InputError{Field: "photo_day"}
	}

	filename := imagesource.Filename(locator)
	if filename == "" {
		return nil, &InputError{Field: "image_url", Reason: "must name an image file"}
	}

	a.logger.Info("Loading image %s", locator)
	img, err := a.loader.Load(ctx, locator)
	if err != nil {
		return nil, err
	}

	return a.Analyze(ctx, img, filename, photoDay)
}

// Analyze runs the pipeline on a decoded photo. Detections are processed in
// detector order; a detection that fails classification yields an error result
// and does not stop the others. An empty result means no food was found.
func (a *Analyzer) Analyze(ctx context.Context, img *image.RGBA, filename, photoDay string) ([]dto.DetectionResult, error) {
	detections, err := a.detector.Detect(ctx, img)
	if err != nil {
		return nil, errors.Wrap(err, "plate detection failed")
	}

	a.logger.Info("Analyzing %s: %d detections", filename, len(detections))

	results := make([]dto.DetectionResult, 0, len(detections))
	var annotations []ai.Annotation

	for i, det := range detections {
		out := a.analyzeDetection(ctx, img, i, det, filename, photoDay)
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "analysis aborted")
		}
		if out.skipped {
			continue
		}
		results = append(results, out.result)
		if out.annotation != nil {
			annotations = append(annotations, *out.annotation)
		}
	}

	if a.annotator != nil && len(annotations) > 0 {
		a.storeAnnotated(ctx, img, annotations, filename)
	}

	if len(results) == 0 {
		a.logger.Info("No food detected in %s", filename)
	}
	return results, nil
}

// detectionOutcome is the per-detection step result: skipped, or a result to report.
type detectionOutcome struct {
	result     dto.DetectionResult
	annotation *ai.Annotation
	skipped    bool
}

func (a *Analyzer) analyzeDetection(ctx context.Context, img *image.RGBA, index int, det ai.Detection, filename, photoDay string) detectionOutcome {
	log := a.logger.WithFields(map[string]interface{}{
		"index":    index,
		"category": det.Category,
		"file":     filename,
	})

	bounds := img.Bounds()
	box := a.validator.Clamp(det, bounds.Dx(), bounds.Dy())
	if err := a.validator.Validate(box, bounds.Dx(), bounds.Dy(), det.Confidence); err != nil {
		log.Warning("Skipping detection %s: %v", det, err)
		return detectionOutcome{skipped: true}
	}

	crop, ok := ai.Crop(img, box)
	if !ok {
		log.Warning("Skipping detection: empty crop %v", box)
		return detectionOutcome{skipped: true}
	}

	tensor := a.preprocessor.Process(crop)

	cls, err := a.classifier.Classify(ctx, tensor, det.Category)
	if err != nil {
		log.Error("Classification failed: %v", err)
		return detectionOutcome{result: dto.DetectionResult{
			Index:        index,
			FoodCategory: det.Category,
			Error:        err.Error(),
			PhotoDay:     photoDay,
		}}
	}

	key := ArtifactKey(cls.Category, cls.Type.Label, cls.Waste.Label, index, filename)
	url := a.artifacts.URL(key)

	result := dto.DetectionResult{
		Index:           index,
		FoodCategory:    cls.Category,
		FoodType:        cls.Type.Label,
		TypeConfidence:  cls.Type.Confidence,
		WasteLabel:      cls.Waste.Label,
		IsWaste:         cls.IsWaste(),
		WasteConfidence: cls.Waste.Confidence,
		PhotoDay:        photoDay,
		ImageURL:        url,
	}

	stored, err := a.store(ctx, key, url, crop, &result)
	if err != nil {
		log.Error("Failed to store %s: %v", key, err)
		result.StorageError = err.Error()
	}
	result.Stored = stored

	return detectionOutcome{
		result: result,
		annotation: &ai.Annotation{
			Box:        box,
			Label:      fmt.Sprintf("%s | %s", cls.Type.Label, cls.Waste.Label),
			Confidence: det.Confidence,
		},
	}
}

// store uploads the crop and then upserts its record, unless both the record
// and its crop already exist. It reports whether anything was written.
func (a *Analyzer) store(ctx context.Context, key, url string, crop image.Image, result *dto.DetectionResult) (bool, error) {
	if !a.dedup.Claim(url) {
		a.logger.Info("Already analyzed, not saved again: %s", key)
		return false, nil
	}

	recorded, err := a.results.Exists(url)
	if err != nil {
		a.dedup.Release(url)
		return false, errors.Wrap(err, "failed to check existing record")
	}
	if recorded {
		uploaded, err := a.artifacts.Exists(ctx, key)
		if err != nil {
			a.dedup.Release(url)
			return false, errors.Wrap(err, "failed to check stored crop")
		}
		if uploaded {
			a.logger.Info("Already analyzed, not saved again: %s", key)
			return false, nil
		}
		a.logger.Warning("Record %s has no stored crop, uploading again", key)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: cropQuality}); err != nil {
		a.dedup.Release(url)
		return false, errors.Wrap(err, "failed to encode crop")
	}

	if _, err := a.artifacts.Put(ctx, key, buf.Bytes(), "image/jpeg"); err != nil {
		a.dedup.Release(url)
		return false, errors.Wrap(err, "failed to upload crop")
	}

	rec, err := a.results.Upsert(&model.AnalysisRecord{
		ImageURL:     url,
		FoodCategory: result.FoodCategory,
		FoodType:     result.FoodType,
		IsWaste:      result.IsWaste,
		PhotoDay:     result.PhotoDay,
	})
	if err != nil {
		a.dedup.Release(url)
		return false, errors.Wrap(err, "failed to save record")
	}

	a.logger.Info("Saved %s", rec)

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, rec); err != nil {
			a.logger.Warning("Failed to publish analysis event for %s: %v", key, err)
		}
	}
	return true, nil
}

func (a *Analyzer) storeAnnotated(ctx context.Context, img image.Image, boxes []ai.Annotation, filename string) {
	data, err := a.annotator.Annotate(img, boxes)
	if err != nil {
		a.logger.Warning("Failed to annotate %s: %v", filename, err)
		return
	}

	key := annotatedPrefix + "/" + filename
	if _, err := a.artifacts.Put(ctx, key, data, "image/jpeg"); err != nil {
		a.logger.Warning("Failed to store annotated preview %s: %v", key, err)
	}
}

// Reset forgets written artifacts, used after the result store is cleared.
func (a *Analyzer) Reset() {
	a.dedup.Reset()
}
