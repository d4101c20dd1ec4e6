package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/model"
	"trayaudit/internal/service/ai"
	"trayaudit/internal/service/imagesource"
	"trayaudit/internal/service/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ========================================
// Fakes
// ========================================

// opLog records the order of store operations across fakes.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

type fakeDetector struct {
	detections []ai.Detection
	err        error
}

func (d *fakeDetector) Detect(context.Context, image.Image) ([]ai.Detection, error) {
	return d.detections, d.err
}

type fixedScorer struct {
	logits []float32
	err    error
}

func (s *fixedScorer) Score(*ai.Tensor) ([]float32, error) { return s.logits, s.err }
func (s *fixedScorer) Close() error                        { return nil }

// peak returns logits of length n whose softmax peaks at idx.
func peak(n, idx int) []float32 {
	logits := make([]float32, n)
	logits[idx] = 3
	return logits
}

// peakAt returns logits of length n whose softmax gives p at idx and splits
// the rest evenly.
func peakAt(n, idx int, p float64) []float32 {
	logits := make([]float32, n)
	logits[idx] = float32(math.Log(p * float64(n-1) / (1 - p)))
	return logits
}

func newClassifier(scorers map[string]*fixedScorer) *ai.Classifier {
	return ai.NewClassifier(ai.NewModelCache(), "/weights", func(path string) (ai.Scorer, error) {
		s, ok := scorers[filepath.Base(path)]
		if !ok {
			return nil, errors.New("model not found")
		}
		return s, nil
	})
}

type fakeArtifacts struct {
	log     *opLog
	objects map[string][]byte
	failPut bool
	mu      sync.Mutex
}

func newFakeArtifacts(log *opLog) *fakeArtifacts {
	return &fakeArtifacts{log: log, objects: make(map[string][]byte)}
}

func (s *fakeArtifacts) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return "", errors.New("bucket unavailable")
	}
	s.log.add("put:" + key)
	s.objects[key] = data
	return s.URL(key), nil
}

func (s *fakeArtifacts) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeArtifacts) List(context.Context, string) ([]storage.Object, error) { return nil, nil }
func (s *fakeArtifacts) URL(key string) string                                 { return "https://cdn.test/" + key }
func (s *fakeArtifacts) Close() error                                          { return nil }

func (s *fakeArtifacts) remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}

func (s *fakeArtifacts) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

type fakeResults struct {
	log        *opLog
	records    map[string]model.AnalysisRecord
	failUpsert bool
	mu         sync.Mutex
}

func newFakeResults(log *opLog) *fakeResults {
	return &fakeResults{log: log, records: make(map[string]model.AnalysisRecord)}
}

func (r *fakeResults) Upsert(rec *model.AnalysisRecord) (*model.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpsert {
		return nil, errors.New("database is locked")
	}
	r.log.add("upsert:" + rec.ImageURL)
	stored := *rec
	stored.ID = int64(len(r.records) + 1)
	stored.CreatedAt = time.Now()
	r.records[rec.ImageURL] = stored
	return &stored, nil
}

func (r *fakeResults) Exists(url string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[url]
	return ok, nil
}

func (r *fakeResults) GetByURL(url string) (*model.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[url]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *fakeResults) GetAll(*model.AnalysisFilter) ([]model.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []model.AnalysisRecord
	for _, rec := range r.records {
		all = append(all, rec)
	}
	return all, nil
}

func (r *fakeResults) GetTotalCount(*model.AnalysisFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records), nil
}

func (r *fakeResults) GetSummary() (*model.WasteSummary, error) {
	return &model.WasteSummary{}, nil
}

func (r *fakeResults) GetStatistics(*model.AnalysisFilter) (*model.WasteStatistics, error) {
	return &model.WasteStatistics{}, nil
}

func (r *fakeResults) DeleteAll() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.records))
	r.records = make(map[string]model.AnalysisRecord)
	return n, nil
}

func (r *fakeResults) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeLoader struct {
	img *image.RGBA
	err error
}

func (l *fakeLoader) Load(context.Context, string) (*image.RGBA, error) {
	return l.img, l.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	records []model.AnalysisRecord
}

func (p *recordingPublisher) Publish(_ context.Context, rec *model.AnalysisRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, *rec)
	return nil
}

type recordingAnnotator struct {
	boxes []ai.Annotation
}

func (a *recordingAnnotator) Annotate(_ image.Image, boxes []ai.Annotation) ([]byte, error) {
	a.boxes = boxes
	return []byte("preview"), nil
}

// ========================================
// Harness
// ========================================

type harness struct {
	log       *opLog
	detector  *fakeDetector
	artifacts *fakeArtifacts
	results   *fakeResults
	loader    *fakeLoader
	deps      Dependencies
}

func soupScorers() map[string]*fixedScorer {
	return map[string]*fixedScorer{
		"wiseTypeSoup.onnx": {logits: peakAt(4, 0, 0.8)},
		"wiseSoup.onnx":     {logits: peakAt(2, 1, 0.7)},
	}
}

func newHarness(t *testing.T, detections []ai.Detection, scorers map[string]*fixedScorer) *harness {
	t.Helper()

	log, err := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(log.Close)

	ops := &opLog{}
	h := &harness{
		log:       ops,
		detector:  &fakeDetector{detections: detections},
		artifacts: newFakeArtifacts(ops),
		results:   newFakeResults(ops),
		loader:    &fakeLoader{img: image.NewRGBA(image.Rect(0, 0, 640, 480))},
	}
	h.deps = Dependencies{
		Loader:     h.loader,
		Detector:   h.detector,
		Classifier: newClassifier(scorers),
		Artifacts:  h.artifacts,
		Results:    h.results,
		Logger:     log,
	}
	return h
}

func (h *harness) analyzer() *Analyzer {
	return NewAnalyzer(h.deps)
}

func plate(x1, y1, x2, y2, conf float64, classID int) ai.Detection {
	return ai.Detection{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: conf, ClassID: classID, Category: ai.PlateCategory(classID)}
}

func tray() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 640, 480))
}

// ========================================
// Analyze
// ========================================

func TestAnalyze_SoupPlate(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, 0, r.Index)
	assert.Equal(t, ai.CategorySoup, r.FoodCategory)
	assert.Equal(t, "lentil-soup", r.FoodType)
	assert.Equal(t, 0.8, r.TypeConfidence)
	assert.Equal(t, ai.WasteLabelNotWasted, r.WasteLabel)
	assert.False(t, r.IsWaste)
	assert.Equal(t, 0.7, r.WasteConfidence)
	assert.Equal(t, "2024-03-01", r.PhotoDay)
	assert.True(t, r.Stored)
	assert.Empty(t, r.Error)
	assert.Empty(t, r.StorageError)

	key := "processed/soup/lentil-soup/not-wasted/0_tray.jpg"
	assert.Equal(t, "https://cdn.test/"+key, r.ImageURL)
	assert.True(t, h.artifacts.has(key))

	rec, err := h.results.GetByURL(r.ImageURL)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "lentil-soup", rec.FoodType)
	assert.False(t, rec.IsWaste)
	assert.Equal(t, "2024-03-01", rec.PhotoDay)
	assert.Equal(t, 1, h.results.count())
}

func TestAnalyze_SoupPlateJSON(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	payload, err := json.Marshal(results[0])
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "soup", decoded["food_category"])
	assert.Equal(t, "lentil-soup", decoded["food_type"])
	assert.Equal(t, false, decoded["is_waste"])
	assert.Equal(t, 0.8, decoded["tur_confidence"])
	assert.Equal(t, 0.7, decoded["israf_confidence"])
}

func TestAnalyze_NoDetections(t *testing.T) {
	h := newHarness(t, nil, soupScorers())

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, h.log.list())
}

func TestAnalyze_DetectorFailure(t *testing.T) {
	h := newHarness(t, nil, soupScorers())
	h.detector.err = errors.New("network not loaded")

	_, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	assert.Error(t, err)
}

func TestAnalyze_RejectedDetectionsAreSkipped(t *testing.T) {
	h := newHarness(t, []ai.Detection{
		plate(10, 10, 110, 110, 0.49, 0),  // low confidence
		plate(200, 200, 230, 230, 0.9, 0), // 30x30
		plate(0, 0, 640, 480, 0.9, 0),     // whole tray
		plate(300, 300, 340, 340, 0.9, 0), // 40x40
	}, soupScorers())

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Index)
	assert.Equal(t, "https://cdn.test/processed/soup/lentil-soup/not-wasted/3_tray.jpg", results[0].ImageURL)
}

func TestAnalyze_Idempotent(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())
	a := h.analyzer()

	first, err := a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	require.Len(t, second, 1)
	assert.Equal(t, first[0].ImageURL, second[0].ImageURL)
	assert.True(t, first[0].Stored)
	assert.False(t, second[0].Stored)
	assert.Equal(t, 1, h.results.count())
	assert.Len(t, h.log.list(), 2)
}

func TestAnalyze_ExistingRecordFromEarlierProcess(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	_, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	// a fresh analyzer has an empty dedup set but must still find the record
	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Stored)
	assert.Len(t, h.log.list(), 2)
}

func TestAnalyze_RecordWithoutStoredCropIsRepaired(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	_, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	key := "processed/soup/lentil-soup/not-wasted/0_tray.jpg"
	h.artifacts.remove(key)

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Stored)
	assert.True(t, h.artifacts.has(key))
	assert.Equal(t, 1, h.results.count())
	assert.Equal(t, []string{
		"put:" + key, "upsert:https://cdn.test/" + key,
		"put:" + key, "upsert:https://cdn.test/" + key,
	}, h.log.list())
}

func TestAnalyze_UploadBeforeUpsert(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	_, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	key := "processed/soup/lentil-soup/not-wasted/0_tray.jpg"
	assert.Equal(t, []string{"put:" + key, "upsert:https://cdn.test/" + key}, h.log.list())
}

func TestAnalyze_ClassificationFailureIsIsolated(t *testing.T) {
	scorers := soupScorers()
	scorers["wiseMainTypeCls-yolo5.onnx"] = &fixedScorer{err: errors.New("corrupt weights")}
	scorers["wiseExtraTypeCls-yolo5.onnx"] = &fixedScorer{logits: peak(3, 2)}
	scorers["wiseExtraCls-yolo5.onnx"] = &fixedScorer{logits: peak(2, 0)}

	h := newHarness(t, []ai.Detection{
		plate(10, 10, 110, 110, 0.9, 0),
		plate(200, 10, 300, 110, 0.9, 1),
		plate(400, 10, 500, 110, 0.9, 3),
	}, scorers)

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.Contains(t, results[1].Error, "corrupt weights")
	assert.Equal(t, "2024-03-01", results[1].PhotoDay)
	assert.Empty(t, results[1].ImageURL)

	assert.False(t, results[2].Failed())
	assert.Equal(t, "yogurt", results[2].FoodType)
	assert.True(t, results[2].IsWaste)
	assert.Equal(t, "https://cdn.test/processed/extra/yogurt/wasted/2_tray.jpg", results[2].ImageURL)

	assert.Equal(t, 2, h.results.count())
}

func TestAnalyze_UnknownCategory(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 9)}, soupScorers())

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Error, "unknown food category")
	assert.Zero(t, h.results.count())
}

func TestAnalyze_StorageFailureKeepsClassification(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())
	h.artifacts.failPut = true
	a := h.analyzer()

	results, err := a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "lentil-soup", results[0].FoodType)
	assert.False(t, results[0].Stored)
	assert.Contains(t, results[0].StorageError, "bucket unavailable")
	assert.Zero(t, h.results.count())

	// the failed claim is released, so a retry writes the artifact
	h.artifacts.failPut = false
	results, err = a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	assert.True(t, results[0].Stored)
	assert.Equal(t, 1, h.results.count())
}

func TestAnalyze_UpsertFailure(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())
	h.results.failUpsert = true

	results, err := h.analyzer().Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].StorageError, "database is locked")
	assert.False(t, results[0].Stored)
}

func TestAnalyze_PublishesAndAnnotates(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())
	publisher := &recordingPublisher{}
	annotator := &recordingAnnotator{}
	h.deps.Publisher = publisher
	h.deps.Annotator = annotator
	a := h.analyzer()

	_, err := a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)
	_, err = a.Analyze(context.Background(), tray(), "tray.jpg", "2024-03-01")
	require.NoError(t, err)

	require.Len(t, publisher.records, 1)
	assert.Equal(t, "lentil-soup", publisher.records[0].FoodType)

	require.Len(t, annotator.boxes, 1)
	assert.Equal(t, image.Rect(10, 10, 110, 110), annotator.boxes[0].Box)
	assert.True(t, h.artifacts.has("annotated/tray.jpg"))
}

func TestAnalyze_CancelledContext(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.analyzer().Analyze(ctx, tray(), "tray.jpg", "2024-03-01")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.results.count())
}

// ========================================
// AnalyzeLocator
// ========================================

func TestAnalyzeLocator_InputErrors(t *testing.T) {
	h := newHarness(t, nil, soupScorers())
	a := h.analyzer()

	_, err := a.AnalyzeLocator(context.Background(), "", "2024-03-01")
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "image_url", inputErr.Field)

	_, err = a.AnalyzeLocator(context.Background(), "https://x/tray.jpg", "  ")
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "photo_day", inputErr.Field)
}

func TestAnalyzeLocator_RejectsLocatorWithoutFilename(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	for _, locator := range []string{"http://photos.test/", "https://photos.test/uploads/"} {
		results, err := h.analyzer().AnalyzeLocator(context.Background(), locator, "2024-03-01")

		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr), locator)
		assert.Equal(t, "image_url", inputErr.Field)
		assert.Equal(t, "image_url must name an image file", inputErr.Error())
		assert.Nil(t, results)
	}
	assert.Empty(t, h.log.list())
}

func TestAnalyzeLocator_LoadFailure(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())
	h.loader.err = &imagesource.FetchError{Locator: "https://x/tray.jpg", StatusCode: 404}

	results, err := h.analyzer().AnalyzeLocator(context.Background(), "https://x/tray.jpg", "2024-03-01")
	var fetchErr *imagesource.FetchError
	assert.True(t, errors.As(err, &fetchErr))
	assert.Nil(t, results)
	assert.Empty(t, h.log.list())
}

func TestAnalyzeLocator_DerivesFilename(t *testing.T) {
	h := newHarness(t, []ai.Detection{plate(10, 10, 110, 110, 0.9, 0)}, soupScorers())

	results, err := h.analyzer().AnalyzeLocator(context.Background(),
		"https://storage.googleapis.com/wise-uploads/uploads/1f2e_monday.jpg", "2024-03-04")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, strings.HasSuffix(results[0].ImageURL, "/processed/soup/lentil-soup/not-wasted/0_1f2e_monday.jpg"))
}

func TestArtifactKey(t *testing.T) {
	assert.Equal(t, "processed/main-dish/peas/wasted/4_tray.jpg",
		ArtifactKey("main-dish", "peas", "wasted", 4, "tray.jpg"))
}
