package app

import (
	"context"
	"fmt"

	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/repository/sqlite"
	"trayaudit/internal/service/ai"
	"trayaudit/internal/service/analysis"
	"trayaudit/internal/service/detector"
	"trayaudit/internal/service/events"
	"trayaudit/internal/service/imagesource"
	"trayaudit/internal/service/storage"
)

// Pipeline owns the analyzer and everything it holds open: the result
// database, the artifact store, loaded models and the event producer.
type Pipeline struct {
	Analyzer  *analysis.Analyzer
	Results   *sqlite.AnalysisRepository
	Artifacts storage.ArtifactStore

	db        *sqlite.DB
	models    *ai.ModelCache
	publisher *events.KafkaPublisher
	logger    *logger.Logger
}

// NewPipeline wires the analyzer from config. Models load lazily on first use.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Pipeline, error) {
	p := &Pipeline{logger: logger}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	p.db = db
	p.Results = sqlite.NewAnalysisRepository(db)

	artifacts, err := storage.New(ctx, cfg)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	p.Artifacts = artifacts

	p.models = ai.NewModelCache()
	plates := detector.NewPlateDetector(cfg, p.models, logger)
	classifier := ai.NewClassifier(p.models, cfg.ModelDirectory,
		ai.NewONNXLoader(cfg.OnnxRuntimeLibrary, cfg.ClassifierInputName, cfg.ClassifierOutput))

	deps := analysis.Dependencies{
		Loader:     imagesource.NewLoader(cfg),
		Detector:   plates,
		Classifier: classifier,
		Artifacts:  artifacts,
		Results:    p.Results,
		Dedup:      storage.NewDedupSet(),
		Logger:     logger,
	}

	if cfg.StoreAnnotated {
		deps.Annotator = detector.NewAnnotator()
	}

	if cfg.KafkaBootstrapServers != "" {
		publisher, err := events.NewKafkaPublisher(cfg, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.publisher = publisher
		deps.Publisher = publisher
	}

	p.Analyzer = analysis.NewAnalyzer(deps)

	logger.Info("Pipeline ready - storage: %s, models: %s, detector: %s",
		cfg.StorageBackend, cfg.ModelDirectory, cfg.DetectorModelPath)
	return p, nil
}

// Close releases models, the event producer, the artifact store and the database.
func (p *Pipeline) Close() {
	if p.models != nil {
		if err := p.models.Close(); err != nil {
			p.logger.Error("Failed to release models: %v", err)
		}
	}
	if p.publisher != nil {
		p.publisher.Close()
	}
	if p.Artifacts != nil {
		if err := p.Artifacts.Close(); err != nil {
			p.logger.Error("Failed to close artifact store: %v", err)
		}
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.logger.Error("Failed to close result store: %v", err)
		}
	}
}
