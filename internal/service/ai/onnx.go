package ai

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initONNXRuntime loads the shared library once per process.
func initONNXRuntime(libPath string) error {
	ortOnce.Do(func() {
		if _, err := os.Stat(libPath); os.IsNotExist(err) {
			ortErr = errors.Errorf("ONNX Runtime library not found at %s", libPath)
			return
		}

		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = errors.Wrap(err, "error initializing ORT environment")
		}
	})
	return ortErr
}

// onnxScorer runs a classifier through ONNX Runtime.
type onnxScorer struct {
	session *ort.DynamicAdvancedSession
	path    string
	mu      sync.Mutex
}

// NewONNXLoader returns a ScorerLoader that opens classifiers with ONNX Runtime.
func NewONNXLoader(libPath, inputName, outputName string) ScorerLoader {
	return func(path string) (Scorer, error) {
		if err := initONNXRuntime(libPath); err != nil {
			return nil, err
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, errors.Errorf("model file not found: %s", path)
		}

		options, err := ort.NewSessionOptions()
		if err != nil {
			return nil, errors.Wrap(err, "error creating ORT session options")
		}
		defer options.Destroy()

		if err := options.SetIntraOpNumThreads(2); err != nil {
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
		if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
			return nil, errors.Wrap(err, "error setting graph optimization level")
		}

		session, err := ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, options)
		if err != nil {
			return nil, errors.Wrapf(err, "error creating ONNX session for %s", path)
		}

		return &onnxScorer{session: session, path: path}, nil
	}
}

// Score runs one forward pass and returns a copy of the output logits.
func (s *onnxScorer) Score(input *Tensor) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, errors.Errorf("session for %s is closed", s.path)
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrapf(err, "error running %s", s.path)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.Errorf("unexpected output type %T from %s", outputs[0], s.path)
	}

	data := out.GetData()
	logits := make([]float32, len(data))
	copy(logits, data)
	return logits, nil
}

func (s *onnxScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
