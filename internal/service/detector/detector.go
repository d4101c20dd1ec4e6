package detector

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"trayaudit/internal/config"
	"trayaudit/internal/logger"
	"trayaudit/internal/service/ai"

	"gocv.io/x/gocv"
)

// plateNet owns the loaded detection network.
type plateNet struct {
	net gocv.Net
}

func (n *plateNet) Close() error {
	return n.net.Close()
}

// PlateDetector finds food-bearing plates in a tray photo with a YOLOv5 ONNX network.
type PlateDetector struct {
	cache      *ai.ModelCache
	modelPath  string
	inputSize  int
	confidence float64
	nms        float64
	logger     *logger.Logger
	// forward passes on one gocv.Net are not safe to interleave
	mu sync.Mutex
}

// NewPlateDetector creates a detector. The network is loaded on the first Detect call.
func NewPlateDetector(config *config.Config, cache *ai.ModelCache, logger *logger.Logger) *PlateDetector {
	return &PlateDetector{
		cache:      cache,
		modelPath:  config.DetectorModelPath,
		inputSize:  config.DetectorInputSize,
		confidence: config.DetectorConfidence,
		nms:        config.DetectorNMS,
		logger:     logger,
	}
}

// initializeNet loads the DNN network and sets backend/target preferences.
func (d *PlateDetector) initializeNet() (*plateNet, error) {
	if _, err := os.Stat(d.modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", d.modelPath)
	}

	net := gocv.ReadNet(d.modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", d.modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	d.logger.Info("Plate detection network initialized from %s", d.modelPath)
	return &plateNet{net: net}, nil
}

// Detect runs the plate network on img and returns NMS-filtered detections in
// source image pixels.
func (d *PlateDetector) Detect(ctx context.Context, img image.Image) ([]ai.Detection, error) {
	pn, err := ai.LoadModel(d.cache, d.modelPath, d.initializeNet)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := matFromImage(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	size := image.Pt(d.inputSize, d.inputSize)
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	pn.net.SetInput(blob, "")
	output := pn.net.Forward("")
	d.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) < 2 {
		return nil, fmt.Errorf("unexpected detector output shape %v", dims)
	}
	rows, cols := dims[len(dims)-2], dims[len(dims)-1]

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detector output: %v", err)
	}

	bounds := img.Bounds()
	scaleX := float64(bounds.Dx()) / float64(d.inputSize)
	scaleY := float64(bounds.Dy()) / float64(d.inputSize)

	detections := ai.DecodeYOLOv5(data, rows, cols, scaleX, scaleY, d.confidence)
	detections = ai.NonMaxSuppression(detections, d.nms)

	d.logger.Info("Detected %d plates", len(detections))
	return detections, nil
}

// matFromImage converts img to a BGR Mat.
func matFromImage(img image.Image) (gocv.Mat, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return gocv.NewMat(), fmt.Errorf("image is empty")
	}

	buf := make([]byte, 0, w*h*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			buf = append(buf, byte(b>>8), byte(g>>8), byte(r>>8))
		}
	}

	view, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, buf)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create mat: %v", err)
	}
	defer view.Close()

	// view borrows buf; the clone owns its pixels
	return view.Clone(), nil
}
