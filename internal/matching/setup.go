package matching

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/mpr/internal/config"
)

// NewScorerFromConfig builds the configured scorer. The returned close func
// releases model resources and is never nil.
func NewScorerFromConfig(cfg config.MatchingConfig) (Scorer, func(), error) {
	switch cfg.Scorer {
	case "embedding":
		ort.SetSharedLibraryPath(onnxLibPath())
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, func() {}, fmt.Errorf("init onnx runtime: %w", err)
		}
		var detector *FaceDetector
		if cfg.FaceDetect {
			detPath := filepath.Join(cfg.ModelsDir, "det_10g.onnx")
			slog.Info("loading face detector", "path", detPath, "threshold", cfg.FaceThreshold)
			d, err := NewFaceDetector(detPath, float32(cfg.FaceThreshold))
			if err != nil {
				_ = ort.DestroyEnvironment()
				return nil, func() {}, fmt.Errorf("load face detector: %w", err)
			}
			detector = d
		}

		modelPath := filepath.Join(cfg.ModelsDir, "w600k_r50.onnx")
		slog.Info("loading embedding model", "path", modelPath)
		s, err := NewEmbeddingScorer(modelPath, detector)
		if err != nil {
			if detector != nil {
				detector.Close()
			}
			_ = ort.DestroyEnvironment()
			return nil, func() {}, fmt.Errorf("load embedding scorer: %w", err)
		}
		return s, func() {
			s.Close()
			_ = ort.DestroyEnvironment()
		}, nil
	case "", "heuristic":
		var noise Noise = NoNoise{}
		if cfg.Noise.NoiseEnabled() {
			noise = NewUniformNoise(cfg.Noise.Amplitude, cfg.Noise.Seed)
		}
		return NewHeuristicScorer(noise), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown scorer %q", cfg.Scorer)
	}
}

// PolicyFromConfig builds the ranking policy for the given mode name.
func PolicyFromConfig(cfg config.MatchingConfig, mode string) Policy {
	if Mode(mode) == ModeDual {
		return DualBand(cfg.HighThreshold, cfg.LowThreshold, cfg.TopK)
	}
	return SingleThreshold(cfg.Threshold, cfg.TopK)
}

// onnxLibPath returns the ONNX Runtime shared library name for this OS.
func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
