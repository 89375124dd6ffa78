package onnx

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"

	"detection-demo/internal/vision"
)

const (
	// InputWidth and InputHeight are the fixed model input dimensions.
	InputWidth  = 640
	InputHeight = 640

	// numAnchors is the candidate count a YOLOv8-style head emits at 640x640.
	numAnchors = 8400

	// iouThreshold controls duplicate-box suppression.
	iouThreshold = 0.45
)

type modelSession struct {
	// The underlying session reuses one pre-allocated tensor pair, so runs
	// must not interleave, and teardown must not interleave with a run.
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
}

func (s *modelSession) Detect(ctx context.Context, img image.Image, threshold float32) ([]vision.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
	writeCHW(resized, s.input.GetData())

	if err := s.session.Run(); err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}

	return decodePredictions(s.output.GetData(), s.labels, threshold)
}

func (s *modelSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	return nil
}
