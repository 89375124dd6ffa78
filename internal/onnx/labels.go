package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// cocoLabels is the default label set, matching models trained on COCO.
var cocoLabels = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag",
	"tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite",
	"baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot",
	"hot dog", "pizza", "donut", "cake", "chair", "couch", "potted plant",
	"bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote",
	"keyboard", "cell phone", "microwave", "oven", "toaster", "sink",
	"refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// loadLabels returns the label set for a model: <modelID>.labels.json in the
// model directory when present, the built-in COCO labels otherwise.
func loadLabels(modelDir, modelID string) ([]string, error) {
	path := filepath.Join(modelDir, modelID+".labels.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cocoLabels, nil
		}
		return nil, fmt.Errorf("read labels for %q: %w", modelID, err)
	}

	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("%s contains no labels", filepath.Base(path))
	}
	return labels, nil
}
