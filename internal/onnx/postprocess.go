package onnx

import (
	"fmt"
	"sort"

	"detection-demo/internal/vision"
)

// decodePredictions converts a raw YOLO-style output tensor into normalized
// predictions. The tensor is planar: 4 box rows (cx, cy, w, h in input
// pixels) followed by one score row per label, each of anchor length.
func decodePredictions(data []float32, labels []string, threshold float32) ([]vision.Prediction, error) {
	stride := 4 + len(labels)
	if len(labels) == 0 || len(data) == 0 || len(data)%stride != 0 {
		return nil, fmt.Errorf("unexpected output length %d for %d labels", len(data), len(labels))
	}
	anchors := len(data) / stride

	preds := make([]vision.Prediction, 0, 32)
	for i := 0; i < anchors; i++ {
		bestClass := -1
		var bestScore float32
		for c := 0; c < len(labels); c++ {
			if score := data[(4+c)*anchors+i]; score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestClass < 0 || bestScore < threshold {
			continue
		}

		cx := data[i]
		cy := data[anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		preds = append(preds, vision.Prediction{
			Label: labels[bestClass],
			Score: bestScore,
			Box: vision.Box{
				XMin: clamp01((cx - w/2) / InputWidth),
				YMin: clamp01((cy - h/2) / InputHeight),
				XMax: clamp01((cx + w/2) / InputWidth),
				YMax: clamp01((cy + h/2) / InputHeight),
			},
		})
	}

	sort.SliceStable(preds, func(i, j int) bool {
		return preds[i].Score > preds[j].Score
	})

	return suppressOverlaps(preds, iouThreshold), nil
}

// suppressOverlaps keeps the highest-scoring box among same-label boxes whose
// overlap exceeds iouLimit. Input must be sorted by descending score.
func suppressOverlaps(preds []vision.Prediction, iouLimit float32) []vision.Prediction {
	kept := make([]vision.Prediction, 0, len(preds))
	for _, p := range preds {
		suppressed := false
		for _, k := range kept {
			if k.Label == p.Label && iou(p.Box, k.Box) > iouLimit {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, p)
		}
	}
	return kept
}

func iou(a, b vision.Box) float32 {
	x1 := maxF(a.XMin, b.XMin)
	y1 := maxF(a.YMin, b.YMin)
	x2 := minF(a.XMax, b.XMax)
	y2 := minF(a.YMax, b.YMax)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	areaA := (a.XMax - a.XMin) * (a.YMax - a.YMin)
	areaB := (b.XMax - b.XMin) * (b.YMax - b.YMin)
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
