package vision

import "math"

// Box is a bounding box with coordinates normalized to [0,1] relative to the
// dimensions of the image it was computed against.
type Box struct {
	XMin float32 `json:"xmin"`
	YMin float32 `json:"ymin"`
	XMax float32 `json:"xmax"`
	YMax float32 `json:"ymax"`
}

// Prediction is a single detected object. Predictions are produced as an
// ordered sequence (descending score) by one inference call and are always
// replaced wholesale, never merged.
type Prediction struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
	Box   Box     `json:"box"`
}

// Percent returns the score as a rounded integer percentage.
func (p Prediction) Percent() int {
	return int(math.Round(float64(p.Score) * 100))
}
