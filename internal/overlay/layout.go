// Package overlay maps normalized bounding boxes onto display pixels and
// rasterizes labeled rectangles over the image.
package overlay

import (
	"fmt"
	"math"

	"detection-demo/internal/vision"
)

// ChipOffset is how far above a rectangle's top edge its label chip sits.
const ChipOffset = 25

// Instruction is one rectangle plus its label chip, in display pixels.
type Instruction struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	ChipX  int    `json:"chip_x"`
	ChipY  int    `json:"chip_y"`
	Label  string `json:"label"`
	Text   string `json:"text"`
}

// ChipText formats the label chip contents, e.g. "cat 90%".
func ChipText(p vision.Prediction) string {
	return fmt.Sprintf("%s %d%%", p.Label, p.Percent())
}

// Layout converts predictions into drawing instructions for an image rendered
// at width x height pixels. It is pure: callers re-invoke it whenever the
// predictions or the rendered size change.
func Layout(width, height int, preds []vision.Prediction) []Instruction {
	instructions := make([]Instruction, 0, len(preds))
	for _, p := range preds {
		x := roundPx(float64(p.Box.XMin) * float64(width))
		y := roundPx(float64(p.Box.YMin) * float64(height))
		w := roundPx(float64(p.Box.XMax-p.Box.XMin) * float64(width))
		h := roundPx(float64(p.Box.YMax-p.Box.YMin) * float64(height))

		instructions = append(instructions, Instruction{
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
			ChipX:  x,
			ChipY:  y - ChipOffset,
			Label:  p.Label,
			Text:   ChipText(p),
		})
	}
	return instructions
}

func roundPx(v float64) int {
	return int(math.Round(v))
}
