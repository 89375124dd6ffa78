package overlay

import (
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"detection-demo/internal/vision"
)

const (
	outlineThickness = 2
	chipHeight       = 16
	chipPadding      = 4
)

// Render scales the image to width x height and draws the prediction overlay
// on top of it.
func Render(base image.Image, width, height int, preds []vision.Prediction) *image.NRGBA {
	canvas := imaging.Resize(base, width, height, imaging.Linear)
	for _, ins := range Layout(width, height, preds) {
		c := LabelColor(ins.Label)
		drawOutline(canvas, ins, c)
		drawChip(canvas, ins, c)
	}
	return canvas
}

// LabelColor returns a deterministic, saturated color for a label so the same
// class is always boxed in the same color.
func LabelColor(label string) color.NRGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	r, g, b := colorful.Hsv(hue, 0.75, 0.95).RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func drawOutline(dst *image.NRGBA, ins Instruction, c color.NRGBA) {
	rect := image.Rect(ins.X, ins.Y, ins.X+ins.Width, ins.Y+ins.Height).Intersect(dst.Bounds())
	if rect.Empty() {
		return
	}
	for t := 0; t < outlineThickness; t++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setClamped(dst, x, rect.Min.Y+t, c)
			setClamped(dst, x, rect.Max.Y-1-t, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setClamped(dst, rect.Min.X+t, y, c)
			setClamped(dst, rect.Max.X-1-t, y, c)
		}
	}
}

func drawChip(dst *image.NRGBA, ins Instruction, c color.NRGBA) {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, ins.Text).Ceil()

	chipY := ins.ChipY
	if chipY < 0 {
		chipY = 0
	}
	chip := image.Rect(ins.ChipX, chipY, ins.ChipX+textWidth+2*chipPadding, chipY+chipHeight)
	draw.Draw(dst, chip.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
		Dot:  fixed.P(ins.ChipX+chipPadding, chipY+chipHeight-chipPadding),
	}
	drawer.DrawString(ins.Text)
}

func setClamped(dst *image.NRGBA, x, y int, c color.NRGBA) {
	if image.Pt(x, y).In(dst.Bounds()) {
		dst.SetNRGBA(x, y, c)
	}
}
