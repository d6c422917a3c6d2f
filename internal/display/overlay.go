package display

import (
	"image"
	"image/color"

	"github.com/ayusman/handpilot/internal/detector"
	"gocv.io/x/gocv"
)

var (
	Green  = color.RGBA{G: 255, A: 255}
	Red    = color.RGBA{R: 255, A: 255}
	White  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Yellow = color.RGBA{R: 255, G: 255, A: 255}
)

// LabelOrigin is where the pose label is drawn.
var LabelOrigin = image.Pt(10, 50)

const (
	boxThickness  = 2
	boneThickness = 2
	jointRadius   = 3
	statusLine    = 22
)

// DrawHand draws the hand skeleton in pixel coordinates of img.
func DrawHand(img *gocv.Mat, hand *detector.HandLandmarks) {
	if hand == nil || img == nil || img.Empty() {
		return
	}
	w, h := img.Cols(), img.Rows()

	for _, c := range detector.HandConnections {
		gocv.Line(img, hand.Pixel(c[0], w, h), hand.Pixel(c[1], w, h), White, boneThickness)
	}
	for i := 0; i < detector.NumLandmarks; i++ {
		gocv.Circle(img, hand.Pixel(i, w, h), jointRadius, Red, -1)
	}
}

// DrawBox outlines the hand bounding box.
func DrawBox(img *gocv.Mat, box image.Rectangle) {
	if img == nil || img.Empty() || box == (image.Rectangle{}) {
		return
	}
	gocv.Rectangle(img, box, Green, boxThickness)
}

// DrawLabel writes text near the top-left corner.
func DrawLabel(img *gocv.Mat, text string) {
	if img == nil || img.Empty() || text == "" {
		return
	}
	gocv.PutText(img, text, LabelOrigin, gocv.FontHersheySimplex, 1, Green, 2)
}

// DrawStatus writes lines upward from the bottom-left corner.
func DrawStatus(img *gocv.Mat, lines ...string) {
	if img == nil || img.Empty() {
		return
	}
	y := img.Rows() - 10
	for i := len(lines) - 1; i >= 0; i-- {
		gocv.PutText(img, lines[i], image.Pt(10, y), gocv.FontHersheySimplex, 0.6, Yellow, 1)
		y -= statusLine
	}
}
