package display

import (
	"image"
	"testing"

	"github.com/ayusman/handpilot/internal/detector"
	"gocv.io/x/gocv"
)

func blankFrame(t *testing.T) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 360, 480, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return img
}

func TestDrawBox(t *testing.T) {
	img := blankFrame(t)

	box := image.Rect(100, 80, 200, 160)
	DrawBox(&img, box)

	// Mats are BGR, so green is channel 1.
	px := img.GetVecbAt(box.Min.Y, box.Min.X)
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Errorf("box corner = %v, want pure green", px)
	}

	inside := img.GetVecbAt(120, 150)
	if inside[0] != 0 || inside[1] != 0 || inside[2] != 0 {
		t.Errorf("box interior = %v, want untouched", inside)
	}
}

func TestDrawBox_EmptyRectangle(t *testing.T) {
	img := blankFrame(t)

	DrawBox(&img, image.Rectangle{})

	if gocv.CountNonZero(grey(t, img)) != 0 {
		t.Error("empty rectangle should draw nothing")
	}
}

func TestDrawHand(t *testing.T) {
	img := blankFrame(t)
	hand := detector.OpenPalmLandmarks()

	DrawHand(&img, &hand)

	if gocv.CountNonZero(grey(t, img)) == 0 {
		t.Fatal("skeleton should mark the frame")
	}

	wrist := hand.Pixel(detector.Wrist, img.Cols(), img.Rows())
	px := img.GetVecbAt(wrist.Y, wrist.X)
	if px[2] != 255 {
		t.Errorf("wrist joint = %v, want red", px)
	}
}

func TestDrawHand_Nil(t *testing.T) {
	img := blankFrame(t)

	DrawHand(&img, nil)
	DrawHand(nil, nil)

	if gocv.CountNonZero(grey(t, img)) != 0 {
		t.Error("nil hand should draw nothing")
	}
}

func TestDrawLabelAndStatus(t *testing.T) {
	img := blankFrame(t)

	DrawLabel(&img, "open")
	DrawStatus(&img, "auto: on", "bat: 80%")

	if gocv.CountNonZero(grey(t, img)) == 0 {
		t.Error("text should mark the frame")
	}

	empty := blankFrame(t)
	DrawLabel(&empty, "")
	if gocv.CountNonZero(grey(t, empty)) != 0 {
		t.Error("empty label should draw nothing")
	}
}

func grey(t *testing.T, img gocv.Mat) gocv.Mat {
	t.Helper()
	g := gocv.NewMat()
	t.Cleanup(func() { g.Close() })
	gocv.CvtColor(img, &g, gocv.ColorBGRToGray)
	return g
}
