// Package capture reads video frames from the drone's stream using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultStreamURL is where the Tello pushes its H.264 stream after streamon.
const DefaultStreamURL = "udp://0.0.0.0:11111"

var (
	// ErrSourceNotOpen is returned when reading from a source that is not open.
	ErrSourceNotOpen = errors.New("video source is not open")

	// ErrEmptyFrame is returned when the decoder produced no image.
	ErrEmptyFrame = errors.New("captured frame is empty")
)

// Source is a blocking video frame source.
type Source interface {
	Open() error
	Close() error
	// ReadFrame blocks until the next frame is decoded. The caller owns the
	// returned Mat and must Close it.
	ReadFrame() (*gocv.Mat, error)
	// Size is the native frame size, or the zero point before Open.
	Size() image.Point
	IsOpen() bool
}

// stream wraps a gocv VideoCapture on a network URL.
type stream struct {
	url     string
	capture *gocv.VideoCapture
	mu      sync.Mutex
	size    image.Point
	running bool
}

// NewStream creates a Source reading from url.
func NewStream(url string) Source {
	if url == "" {
		url = DefaultStreamURL
	}
	return &stream{url: url}
}

// Open opens the stream with a one-frame internal buffer so reads return the
// most recent capture rather than a backlog.
func (s *stream) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(s.url)
	if err != nil {
		return fmt.Errorf("open video stream %s: %w", s.url, err)
	}

	capture.Set(gocv.VideoCaptureBufferSize, 1)

	s.size = image.Point{
		X: int(capture.Get(gocv.VideoCaptureFrameWidth)),
		Y: int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}
	s.capture = capture
	s.running = true

	return nil
}

// Close releases the capture device.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		s.running = false
		return nil
	}

	err := s.capture.Close()
	s.capture = nil
	s.running = false

	return err
}

// ReadFrame decodes the next frame. It holds the source lock while decoding,
// so Close waits for an in-flight read.
func (s *stream) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	if ok := s.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from stream")
	}

	if mat.Empty() {
		mat.Close()
		return nil, ErrEmptyFrame
	}

	return &mat, nil
}

// Size returns the stream's native frame size.
func (s *stream) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// IsOpen reports whether the stream is open.
func (s *stream) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}
