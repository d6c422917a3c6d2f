package pilot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/handpilot/internal/capture"
	"github.com/ayusman/handpilot/internal/config"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/display"
	"github.com/ayusman/handpilot/internal/tello"
	"gocv.io/x/gocv"
	testclock "k8s.io/utils/clock/testing"
)

// fakeVehicle records every command it receives.
type fakeVehicle struct {
	mu      sync.Mutex
	calls   []string
	flipErr error
	battery int

	// block, when set, holds Takeoff until it is closed.
	block chan struct{}
}

func (v *fakeVehicle) record(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, fmt.Sprintf(format, args...))
}

func (v *fakeVehicle) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

func (v *fakeVehicle) Count(call string) int {
	n := 0
	for _, c := range v.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (v *fakeVehicle) Takeoff() error {
	v.record("takeoff")
	if v.block != nil {
		<-v.block
	}
	return nil
}

func (v *fakeVehicle) Land() error      { v.record("land"); return nil }
func (v *fakeVehicle) Emergency() error { v.record("emergency"); return nil }

func (v *fakeVehicle) Move(dir tello.Direction, cm int) error {
	v.record("move %s %d", dir, cm)
	return nil
}

func (v *fakeVehicle) Rotate(rot tello.Rotation, deg int) error {
	v.record("rotate %s %d", rot, deg)
	return nil
}

func (v *fakeVehicle) Flip(dir tello.FlipDirection) error {
	v.record("flip %s", dir)
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flipErr
}

func (v *fakeVehicle) SendRC(lr, fb, ud, yaw int) error {
	v.record("rc %d %d %d %d", lr, fb, ud, yaw)
	return nil
}

func (v *fakeVehicle) Keepalive() error { v.record("keepalive"); return nil }
func (v *fakeVehicle) StreamOff() error { v.record("streamoff"); return nil }

func (v *fakeVehicle) Battery() (int, error) {
	v.record("battery")
	return v.battery, nil
}

func (v *fakeVehicle) LogState()    { v.record("state") }
func (v *fakeVehicle) Close() error { v.record("close"); return nil }

// fakeDisplay replays a key sequence and then reports exitKey forever.
type fakeDisplay struct {
	mu      sync.Mutex
	keys    []int
	exitKey int
	closed  bool
	shown   int
}

func (d *fakeDisplay) Show(img *gocv.Mat) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shown++
}

func (d *fakeDisplay) PollKey() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.keys) == 0 {
		return d.exitKey
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDisplay) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

type harness struct {
	session  *Session
	vehicle  *fakeVehicle
	display  *fakeDisplay
	detector *detector.MockDetector
	source   *capture.MockSource
	clock    *testclock.FakeClock
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Flight.SettleDelay = 0
	return cfg
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	h := &harness{
		vehicle:  &fakeVehicle{battery: 80},
		display:  &fakeDisplay{exitKey: display.KeyNone},
		detector: detector.NewMockDetector(),
		source:   capture.NewMockSource(nil, false),
		clock:    testclock.NewFakeClock(time.Now()),
	}
	h.session = New(cfg, Deps{
		Vehicle:  h.vehicle,
		Source:   h.source,
		Detector: h.detector,
		Display:  h.display,
		Clock:    h.clock,
	})
	t.Cleanup(h.session.Stop)
	return h
}
