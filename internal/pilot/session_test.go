package pilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayusman/handpilot/internal/capture"
	"github.com/ayusman/handpilot/internal/control"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/display"
	"github.com/ayusman/handpilot/internal/gesture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gocv.io/x/gocv"
)

const (
	frameW = 480
	frameH = 360
)

func expectedSetpoint(hand detector.HandLandmarks) control.Setpoint {
	m := control.NewMapper(control.DefaultConfig(frameW, frameH))
	return m.Map(detector.BoundingBox(&hand, frameW, frameH))
}

func TestHandleHand_NoHand(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.SetAutonomous(true)
	before := len(h.vehicle.Calls())

	obs := h.session.handleHand(nil, frameW, frameH)

	assert.False(t, obs.Found)
	assert.Equal(t, gesture.PoseNone, obs.Pose)
	assert.Len(t, h.vehicle.Calls(), before, "no hand must not send anything")
}

func TestHandleHand_ManualModeDoesNotSend(t *testing.T) {
	h := newHarness(t, testConfig())
	hand := detector.OpenPalmLandmarks()

	obs := h.session.handleHand(&hand, frameW, frameH)

	assert.True(t, obs.Found)
	assert.False(t, obs.Sent)
	assert.Equal(t, gesture.PoseOpen, obs.Pose, "poses are classified in manual mode too")
	assert.True(t, obs.Setpoint.IsZero(), "no setpoint is computed in manual mode, got %s", obs.Setpoint)
	assert.Empty(t, h.vehicle.Calls())
}

func TestStatusLines_SetpointOnlyInAutonomousMode(t *testing.T) {
	h := newHarness(t, testConfig())
	hand := detector.Translate(detector.OpenPalmLandmarks(), 0.2, -0.2)

	manual := h.session.statusLines(h.session.handleHand(&hand, frameW, frameH))
	assert.Equal(t, []string{"mode: manual", "dropped: 0"}, manual)
	for _, line := range manual {
		assert.NotContains(t, line, "rc ")
	}

	h.session.autonomous.Store(true)
	auto := h.session.statusLines(h.session.handleHand(&hand, frameW, frameH))
	require.Len(t, auto, 2)
	assert.Equal(t, "mode: auto", auto[0])
	assert.Contains(t, auto[1], expectedSetpoint(hand).String())
}

func TestHandleHand_AutonomousSendsSetpoint(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.autonomous.Store(true)

	hand := detector.Translate(detector.OpenPalmLandmarks(), 0.2, -0.2)
	want := expectedSetpoint(hand)
	require.False(t, want.IsZero(), "offset hand should need a correction")

	obs := h.session.handleHand(&hand, frameW, frameH)

	assert.True(t, obs.Sent)
	assert.Equal(t, want, obs.Setpoint)
	assert.Equal(t, []string{want.String()}, h.vehicle.Calls())
	assert.Equal(t, detector.BoundingBox(&hand, frameW, frameH), obs.Box)
}

func TestHandleHand_SuppressedDuringManeuver(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.autonomous.Store(true)
	h.session.maneuvering.Store(true)
	defer h.session.maneuvering.Store(false)

	hand := detector.OpenPalmLandmarks()
	obs := h.session.handleHand(&hand, frameW, frameH)

	assert.False(t, obs.Sent)
	assert.Empty(t, h.vehicle.Calls())
}

func TestSetAutonomousOff_SendsZeroOnce(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.SetAutonomous(true)
	assert.Empty(t, h.vehicle.Calls())

	h.session.SetAutonomous(false)
	assert.False(t, h.session.Autonomous())
	assert.Equal(t, []string{"rc 0 0 0 0"}, h.vehicle.Calls())

	hand := detector.Translate(detector.OpenPalmLandmarks(), 0.2, 0)
	h.session.handleHand(&hand, frameW, frameH)
	assert.Equal(t, 1, h.vehicle.Count("rc 0 0 0 0"))
	assert.Len(t, h.vehicle.Calls(), 1, "mapping is suspended while manual")
}

func TestFlip_OneShot(t *testing.T) {
	cfg := testConfig()
	cfg.Flight.SettleDelay = time.Second
	h := newHarness(t, cfg)
	h.session.autonomous.Store(true)

	hand := detector.TwoFingerLandmarks()
	for i := 0; i < 5; i++ {
		obs := h.session.handleHand(&hand, frameW, frameH)
		assert.Equal(t, gesture.PoseTwoFinger, obs.Pose)
		assert.Equal(t, i == 0, obs.Flipped, "frame %d", i)
	}

	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond, "flip should be settling")
	assert.Equal(t, 1, h.vehicle.Count("flip b"))
	assert.True(t, h.session.flipping.Load())

	h.clock.Step(time.Second)
	require.Eventually(t, func() bool { return !h.session.flipping.Load() }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !h.session.maneuvering.Load() }, time.Second, time.Millisecond)

	obs := h.session.handleHand(&hand, frameW, frameH)
	assert.True(t, obs.Flipped, "flip can trigger again once the guard clears")
	require.Eventually(t, func() bool { return h.vehicle.Count("flip b") == 2 }, time.Second, time.Millisecond)

	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
	h.clock.Step(time.Second)
}

func TestFlip_FailureReleasesGuard(t *testing.T) {
	cfg := testConfig()
	cfg.Flight.SettleDelay = time.Second
	h := newHarness(t, cfg)
	h.session.autonomous.Store(true)
	h.vehicle.flipErr = errors.New("error Not joystick")

	hand := detector.TwoFingerLandmarks()
	h.session.handleHand(&hand, frameW, frameH)

	require.Eventually(t, h.clock.HasWaiters, time.Second, time.Millisecond)
	assert.True(t, h.session.flipping.Load(), "guard holds through the settle delay")

	h.clock.Step(time.Second)
	require.Eventually(t, func() bool { return !h.session.flipping.Load() }, time.Second, time.Millisecond)
}

func TestFlip_IgnoredInManualMode(t *testing.T) {
	h := newHarness(t, testConfig())

	hand := detector.TwoFingerLandmarks()
	obs := h.session.handleHand(&hand, frameW, frameH)

	assert.Equal(t, gesture.PoseTwoFinger, obs.Pose)
	assert.False(t, obs.Flipped)
	assert.False(t, h.session.flipping.Load())
	assert.Empty(t, h.vehicle.Calls())
}

func TestFlip_RefusedWhileManeuvering(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.autonomous.Store(true)
	h.session.maneuvering.Store(true)

	hand := detector.TwoFingerLandmarks()
	obs := h.session.handleHand(&hand, frameW, frameH)

	assert.False(t, obs.Flipped)
	assert.False(t, h.session.flipping.Load(), "refused flip must not hold the guard")
	h.session.maneuvering.Store(false)
}

func TestKeepalive(t *testing.T) {
	h := newHarness(t, testConfig())
	waitKeepalives := func(n int) {
		t.Helper()
		h.session.tasks.Wait()
		assert.Equal(t, n, h.vehicle.Count("keepalive"))
	}

	h.session.tickKeepalive()
	waitKeepalives(0)

	h.clock.Step(9 * time.Second)
	h.session.tickKeepalive()
	waitKeepalives(0)

	h.clock.Step(time.Second)
	h.session.tickKeepalive()
	h.session.tickKeepalive()
	waitKeepalives(1)

	h.clock.Step(5 * time.Second)
	h.session.tickKeepalive()
	waitKeepalives(1)

	h.clock.Step(5 * time.Second)
	h.session.tickKeepalive()
	waitKeepalives(2)
}

func TestKeepalive_IndependentOfMode(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.autonomous.Store(true)

	h.clock.Step(10 * time.Second)
	h.session.tickKeepalive()
	h.session.tasks.Wait()

	assert.Equal(t, 1, h.vehicle.Count("keepalive"))
}

func TestKeepalive_CommandsRestartInterval(t *testing.T) {
	h := newHarness(t, testConfig())

	h.clock.Step(9 * time.Second)
	h.session.SetAutonomous(false)

	h.clock.Step(5 * time.Second)
	h.session.tickKeepalive()
	h.session.tasks.Wait()
	assert.Zero(t, h.vehicle.Count("keepalive"))

	h.clock.Step(5 * time.Second)
	h.session.tickKeepalive()
	h.session.tasks.Wait()
	assert.Equal(t, 1, h.vehicle.Count("keepalive"))
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		key  int
		want string
	}{
		{KeyTakeoff, "takeoff"},
		{KeyLand, "land"},
		{KeyForward, "move forward 30"},
		{KeyBack, "move back 30"},
		{KeyLeft, "move left 30"},
		{KeyRight, "move right 30"},
		{KeyUp, "move up 30"},
		{KeyDown, "move down 30"},
		{KeyRotateCW, "rotate cw 30"},
		{KeyRotateCCW, "rotate ccw 30"},
		{KeyState, "state"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			h := newHarness(t, testConfig())

			assert.True(t, h.session.handleKey(tt.key))
			h.session.tasks.Wait()

			assert.Equal(t, []string{tt.want}, h.vehicle.Calls())
		})
	}
}

func TestHandleKey_Modes(t *testing.T) {
	h := newHarness(t, testConfig())

	assert.True(t, h.session.handleKey(KeyAutonomousOn))
	assert.True(t, h.session.Autonomous())

	assert.True(t, h.session.handleKey(KeyAutonomousOff))
	assert.False(t, h.session.Autonomous())
	assert.Equal(t, []string{"rc 0 0 0 0"}, h.vehicle.Calls())

	assert.True(t, h.session.handleKey(display.KeyNone))
	assert.True(t, h.session.handleKey('z'))
	assert.False(t, h.session.handleKey(KeyExit))
}

func TestManeuversAreSerialized(t *testing.T) {
	h := newHarness(t, testConfig())
	h.vehicle.block = make(chan struct{})

	h.session.handleKey(KeyTakeoff)
	require.Eventually(t, func() bool { return h.vehicle.Count("takeoff") == 1 }, time.Second, time.Millisecond)

	h.session.handleKey(KeyForward)
	assert.Zero(t, h.vehicle.Count("move forward 30"), "second maneuver is dropped while one is in flight")

	close(h.vehicle.block)
	h.session.tasks.Wait()

	h.session.handleKey(KeyForward)
	h.session.tasks.Wait()
	assert.Equal(t, []string{"takeoff", "move forward 30"}, h.vehicle.Calls())
}

func TestStop(t *testing.T) {
	h := newHarness(t, testConfig())
	h.session.SetAutonomous(true)

	h.session.Stop()
	h.session.Stop()

	assert.Equal(t, []string{"emergency", "battery", "streamoff", "close"}, h.vehicle.Calls())
	assert.True(t, h.display.Closed())
	assert.False(t, h.session.Autonomous())
	assert.False(t, h.source.IsOpen())
}

func newFrame(t *testing.T, w, h int) *gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), h, w, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return &m
}

func TestRun_ProcessesFramesUntilEscape(t *testing.T) {
	frame := newFrame(t, 2*frameW, 2*frameH)
	src := capture.NewMockSource([]*gocv.Mat{frame}, true)
	require.NoError(t, src.Open())

	h := newHarness(t, testConfig())
	h.source = src
	h.session = New(testConfig(), Deps{
		Vehicle:  h.vehicle,
		Source:   src,
		Detector: h.detector,
		Display:  h.display,
		Clock:    h.clock,
	})
	t.Cleanup(h.session.Stop)
	h.detector.SetHands(detector.OpenPalmLandmarks())

	// Keep the loop alive until at least one frame has been shown.
	h.display.exitKey = display.KeyNone
	done := make(chan error, 1)
	go func() { done <- h.session.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		h.display.mu.Lock()
		defer h.display.mu.Unlock()
		return h.display.shown > 0
	}, 5*time.Second, time.Millisecond)

	h.display.mu.Lock()
	h.display.exitKey = KeyExit
	h.display.mu.Unlock()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after escape")
	}
	assert.Positive(t, h.detector.Calls())
	assert.Positive(t, h.session.RelayStats().Frames)
}

func TestRun_StopsOnClosedWindow(t *testing.T) {
	h := newHarness(t, testConfig())
	h.display.closed = true

	assert.NoError(t, h.session.Run(context.Background()))
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, h.session.Run(ctx))
}

func TestPrepareFrame(t *testing.T) {
	src := newFrame(t, 2*frameW, 2*frameH)
	src.SetUCharAt(0, 0, 255)

	dst := gocv.NewMat()
	defer dst.Close()

	prepareFrame(*src, &dst, 0.5, true)

	assert.Equal(t, frameW, dst.Cols())
	assert.Equal(t, frameH, dst.Rows())
	assert.Positive(t, dst.GetVecbAt(0, frameW-1)[0], "mirroring moves the left edge to the right")
	assert.Zero(t, dst.GetVecbAt(0, 0)[0])

	same := gocv.NewMat()
	defer same.Close()
	prepareFrame(*src, &same, 1, false)
	assert.Equal(t, 2*frameW, same.Cols())
}

func TestDetect_FailuresWarnAtMostOncePerInterval(t *testing.T) {
	h := newHarness(t, testConfig())
	core, logs := observer.New(zapcore.DebugLevel)
	h.session.log = zap.New(core)

	h.detector.SetError(errors.New("service exited"))
	for i := 0; i < 3; i++ {
		assert.Nil(t, h.session.detect(nil))
	}
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "repeated failures warn once")
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.DebugLevel).Len())

	h.clock.Step(detectWarnEvery)
	h.session.detect(nil)
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.WarnLevel).Len(), "a persistent failure warns again after the interval")

	hand := detector.OpenPalmLandmarks()
	h.detector.SetError(nil)
	h.detector.SetHands(hand)
	require.NotNil(t, h.session.detect(nil))
	assert.Equal(t, 1, logs.FilterMessage("hand detection recovered").Len())
	assert.Zero(t, h.session.detectFailures)
}
