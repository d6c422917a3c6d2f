// Package pilot runs a flight session: it relays video frames, follows the
// operator's hand, reacts to poses and keys, and keeps the link alive.
package pilot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/handpilot/internal/capture"
	"github.com/ayusman/handpilot/internal/config"
	"github.com/ayusman/handpilot/internal/control"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/gesture"
	"github.com/ayusman/handpilot/internal/logging"
	"github.com/ayusman/handpilot/internal/relay"
	"github.com/ayusman/handpilot/internal/tello"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"k8s.io/utils/clock"
)

// Vehicle is the drone command channel. *tello.Client satisfies it.
type Vehicle interface {
	Takeoff() error
	Land() error
	Emergency() error
	Move(dir tello.Direction, cm int) error
	Rotate(rot tello.Rotation, deg int) error
	Flip(dir tello.FlipDirection) error
	SendRC(leftRight, forwardBack, upDown, yaw int) error
	Keepalive() error
	StreamOff() error
	Battery() (int, error)
	LogState()
	Close() error
}

// Display shows frames and reads keys. *display.Window satisfies it.
type Display interface {
	Show(img *gocv.Mat)
	PollKey() int
	Closed() bool
	Close() error
}

// Deps are the collaborators of a Session.
type Deps struct {
	Vehicle  Vehicle
	Source   capture.Source
	Detector detector.Detector
	Display  Display
	// Clock defaults to the real clock.
	Clock clock.Clock
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Session is one flight. Run and Stop must be called from the goroutine that
// owns the display.
type Session struct {
	id       uuid.UUID
	cfg      config.Config
	vehicle  Vehicle
	source   capture.Source
	detector detector.Detector
	display  Display
	clock    clock.Clock
	log      *zap.Logger
	relay    *relay.Relay[*gocv.Mat]

	mapper     *control.Mapper
	mapperSize [2]int

	autonomous  atomic.Bool
	maneuvering atomic.Bool
	flipping    atomic.Bool
	lastCommand atomic.Int64

	lastPose gesture.Pose

	detectFailures int
	lastDetectWarn time.Time

	tasks    sync.WaitGroup
	stopOnce sync.Once
}

// New creates a session. The source must already be open.
func New(cfg config.Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	id := uuid.New()
	log := logging.OrNop(deps.Logger).With(zap.String("session", id.String()))

	s := &Session{
		id:       id,
		cfg:      cfg,
		vehicle:  deps.Vehicle,
		source:   deps.Source,
		detector: deps.Detector,
		display:  deps.Display,
		clock:    deps.Clock,
		log:      log,
	}
	s.relay = relay.New(relay.ReadFunc[*gocv.Mat](deps.Source.ReadFrame), closeMat, log)
	s.autonomous.Store(cfg.Flight.Autonomous)
	s.stampCommand()
	return s
}

func closeMat(m *gocv.Mat) {
	if m != nil {
		m.Close()
	}
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Autonomous reports whether hand following is enabled.
func (s *Session) Autonomous() bool { return s.autonomous.Load() }

// SetAutonomous enables or disables hand following. Disabling it sends one
// all-zero rc command so the drone stops following.
func (s *Session) SetAutonomous(on bool) {
	was := s.autonomous.Swap(on)
	if !on {
		s.sendRC(control.Setpoint{})
	}
	if was != on {
		s.log.Info("autonomous mode changed", zap.Bool("autonomous", on))
	}
}

// RelayStats reports the frame relay counters.
func (s *Session) RelayStats() relay.Stats { return s.relay.Stats() }

// Run processes frames and keys until ctx is cancelled, the operator exits,
// or the window is closed. It does not call Stop.
func (s *Session) Run(ctx context.Context) error {
	s.relay.Start()
	s.log.Info("session started", zap.Bool("autonomous", s.Autonomous()))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("session interrupted")
			return nil
		default:
		}

		if !s.step() {
			return nil
		}
	}
}

// step runs one loop iteration and reports whether the session continues.
func (s *Session) step() bool {
	if frame, ok := s.relay.Latest(); ok {
		s.processFrame(frame)
		closeMat(frame)
	}

	key := s.display.PollKey()
	if s.display.Closed() {
		s.log.Info("window closed")
		return false
	}
	if !s.handleKey(key) {
		return false
	}

	s.tickKeepalive()
	return true
}

// Stop lands the session: it stops all motion, reports the battery, stops the
// relay, waits for background maneuvers and releases every collaborator. It is
// safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.autonomous.Store(false)

		if err := s.vehicle.Emergency(); err != nil {
			s.log.Warn("emergency stop failed", zap.Error(err))
		}
		if bat, err := s.vehicle.Battery(); err != nil {
			s.log.Warn("battery query failed", zap.Error(err))
		} else {
			s.log.Info("battery", zap.Int("percent", bat))
		}

		s.relay.Stop()
		s.relay.Slot().Close()
		s.tasks.Wait()

		if err := s.display.Close(); err != nil {
			s.log.Warn("close window", zap.Error(err))
		}
		if err := s.vehicle.StreamOff(); err != nil {
			s.log.Warn("stream off failed", zap.Error(err))
		}
		if err := s.source.Close(); err != nil {
			s.log.Warn("close video source", zap.Error(err))
		}
		if err := s.detector.Close(); err != nil {
			s.log.Warn("close detector", zap.Error(err))
		}
		if err := s.vehicle.Close(); err != nil {
			s.log.Warn("end drone session", zap.Error(err))
		}

		st := s.relay.Stats()
		s.log.Info("session stopped",
			zap.Uint64("frames", st.Frames),
			zap.Uint64("read_failures", st.Failures),
			zap.Uint64("dropped", st.Drops))
	})
}
