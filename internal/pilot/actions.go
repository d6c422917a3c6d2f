package pilot

import (
	"time"

	"github.com/ayusman/handpilot/internal/control"
	"github.com/ayusman/handpilot/internal/tello"
	"go.uber.org/zap"
)

// stampCommand records that a command was just issued.
func (s *Session) stampCommand() {
	s.lastCommand.Store(s.clock.Now().UnixNano())
}

// sendRC issues one continuous rc command and reports whether it was sent.
func (s *Session) sendRC(sp control.Setpoint) bool {
	s.stampCommand()
	if err := s.vehicle.SendRC(sp.LeftRight, sp.ForwardBack, sp.UpDown, sp.Yaw); err != nil {
		s.log.Warn("rc command failed", zap.Stringer("setpoint", sp), zap.Error(err))
		return false
	}
	return true
}

// tickKeepalive issues a background keepalive when no command has been sent
// for the keepalive interval. The interval restarts when the keepalive is
// issued, not when it completes.
func (s *Session) tickKeepalive() {
	now := s.clock.Now()
	last := time.Unix(0, s.lastCommand.Load())
	if now.Sub(last) < s.cfg.Flight.KeepaliveInterval {
		return
	}
	s.lastCommand.Store(now.UnixNano())

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		if err := s.vehicle.Keepalive(); err != nil {
			s.log.Warn("keepalive failed", zap.Error(err))
		}
	}()
}

// dispatch runs a discrete maneuver in the background. Maneuvers are
// serialized: a request made while another is in flight is dropped and
// dispatch returns false. Continuous rc is suppressed until the maneuver and
// its settle delay finish. done, if set, runs when the maneuver is over,
// whether it failed or not.
func (s *Session) dispatch(name string, run func() error, done func()) bool {
	if !s.maneuvering.CompareAndSwap(false, true) {
		s.log.Info("maneuver already in flight, ignoring", zap.String("maneuver", name))
		return false
	}
	s.stampCommand()

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer s.maneuvering.Store(false)
		if done != nil {
			defer done()
		}

		s.log.Info("maneuver started", zap.String("maneuver", name))
		if err := run(); err != nil {
			s.log.Warn("maneuver failed", zap.String("maneuver", name), zap.Error(err))
		} else {
			s.log.Info("maneuver finished", zap.String("maneuver", name))
		}

		if d := s.cfg.Flight.SettleDelay; d > 0 {
			<-s.clock.After(d)
		}
	}()
	return true
}

// triggerFlip starts the flip unless one is already in progress. The guard
// is released once the flip and its settle delay are over, even on failure.
func (s *Session) triggerFlip() bool {
	if !s.flipping.CompareAndSwap(false, true) {
		return false
	}

	dir := tello.FlipDirection(s.cfg.Flight.Flip)
	ok := s.dispatch("flip "+string(dir),
		func() error { return s.vehicle.Flip(dir) },
		func() { s.flipping.Store(false) })
	if !ok {
		s.flipping.Store(false)
	}
	return ok
}

func (s *Session) move(dir tello.Direction) {
	cm := s.cfg.Flight.StepCM
	s.dispatch(string(dir), func() error { return s.vehicle.Move(dir, cm) }, nil)
}

func (s *Session) rotate(rot tello.Rotation) {
	deg := s.cfg.Flight.RotateDeg
	s.dispatch(string(rot), func() error { return s.vehicle.Rotate(rot, deg) }, nil)
}
