package pilot

import (
	"github.com/ayusman/handpilot/internal/display"
	"github.com/ayusman/handpilot/internal/tello"
	"go.uber.org/zap"
)

// Keyboard commands.
const (
	KeyTakeoff       = 't'
	KeyLand          = 'l'
	KeyForward       = 'w'
	KeyBack          = 's'
	KeyLeft          = 'a'
	KeyRight         = 'd'
	KeyRotateCW      = 'e'
	KeyRotateCCW     = 'q'
	KeyUp            = 'r'
	KeyDown          = 'f'
	KeyState         = 'p'
	KeyAutonomousOn  = '1'
	KeyAutonomousOff = '0'
	KeyExit          = display.KeyEscape
)

// handleKey runs the command bound to key and reports whether the session
// continues.
func (s *Session) handleKey(key int) bool {
	switch key {
	case display.KeyNone:
	case KeyExit:
		s.log.Info("exit requested")
		return false
	case KeyTakeoff:
		s.dispatch("takeoff", s.vehicle.Takeoff, nil)
	case KeyLand:
		s.dispatch("land", s.vehicle.Land, nil)
	case KeyForward:
		s.move(tello.Forward)
	case KeyBack:
		s.move(tello.Back)
	case KeyLeft:
		s.move(tello.Left)
	case KeyRight:
		s.move(tello.Right)
	case KeyUp:
		s.move(tello.Up)
	case KeyDown:
		s.move(tello.Down)
	case KeyRotateCW:
		s.rotate(tello.Clockwise)
	case KeyRotateCCW:
		s.rotate(tello.CounterClockwise)
	case KeyState:
		s.vehicle.LogState()
	case KeyAutonomousOn:
		s.SetAutonomous(true)
	case KeyAutonomousOff:
		s.SetAutonomous(false)
	default:
		s.log.Debug("unbound key", zap.Int("key", key))
	}
	return true
}
