package tello

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Direction is a linear move direction.
type Direction string

const (
	Forward Direction = "forward"
	Back    Direction = "back"
	Left    Direction = "left"
	Right   Direction = "right"
	Up      Direction = "up"
	Down    Direction = "down"
)

// Rotation is a yaw direction.
type Rotation string

const (
	Clockwise        Rotation = "cw"
	CounterClockwise Rotation = "ccw"
)

// FlipDirection is the direction of a flip maneuver.
type FlipDirection string

const (
	FlipLeft    FlipDirection = "l"
	FlipRight   FlipDirection = "r"
	FlipForward FlipDirection = "f"
	FlipBack    FlipDirection = "b"
)

// Limits accepted by the SDK.
const (
	MinMoveCM    = 20
	MaxMoveCM    = 500
	MinRotateDeg = 1
	MaxRotateDeg = 360
	MaxRC        = 100
)

// StreamOn starts the video stream on the video port.
func (c *Client) StreamOn() error { return c.sendControl("streamon") }

// StreamOff stops the video stream.
func (c *Client) StreamOff() error { return c.sendControl("streamoff") }

// Takeoff blocks until the drone reports it is hovering.
func (c *Client) Takeoff() error { return c.sendControl("takeoff") }

// Land blocks until the drone reports it has landed.
func (c *Client) Land() error { return c.sendControl("land") }

// Emergency cuts the motors immediately. The drone does not reply.
func (c *Client) Emergency() error { return c.sendNoReply("emergency") }

// Move flies cm centimetres in dir.
func (c *Client) Move(dir Direction, cm int) error {
	switch dir {
	case Forward, Back, Left, Right, Up, Down:
	default:
		return fmt.Errorf("%w: direction %q", ErrOutOfRange, dir)
	}
	if cm < MinMoveCM || cm > MaxMoveCM {
		return fmt.Errorf("%w: distance %d cm", ErrOutOfRange, cm)
	}
	return c.sendControl(fmt.Sprintf("%s %d", dir, cm))
}

// Rotate turns deg degrees in rot.
func (c *Client) Rotate(rot Rotation, deg int) error {
	if rot != Clockwise && rot != CounterClockwise {
		return fmt.Errorf("%w: rotation %q", ErrOutOfRange, rot)
	}
	if deg < MinRotateDeg || deg > MaxRotateDeg {
		return fmt.Errorf("%w: angle %d", ErrOutOfRange, deg)
	}
	return c.sendControl(fmt.Sprintf("%s %d", rot, deg))
}

// Flip performs a flip in dir.
func (c *Client) Flip(dir FlipDirection) error {
	switch dir {
	case FlipLeft, FlipRight, FlipForward, FlipBack:
	default:
		return fmt.Errorf("%w: flip %q", ErrOutOfRange, dir)
	}
	return c.sendControl("flip " + string(dir))
}

// SendRC sets the four stick channels. Values are clamped to [-100, 100].
// The drone does not reply to rc commands.
func (c *Client) SendRC(leftRight, forwardBack, upDown, yaw int) error {
	return c.sendNoReply(fmt.Sprintf("rc %d %d %d %d",
		clampRC(leftRight), clampRC(forwardBack), clampRC(upDown), clampRC(yaw)))
}

// Keepalive resets the drone's auto-land timer. It waits for the reply so
// that the drone's "ok" is never taken as the answer to another command.
func (c *Client) Keepalive() error { return c.sendControl("command") }

// Battery returns the battery percentage, taken from the latest state packet
// when one has arrived and queried otherwise.
func (c *Client) Battery() (int, error) {
	c.stateMu.RLock()
	bat, ok := c.state["bat"]
	c.stateMu.RUnlock()

	if !ok {
		resp, err := c.sendCommand("battery?")
		if err != nil {
			return 0, err
		}
		bat = resp
	}

	pct, err := strconv.Atoi(bat)
	if err != nil {
		return 0, fmt.Errorf("parse battery %q: %w", bat, err)
	}
	return pct, nil
}

// State returns a copy of the latest state packet. It is empty until the
// first packet arrives.
func (c *Client) State() map[string]string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	out := make(map[string]string, len(c.state))
	for k, v := range c.state {
		out[k] = v
	}
	return out
}

// LogState writes the latest state packet to the logger.
func (c *Client) LogState() {
	state := c.State()
	fields := make([]zap.Field, 0, len(state))
	for k, v := range state {
		fields = append(fields, zap.String(k, v))
	}
	c.log.Info("drone state", fields...)
}

func clampRC(v int) int {
	if v > MaxRC {
		return MaxRC
	}
	if v < -MaxRC {
		return -MaxRC
	}
	return v
}
