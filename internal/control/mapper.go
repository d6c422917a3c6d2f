// Package control turns a hand's bounding box into bounded rc setpoints.
package control

import (
	"fmt"
	"image"
	"math"
)

// Defaults for the hand-follow controller.
const (
	DefaultReferenceWidth   = 80
	DefaultYawGain          = 0.3
	DefaultVerticalGain     = 0.3
	DefaultForwardGain      = 0.4
	DefaultYawDeadZone      = 20.0
	DefaultVerticalDeadZone = 30.0
	DefaultForwardDeadZone  = 10.0
	DefaultLimit            = 100
)

// Setpoint is one rc command: left/right, forward/back, up/down and yaw, each
// in [-Limit, Limit].
type Setpoint struct {
	LeftRight   int
	ForwardBack int
	UpDown      int
	Yaw         int
}

// IsZero reports whether every axis is zero.
func (s Setpoint) IsZero() bool {
	return s == Setpoint{}
}

func (s Setpoint) String() string {
	return fmt.Sprintf("rc %d %d %d %d", s.LeftRight, s.ForwardBack, s.UpDown, s.Yaw)
}

// Config holds the target, gains, dead zones and limit of the controller.
type Config struct {
	TargetX        int     `yaml:"target_x"`
	TargetY        int     `yaml:"target_y"`
	ReferenceWidth int     `yaml:"reference_width"`
	YawGain        float64 `yaml:"yaw_gain"`
	VerticalGain   float64 `yaml:"vertical_gain"`
	ForwardGain    float64 `yaml:"forward_gain"`

	YawDeadZone      float64 `yaml:"yaw_dead_zone"`
	VerticalDeadZone float64 `yaml:"vertical_dead_zone"`
	ForwardDeadZone  float64 `yaml:"forward_dead_zone"`

	Limit int `yaml:"limit"`
}

// DefaultConfig returns the default controller targeting the centre of a
// frame of the given size.
func DefaultConfig(frameWidth, frameHeight int) Config {
	return Config{
		TargetX:          frameWidth / 2,
		TargetY:          frameHeight / 2,
		ReferenceWidth:   DefaultReferenceWidth,
		YawGain:          DefaultYawGain,
		VerticalGain:     DefaultVerticalGain,
		ForwardGain:      DefaultForwardGain,
		YawDeadZone:      DefaultYawDeadZone,
		VerticalDeadZone: DefaultVerticalDeadZone,
		ForwardDeadZone:  DefaultForwardDeadZone,
		Limit:            DefaultLimit,
	}
}

// Mapper computes setpoints from bounding boxes. It keeps no state between
// calls.
type Mapper struct {
	cfg Config
}

// NewMapper creates a Mapper. A non-positive limit falls back to
// DefaultLimit.
func NewMapper(cfg Config) *Mapper {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	return &Mapper{cfg: cfg}
}

// Config returns the mapper's configuration.
func (m *Mapper) Config() Config {
	return m.cfg
}

// Map converts a bounding box into a setpoint.
//
// The box centre drives yaw (horizontal error) and up/down (vertical error);
// the box width against ReferenceWidth drives forward/back. Each raw value is
// dead-zoned, then clamped to ±Limit, then truncated toward zero. Left/right
// is never driven.
func (m *Mapper) Map(box image.Rectangle) Setpoint {
	w := box.Max.X - box.Min.X
	h := box.Max.Y - box.Min.Y
	cx := box.Min.X + w/2
	cy := box.Min.Y + h/2

	yaw := m.cfg.YawGain * float64(m.cfg.TargetX-cx)
	vert := m.cfg.VerticalGain * float64(m.cfg.TargetY-cy)
	fwd := m.cfg.ForwardGain * float64(m.cfg.ReferenceWidth-w)

	limit := float64(m.cfg.Limit)
	return Setpoint{
		LeftRight:   0,
		ForwardBack: int(Clamp(DeadZone(fwd, m.cfg.ForwardDeadZone), limit)),
		UpDown:      int(Clamp(DeadZone(vert, m.cfg.VerticalDeadZone), limit)),
		Yaw:         int(Clamp(DeadZone(yaw, m.cfg.YawDeadZone), limit)),
	}
}

// DeadZone returns 0 when |v| is below threshold and v otherwise.
func DeadZone(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}

// Clamp limits v to [-limit, limit].
func Clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
