// Package config loads handpilot settings from ~/.handpilot/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/handpilot/internal/control"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/logging"
	"github.com/ayusman/handpilot/internal/tello"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside the data directory.
const FileName = "config.yaml"

// Config is the full set of settings.
type Config struct {
	Drone    tello.Config    `yaml:"drone"`
	Video    VideoConfig     `yaml:"video"`
	Detector detector.Config `yaml:"detector"`
	// Control targets the frame centre when TargetX and TargetY are zero.
	Control control.Config `yaml:"control"`
	Flight  FlightConfig   `yaml:"flight"`
	Log     logging.Config `yaml:"log"`
}

// VideoConfig describes how frames are read and presented.
type VideoConfig struct {
	// StreamURL overrides the URL derived from the drone's video port.
	StreamURL string `yaml:"stream_url"`
	// Scale resizes native frames before detection and display.
	Scale       float64 `yaml:"scale"`
	Mirror      bool    `yaml:"mirror"`
	WindowTitle string  `yaml:"window_title"`
	Skeleton    bool    `yaml:"skeleton"`
}

// FlightConfig holds manual maneuver sizes and timing.
type FlightConfig struct {
	StepCM            int           `yaml:"step_cm"`
	RotateDeg         int           `yaml:"rotate_deg"`
	Flip              string        `yaml:"flip"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	// Autonomous starts the session with gesture following enabled.
	Autonomous bool `yaml:"autonomous"`
}

// Default returns the settings used when no config file exists.
func Default() Config {
	ctl := control.DefaultConfig(0, 0)
	return Config{
		Drone: tello.DefaultConfig(),
		Video: VideoConfig{
			Scale:       0.5,
			Mirror:      true,
			WindowTitle: "handpilot",
			Skeleton:    true,
		},
		Detector: detector.DefaultConfig(),
		Control:  ctl,
		Flight: FlightConfig{
			StepCM:            30,
			RotateDeg:         30,
			Flip:              string(tello.FlipBack),
			SettleDelay:       time.Second,
			KeepaliveInterval: 10 * time.Second,
		},
		Log: logging.DefaultConfig(),
	}
}

// Dir returns the handpilot data directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".handpilot"), nil
}

// DefaultPath returns ~/.handpilot/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrCreate is Load, except that a missing file is first written with the
// defaults so the operator has a file to edit.
func LoadOrCreate(path string) (Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return Config{}, fmt.Errorf("write default config: %w", err)
		}
	}
	return Load(path)
}

// Save writes cfg to path, creating its directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// StreamURL returns the video URL to open.
func (c Config) StreamURL() string {
	if c.Video.StreamURL != "" {
		return c.Video.StreamURL
	}
	return c.Drone.StreamURL()
}

// Validate rejects settings the drone or the controller cannot use.
func (c Config) Validate() error {
	var errs []error

	if c.Drone.Address == "" {
		errs = append(errs, errors.New("drone.address is empty"))
	}
	if !validPort(c.Drone.CommandPort) {
		errs = append(errs, fmt.Errorf("drone.command_port %d out of range", c.Drone.CommandPort))
	}
	if !validPort(c.Drone.VideoPort) {
		errs = append(errs, fmt.Errorf("drone.video_port %d out of range", c.Drone.VideoPort))
	}
	if c.Drone.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("drone.response_timeout must be positive"))
	}

	if c.Video.Scale <= 0 || c.Video.Scale > 1 {
		errs = append(errs, fmt.Errorf("video.scale %v must be in (0, 1]", c.Video.Scale))
	}

	if c.Detector.MaxHands < 1 {
		errs = append(errs, errors.New("detector.max_hands must be at least 1"))
	}
	if !unit(c.Detector.MinConfidence) || !unit(c.Detector.MinTrackingConf) {
		errs = append(errs, errors.New("detector confidences must be in [0, 1]"))
	}

	if c.Control.ReferenceWidth <= 0 {
		errs = append(errs, errors.New("control.reference_width must be positive"))
	}
	if c.Control.Limit <= 0 || c.Control.Limit > tello.MaxRC {
		errs = append(errs, fmt.Errorf("control.limit %d must be in [1, %d]", c.Control.Limit, tello.MaxRC))
	}
	if c.Control.YawDeadZone < 0 || c.Control.VerticalDeadZone < 0 || c.Control.ForwardDeadZone < 0 {
		errs = append(errs, errors.New("control dead zones must not be negative"))
	}

	if c.Flight.StepCM < tello.MinMoveCM || c.Flight.StepCM > tello.MaxMoveCM {
		errs = append(errs, fmt.Errorf("flight.step_cm %d must be in [%d, %d]",
			c.Flight.StepCM, tello.MinMoveCM, tello.MaxMoveCM))
	}
	if c.Flight.RotateDeg < tello.MinRotateDeg || c.Flight.RotateDeg > tello.MaxRotateDeg {
		errs = append(errs, fmt.Errorf("flight.rotate_deg %d must be in [%d, %d]",
			c.Flight.RotateDeg, tello.MinRotateDeg, tello.MaxRotateDeg))
	}
	switch tello.FlipDirection(c.Flight.Flip) {
	case tello.FlipLeft, tello.FlipRight, tello.FlipForward, tello.FlipBack:
	default:
		errs = append(errs, fmt.Errorf("flight.flip %q must be one of l, r, f, b", c.Flight.Flip))
	}
	if c.Flight.SettleDelay < 0 {
		errs = append(errs, errors.New("flight.settle_delay must not be negative"))
	}
	if c.Flight.KeepaliveInterval <= 0 {
		errs = append(errs, errors.New("flight.keepalive_interval must be positive"))
	}

	return errors.Join(errs...)
}

func validPort(p int) bool { return p > 0 && p < 65536 }

func unit(v float64) bool { return v >= 0 && v <= 1 }
