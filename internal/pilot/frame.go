package pilot

import (
	"fmt"
	"image"
	"time"

	"github.com/ayusman/handpilot/internal/control"
	"github.com/ayusman/handpilot/internal/detector"
	"github.com/ayusman/handpilot/internal/display"
	"github.com/ayusman/handpilot/internal/gesture"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// observation is what one frame's hand produced.
type observation struct {
	Found    bool
	Box      image.Rectangle
	Setpoint control.Setpoint
	Sent     bool
	Pose     gesture.Pose
	Flipped  bool
}

// processFrame prepares frame, runs detection and control, then shows the
// annotated result.
func (s *Session) processFrame(frame *gocv.Mat) {
	if frame == nil || frame.Empty() {
		return
	}

	img := gocv.NewMat()
	defer img.Close()
	prepareFrame(*frame, &img, s.cfg.Video.Scale, s.cfg.Video.Mirror)

	hand := s.detect(&img)

	obs := s.handleHand(hand, img.Cols(), img.Rows())
	s.drawOverlay(&img, hand, obs)
	s.display.Show(&img)
}

// detectWarnEvery limits how often a persistent detection failure is logged
// at warn level.
const detectWarnEvery = 5 * time.Second

// detect returns the first hand in img, or nil when there is none or the
// detector fails.
func (s *Session) detect(img *gocv.Mat) *detector.HandLandmarks {
	hands, err := s.detector.Detect(img)
	if err != nil {
		s.detectFailed(err)
		return nil
	}
	if s.detectFailures > 0 {
		s.log.Info("hand detection recovered", zap.Int("failures", s.detectFailures))
		s.detectFailures = 0
	}
	return detector.First(hands)
}

func (s *Session) detectFailed(err error) {
	s.detectFailures++
	now := s.clock.Now()
	if s.detectFailures > 1 && now.Sub(s.lastDetectWarn) < detectWarnEvery {
		s.log.Debug("hand detection failed", zap.Error(err))
		return
	}
	s.lastDetectWarn = now
	s.log.Warn("hand detection failed", zap.Int("failures", s.detectFailures), zap.Error(err))
}

// prepareFrame scales src into dst and mirrors it for a selfie view.
func prepareFrame(src gocv.Mat, dst *gocv.Mat, scale float64, mirror bool) {
	if scale > 0 && scale != 1 {
		gocv.Resize(src, dst, image.Point{}, scale, scale, gocv.InterpolationLinear)
	} else {
		src.CopyTo(dst)
	}
	if mirror {
		gocv.Flip(*dst, dst, 1)
	}
}

// handleHand reacts to hand's pose and, in autonomous mode only, maps it to a
// setpoint. A nil hand is a no-op.
func (s *Session) handleHand(hand *detector.HandLandmarks, width, height int) observation {
	if hand == nil {
		s.lastPose = gesture.PoseNone
		return observation{}
	}

	obs := observation{Found: true}
	obs.Box = detector.BoundingBox(hand, width, height)

	auto := s.Autonomous()
	if auto {
		obs.Setpoint = s.mapperFor(width, height).Map(obs.Box)
		if !s.maneuvering.Load() {
			obs.Sent = s.sendRC(obs.Setpoint)
		}
	}

	obs.Pose = gesture.Recognize(hand)
	if obs.Pose != s.lastPose {
		s.log.Debug("pose changed", zap.Stringer("pose", obs.Pose))
		s.lastPose = obs.Pose
	}

	if auto && obs.Pose == gesture.PoseTwoFinger {
		obs.Flipped = s.triggerFlip()
	}
	return obs
}

// mapperFor returns a mapper targeting the centre of a width x height frame
// unless the configuration fixes the target.
func (s *Session) mapperFor(width, height int) *control.Mapper {
	if s.mapper != nil && s.mapperSize == [2]int{width, height} {
		return s.mapper
	}

	cfg := s.cfg.Control
	if cfg.TargetX == 0 && cfg.TargetY == 0 {
		cfg.TargetX = width / 2
		cfg.TargetY = height / 2
	}
	s.mapper = control.NewMapper(cfg)
	s.mapperSize = [2]int{width, height}
	return s.mapper
}

func (s *Session) drawOverlay(img *gocv.Mat, hand *detector.HandLandmarks, obs observation) {
	if obs.Found {
		if s.cfg.Video.Skeleton {
			display.DrawHand(img, hand)
		}
		display.DrawBox(img, obs.Box)
		display.DrawLabel(img, obs.Pose.String())
	}

	display.DrawStatus(img, s.statusLines(obs)...)
}

// statusLines is the text drawn in the corner of each frame. The setpoint is
// shown only while hand following is on.
func (s *Session) statusLines(obs observation) []string {
	dropped := fmt.Sprintf("dropped: %d", s.relay.Stats().Drops)
	if !s.Autonomous() {
		return []string{"mode: manual", dropped}
	}
	return []string{"mode: auto", fmt.Sprintf("%s  %s", obs.Setpoint, dropped)}
}
