package detector

import "gocv.io/x/gocv"

// Detector finds hand landmarks in video frames.
type Detector interface {
	// Detect returns the hands found in frame, at most Config.MaxHands of
	// them. Finding no hand is an empty result, not an error.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds hand detection settings passed to the landmark model.
type Config struct {
	// MaxHands is the maximum number of hands to report.
	MaxHands int `yaml:"max_hands"`

	// MinConfidence is the palm detection threshold (0.0-1.0).
	MinConfidence float64 `yaml:"min_detection_confidence"`

	// MinTrackingConf is the landmark tracking threshold (0.0-1.0).
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`

	// ModelComplexity selects the landmark model (0 = lite, 1 = full).
	ModelComplexity int `yaml:"model_complexity"`
}

// DefaultConfig tracks a single hand with the lite model.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		MinConfidence:   0.7,
		MinTrackingConf: 0.7,
		ModelComplexity: 0,
	}
}

// First returns the first hand in hands, or nil.
func First(hands []HandLandmarks) *HandLandmarks {
	if len(hands) == 0 {
		return nil
	}
	return &hands[0]
}
