// Package gesture classifies a small vocabulary of hand poses from landmarks.
package gesture

import "github.com/ayusman/handpilot/internal/detector"

// Pose is a recognized hand pose.
type Pose int

const (
	// PoseNone is any finger combination outside the vocabulary.
	PoseNone Pose = iota
	// PoseOpen has all four fingers extended (open palm).
	PoseOpen
	// PoseClosed has no finger extended (fist).
	PoseClosed
	// PoseTwoFinger has index and middle extended, ring and pinky folded.
	PoseTwoFinger
)

func (p Pose) String() string {
	switch p {
	case PoseOpen:
		return "open"
	case PoseClosed:
		return "closed"
	case PoseTwoFinger:
		return "two-finger"
	default:
		return "none"
	}
}

// Finger order used by Extended and Classify.
const (
	Index = iota
	Middle
	Ring
	Pinky
	NumFingers
)

// fingerJoints pairs each finger's tip with its PIP (second) joint.
var fingerJoints = [NumFingers][2]int{
	Index:  {detector.IndexTip, detector.IndexPIP},
	Middle: {detector.MiddleTip, detector.MiddlePIP},
	Ring:   {detector.RingTip, detector.RingPIP},
	Pinky:  {detector.PinkyTip, detector.PinkyPIP},
}

// Extended reports, for index, middle, ring and pinky, whether the fingertip
// sits above its second joint in image coordinates (smaller Y).
func Extended(hand *detector.HandLandmarks) [NumFingers]bool {
	var ext [NumFingers]bool
	if hand == nil {
		return ext
	}
	for i, j := range fingerJoints {
		ext[i] = hand.Points[j[0]].Y < hand.Points[j[1]].Y
	}
	return ext
}

// Classify maps finger extension flags to a pose. Rules are checked in order:
// all extended, none extended, index and middle only.
func Classify(ext [NumFingers]bool) Pose {
	switch {
	case ext[Index] && ext[Middle] && ext[Ring] && ext[Pinky]:
		return PoseOpen
	case !ext[Index] && !ext[Middle] && !ext[Ring] && !ext[Pinky]:
		return PoseClosed
	case ext[Index] && ext[Middle] && !ext[Ring] && !ext[Pinky]:
		return PoseTwoFinger
	default:
		return PoseNone
	}
}

// Recognize classifies the pose of hand. A nil hand is PoseNone.
func Recognize(hand *detector.HandLandmarks) Pose {
	if hand == nil {
		return PoseNone
	}
	return Classify(Extended(hand))
}
