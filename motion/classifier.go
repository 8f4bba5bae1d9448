// Package motion turns pose landmarks into an arm-raise reading and counts
// repetitions from the sequence of readings.
package motion

import (
	"math"

	"github.com/DaniruKun/repcounter/pose"
)

// DefaultLegsApartThreshold is the normalized ankle separation above which
// the legs count as apart.
const DefaultLegsApartThreshold = 0.5

// Reading is the classifier's verdict on a single pose.
type Reading int

const (
	Indeterminate Reading = iota
	Lowered
	Raised
)

func (r Reading) String() string {
	switch r {
	case Lowered:
		return "lowered"
	case Raised:
		return "raised"
	default:
		return "indeterminate"
	}
}

// IsLimbsRaised reports whether both shoulders sit above their elbows.
// A set that does not reach the elbow indices is never raised.
func IsLimbsRaised(set pose.LandmarkSet) bool {
	ls, ok1 := set.Joint(pose.LeftShoulder)
	le, ok2 := set.Joint(pose.LeftElbow)
	rs, ok3 := set.Joint(pose.RightShoulder)
	re, ok4 := set.Joint(pose.RightElbow)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return ls.Y < le.Y && rs.Y < re.Y
}

// Features is what the classifier derives from one pose.
type Features struct {
	Arms Reading

	// LegsApart and AnkleSpread are diagnostics; they never gate counting.
	LegsApart   bool
	AnkleSpread float64
}

// Classifier wraps IsLimbsRaised with landmark quality checks.
type Classifier struct {
	// MinVisibility below which a required joint makes the reading
	// indeterminate. Zero disables the check.
	MinVisibility float64

	// LegsApartThreshold defaults to DefaultLegsApartThreshold when zero.
	LegsApartThreshold float64
}

var armJoints = [...]pose.Joint{
	pose.LeftShoulder, pose.RightShoulder, pose.LeftElbow, pose.RightElbow,
}

// Classify returns the features for set. It holds no state between calls.
func (c Classifier) Classify(set pose.LandmarkSet) Features {
	var f Features

	f.Arms = c.arms(set)

	la, ok1 := set.Joint(pose.LeftAnkle)
	ra, ok2 := set.Joint(pose.RightAnkle)
	if ok1 && ok2 && la.Finite() && ra.Finite() {
		threshold := c.LegsApartThreshold
		if threshold == 0 {
			threshold = DefaultLegsApartThreshold
		}
		f.AnkleSpread = math.Abs(la.X - ra.X)
		f.LegsApart = f.AnkleSpread > threshold
	}

	return f
}

func (c Classifier) arms(set pose.LandmarkSet) Reading {
	for _, j := range armJoints {
		p, ok := set.Joint(j)
		if !ok || !p.Finite() {
			return Indeterminate
		}
		if c.MinVisibility > 0 && p.Visibility < c.MinVisibility {
			return Indeterminate
		}
	}

	if IsLimbsRaised(set) {
		return Raised
	}
	return Lowered
}
