// Package pose holds the landmark data produced by the pose estimator.
package pose

import (
	"math"

	"github.com/DaniruKun/repcounter/frame"
)

// Point is a single landmark, normalized to the frame dimensions (0..1 for X and Y).
// Y grows downward.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Finite reports whether both image-plane coordinates are usable.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// LandmarkSet is an ordered sequence of landmarks addressed by index.
type LandmarkSet []Point

// At returns the landmark at index i, or false if the set is too short.
func (s LandmarkSet) At(i int) (Point, bool) {
	if i < 0 || i >= len(s) {
		return Point{}, false
	}
	return s[i], true
}

// Joint returns the pose landmark for j.
func (s LandmarkSet) Joint(j Joint) (Point, bool) {
	return s.At(int(j))
}

// Landmarks is either a present LandmarkSet or absent. Absence means the
// category was not detected this frame; it is not an error.
type Landmarks struct {
	set     LandmarkSet
	present bool
}

// Present wraps a detected set.
func Present(set LandmarkSet) Landmarks {
	return Landmarks{set: set, present: true}
}

// Absent is the value for an undetected category.
func Absent() Landmarks {
	return Landmarks{}
}

// Get returns the set and whether it was detected.
func (l Landmarks) Get() (LandmarkSet, bool) {
	return l.set, l.present
}

// IsPresent reports whether the category was detected.
func (l Landmarks) IsPresent() bool {
	return l.present
}

// Result is everything the estimator found in one frame. Consumers must not
// retain it past the processing cycle of that frame.
type Result struct {
	Frame       frame.Frame
	Pose        Landmarks
	LeftHand    Landmarks
	RightHand   Landmarks
	Face        Landmarks
	InferenceMS float64
}

// Miss reports whether nothing at all was detected.
func (r Result) Miss() bool {
	return !r.Pose.present && !r.LeftHand.present && !r.RightHand.present && !r.Face.present
}
