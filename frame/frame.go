// Package frame defines the unit of work that flows from a capture source
// through the pose estimator to the renderer.
package frame

import "time"

// Frame is a single captured image, JPEG encoded.
//
// Data must not be modified once the frame has been handed to the pump.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// Empty reports whether the frame carries no image.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}
