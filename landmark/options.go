// Package landmark provides pose estimator backends: a worker subprocess
// running the holistic landmark model, and a replay of recorded detections.
package landmark

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrClosed is returned by a detector that can no longer serve frames.
var ErrClosed = errors.New("detector closed")

// closedError marks ErrClosed as fatal for the frame pump.
type closedError struct{ cause error }

func (e *closedError) Error() string {
	if e.cause == nil {
		return ErrClosed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrClosed, e.cause)
}

func (e *closedError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrClosed}
	}
	return []error{ErrClosed, e.cause}
}

func (e *closedError) Fatal() bool { return true }

// Options are the estimator knobs accepted at construction.
type Options struct {
	ModelComplexity        int     `yaml:"model_complexity"` // 0, 1 or 2
	SmoothLandmarks        bool    `yaml:"smooth_landmarks"`
	EnableSegmentation     bool    `yaml:"enable_segmentation"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
}

// DefaultOptions returns the options the counter was tuned with.
func DefaultOptions() Options {
	return Options{
		ModelComplexity:        1,
		SmoothLandmarks:        true,
		EnableSegmentation:     false,
		MinDetectionConfidence: 0.5,
		MinTrackingConfidence:  0.5,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.ModelComplexity < 0 || o.ModelComplexity > 2 {
		return fmt.Errorf("model_complexity must be 0, 1 or 2, got %d", o.ModelComplexity)
	}
	if o.MinDetectionConfidence < 0 || o.MinDetectionConfidence > 1 {
		return fmt.Errorf("min_detection_confidence must be in [0,1], got %v", o.MinDetectionConfidence)
	}
	if o.MinTrackingConfidence < 0 || o.MinTrackingConfidence > 1 {
		return fmt.Errorf("min_tracking_confidence must be in [0,1], got %v", o.MinTrackingConfidence)
	}
	return nil
}

// Args renders the options as worker command-line flags.
func (o Options) Args() []string {
	return []string{
		"--model-complexity", strconv.Itoa(o.ModelComplexity),
		"--smooth-landmarks=" + strconv.FormatBool(o.SmoothLandmarks),
		"--enable-segmentation=" + strconv.FormatBool(o.EnableSegmentation),
		"--min-detection-confidence", strconv.FormatFloat(o.MinDetectionConfidence, 'f', 2, 64),
		"--min-tracking-confidence", strconv.FormatFloat(o.MinTrackingConfidence, 'f', 2, 64),
	}
}
