package render

import (
	"fmt"
	"image"
	"image/color"
)

// Indicator is the state shown by the status dot.
type Indicator int

const (
	IndicatorStopped Indicator = iota
	IndicatorRunning
	IndicatorError
)

// HUD is the text overlay: rep count, status line and arm state.
type HUD struct {
	Count     uint
	Status    string
	Indicator Indicator
	Raised    bool
}

var (
	runningHue = HSV{H: 120, S: 1, V: 1}
	errorHue   = HSV{H: 0, S: 1, V: 1}
	stoppedHue = HSV{H: 0, S: 0, V: 0.6}
)

// IndicatorColor returns the status dot color. While running, a latched
// raised state shifts the dot toward yellow.
func IndicatorColor(ind Indicator, raised bool) color.RGBA {
	switch ind {
	case IndicatorRunning:
		c := runningHue
		if raised {
			c.RotateHue(60, CCW)
		}
		return c.RGBA()
	case IndicatorError:
		return errorHue.RGBA()
	default:
		return stoppedHue.RGBA()
	}
}

// DrawHUD paints the overlay in the top-left corner.
func (r *Renderer) DrawHUD(s Surface, hud HUD) {
	s.DrawPoint(image.Pt(20, 22), IndicatorColor(hud.Indicator, hud.Raised), 8)
	s.DrawText(fmt.Sprintf("Reps: %d", hud.Count), image.Pt(40, 30), r.Style.Text, 0.9)
	if hud.Status != "" {
		s.DrawText(hud.Status, image.Pt(40, 58), r.Style.Text, 0.6)
	}
}
