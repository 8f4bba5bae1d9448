// Package render draws detection results and the session HUD onto a
// drawing surface. It never feeds anything back into counting.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

// Surface is a 2D drawing context.
type Surface interface {
	// Resize sets the surface to w x h pixels.
	Resize(w, h int)
	Size() (w, h int)
	Clear()
	DrawImage(f frame.Frame) error
	DrawLine(a, b image.Point, c color.RGBA, width int)
	DrawPoint(p image.Point, c color.RGBA, radius int)
	DrawText(s string, at image.Point, c color.RGBA, scale float64)
}

// LandmarkStyle is how one landmark category is drawn.
type LandmarkStyle struct {
	Connector      color.RGBA
	ConnectorWidth int
	Point          color.RGBA
	PointRadius    int

	// Points disables markers when false, leaving only connectors.
	Points bool
}

// Style is the full palette.
type Style struct {
	Pose LandmarkStyle
	Hand LandmarkStyle
	Face LandmarkStyle
	Text color.RGBA
}

// DefaultStyle is the stock overlay: green skeletons with red joints,
// and a thin red-orange eye outline for the face.
func DefaultStyle() Style {
	limbs := LandmarkStyle{
		Connector:      MustHex("#00FF00"),
		ConnectorWidth: 2,
		Point:          MustHex("#FF0000"),
		PointRadius:    2,
		Points:         true,
	}
	return Style{
		Pose: limbs,
		Hand: limbs,
		Face: LandmarkStyle{
			Connector:      MustHex("#FF3030"),
			ConnectorWidth: 1,
		},
		Text: MustHex("#FFFFFF"),
	}
}

// Renderer draws results with a fixed style.
type Renderer struct {
	Style Style
}

// New returns a renderer using DefaultStyle.
func New() *Renderer {
	return &Renderer{Style: DefaultStyle()}
}

// Draw paints the source frame and every detected landmark set. The surface
// is resized to the frame's native dimensions first, so a change of input
// resolution is picked up on the next frame.
func (r *Renderer) Draw(s Surface, res pose.Result) error {
	f := res.Frame
	if !f.Empty() {
		s.Resize(f.Width, f.Height)
	}
	s.Clear()

	if !f.Empty() {
		if err := s.DrawImage(f); err != nil {
			return fmt.Errorf("failed to draw frame %d: %w", f.Seq, err)
		}
	}

	w, h := s.Size()
	if w == 0 || h == 0 {
		return nil
	}
	drawLandmarks(s, res.Pose, pose.PoseConnections, r.Style.Pose, w, h)
	drawLandmarks(s, res.LeftHand, pose.HandConnections, r.Style.Hand, w, h)
	drawLandmarks(s, res.RightHand, pose.HandConnections, r.Style.Hand, w, h)
	drawLandmarks(s, res.Face, pose.FaceRightEye, r.Style.Face, w, h)
	return nil
}

func drawLandmarks(s Surface, l pose.Landmarks, conns []pose.Connection, st LandmarkStyle, w, h int) {
	set, ok := l.Get()
	if !ok {
		return
	}

	for _, c := range conns {
		a, ok1 := set.At(c[0])
		b, ok2 := set.At(c[1])
		if !ok1 || !ok2 || !a.Finite() || !b.Finite() {
			continue
		}
		s.DrawLine(toPixel(a, w, h), toPixel(b, w, h), st.Connector, st.ConnectorWidth)
	}

	if !st.Points {
		return
	}
	for _, p := range set {
		if !p.Finite() {
			continue
		}
		s.DrawPoint(toPixel(p, w, h), st.Point, st.PointRadius)
	}
}

func toPixel(p pose.Point, w, h int) image.Point {
	return image.Pt(int(p.X*float64(w)), int(p.Y*float64(h)))
}
