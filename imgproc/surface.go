package imgproc

import (
	"errors"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/repcounter/frame"
)

// MatSurface is a render.Surface backed by a BGR Mat.
type MatSurface struct {
	mat gocv.Mat
}

func NewMatSurface() *MatSurface {
	return &MatSurface{mat: gocv.NewMat()}
}

func (s *MatSurface) Resize(w, h int) {
	if s.mat.Cols() == w && s.mat.Rows() == h {
		return
	}
	s.mat.Close()
	s.mat = gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
}

func (s *MatSurface) Size() (int, int) {
	return s.mat.Cols(), s.mat.Rows()
}

func (s *MatSurface) Clear() {
	if s.mat.Empty() {
		return
	}
	s.mat.SetTo(gocv.NewScalar(0, 0, 0, 0))
}

// DrawImage decodes the frame and stretches it over the whole surface.
func (s *MatSurface) DrawImage(f frame.Frame) error {
	img, err := gocv.IMDecode(f.Data, gocv.IMReadColor)
	if err != nil {
		return err
	}
	defer img.Close()
	if img.Empty() {
		return errors.New("frame did not decode to an image")
	}

	w, h := s.Size()
	if img.Cols() == w && img.Rows() == h {
		img.CopyTo(&s.mat)
		return nil
	}
	gocv.Resize(img, &s.mat, image.Pt(w, h), 0, 0, gocv.InterpolationLinear)
	return nil
}

func (s *MatSurface) DrawLine(a, b image.Point, c color.RGBA, width int) {
	gocv.Line(&s.mat, a, b, c, width)
}

func (s *MatSurface) DrawPoint(p image.Point, c color.RGBA, radius int) {
	gocv.Circle(&s.mat, p, radius, c, -1)
}

func (s *MatSurface) DrawText(text string, at image.Point, c color.RGBA, scale float64) {
	gocv.PutText(&s.mat, text, at, gocv.FontHersheySimplex, scale, c, 2)
}

// Mat exposes the backing image. It is only valid until the next Resize.
func (s *MatSurface) Mat() gocv.Mat {
	return s.mat
}

func (s *MatSurface) Close() error {
	return s.mat.Close()
}
