package render

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// HSV is a color in hue/saturation/value space.
type HSV struct {
	H uint32  // 0 <= H < 360
	S float64 // 0 <= S <= 1
	V float64 // 0 <= V <= 1
}

// Direction of a hue rotation.
type Direction string

const (
	CW  Direction = "cw"
	CCW Direction = "ccw"
)

// RotateHue rotates the hue by degrees, wrapping around 360.
func (col *HSV) RotateHue(degrees uint32, dir Direction) {
	degrees %= 360
	switch dir {
	case CW:
		col.H = (col.H + degrees) % 360
	case CCW:
		col.H = (col.H + 360 - degrees) % 360
	}
}

// RGBA converts to an opaque RGBA color.
func (col HSV) RGBA() color.RGBA {
	h := float64(col.H % 360)
	c := col.V * col.S
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := col.V - c

	var rp, gp, bp float64 // R' G' B'
	switch {
	case h < 60:
		rp, gp, bp = c, x, 0
	case h < 120:
		rp, gp, bp = x, c, 0
	case h < 180:
		rp, gp, bp = 0, c, x
	case h < 240:
		rp, gp, bp = 0, x, c
	case h < 300:
		rp, gp, bp = x, 0, c
	default:
		rp, gp, bp = c, 0, x
	}

	return color.RGBA{
		R: uint8(math.Round((rp + m) * 255)),
		G: uint8(math.Round((gp + m) * 255)),
		B: uint8(math.Round((bp + m) * 255)),
		A: 255,
	}
}

// Hex parses a "#RRGGBB" color.
func Hex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// MustHex is Hex for compile-time palette constants.
func MustHex(s string) color.RGBA {
	c, err := Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}
