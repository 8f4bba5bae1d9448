package render

import (
	"fmt"
	"image/color"
	"testing"
)

func TestRotateHue(t *testing.T) {
	hsv := HSV{H: 0, S: 1, V: 1}

	hsv.RotateHue(1, CCW)

	if hsv.H != 359 {
		t.Error("expected hue of 359, got: ", hsv.H)
	}

	hsv.RotateHue(2, CW)

	if hsv.H != 1 {
		t.Error("expected hue of 1, got: ", hsv.H)
	}

	hsv.RotateHue(720, CW)

	if hsv.H != 1 {
		t.Error("expected full turns to keep hue 1, got: ", hsv.H)
	}
}

func TestRGBA(t *testing.T) {
	var tests = []struct {
		hsv  HSV
		rgba color.RGBA
	}{
		{HSV{0, 0, 0}, color.RGBA{0, 0, 0, 255}},
		{HSV{0, 0, 1}, color.RGBA{255, 255, 255, 255}},
		{HSV{0, 1, 1}, color.RGBA{255, 0, 0, 255}},
		{HSV{60, 1, 1}, color.RGBA{255, 255, 0, 255}},
		{HSV{120, 1, 1}, color.RGBA{0, 255, 0, 255}},
		{HSV{240, 1, 1}, color.RGBA{0, 0, 255, 255}},
		{HSV{300, 1, 1}, color.RGBA{255, 0, 255, 255}},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("HSV %v -> RGBA %v", tt.hsv, tt.rgba)
		t.Run(testname, func(t *testing.T) {
			res := tt.hsv.RGBA()
			if res != tt.rgba {
				t.Errorf("got %+v, want %+v", res, tt.rgba)
			}
		})
	}
}

func TestHex(t *testing.T) {
	var tests = []struct {
		in   string
		want color.RGBA
		ok   bool
	}{
		{"#00FF00", color.RGBA{0, 255, 0, 255}, true},
		{"#FF3030", color.RGBA{255, 48, 48, 255}, true},
		{"ff0000", color.RGBA{255, 0, 0, 255}, true},
		{"#F00", color.RGBA{}, false},
		{"#GG0000", color.RGBA{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Hex(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("got error %v, want ok %v", err, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
