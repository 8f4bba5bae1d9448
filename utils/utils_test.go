package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCameraID(t *testing.T) {
	tests := []struct {
		arg  string
		want int
		ok   bool
	}{
		{"0", 0, true},
		{" 2 ", 2, true},
		{"-1", 0, false},
		{"video.mp4", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("%q", tt.arg)
		t.Run(testname, func(t *testing.T) {
			got, err := ParseCameraID(tt.arg)
			if (err == nil) != tt.ok {
				t.Fatalf("got error %v, want ok=%v", err, tt.ok)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSessionName(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"/videos/jumping_jacks.mp4", "jumping_jacks"},
		{"clip.tar.gz", "clip.tar"},
		{"noext", "noext"},
		{"", ""},
	}

	for _, tt := range tests {
		testname := fmt.Sprintf("%q", tt.path)
		t.Run(testname, func(t *testing.T) {
			if got := SessionName(tt.path); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSavePath(t *testing.T) {
	if got := SavePath("out", "/v/jacks.mp4"); got != filepath.Join("out", "jacks_reps.avi") {
		t.Errorf("got %q", got)
	}
	if got := SavePath("out", ""); got != filepath.Join("out", "camera_reps.avi") {
		t.Errorf("got %q", got)
	}
}

func TestIsVideoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !IsVideoFile(path) {
		t.Error("existing file not recognized")
	}
	if IsVideoFile(dir) {
		t.Error("directory recognized as a video")
	}
	if IsVideoFile("0") {
		t.Error("camera index recognized as a video")
	}
}
