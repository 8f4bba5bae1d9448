package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseCameraID parses a camera device index such as "0" or "2".
func ParseCameraID(arg string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid camera id %q: %w", arg, err)
	}
	if id < 0 {
		return 0, fmt.Errorf("invalid camera id %q: must be >= 0", arg)
	}
	return id, nil
}

// IsVideoFile reports whether arg names an existing regular file rather than
// a camera index.
func IsVideoFile(arg string) bool {
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

// SessionName is the base name of a video path without its extension.
func SessionName(path string) string {
	if path == "" {
		return ""
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// SavePath returns where the annotated copy of a video is written:
// "<dir>/<name>_reps.avi".
func SavePath(dir, source string) string {
	name := SessionName(source)
	if name == "" {
		name = "camera"
	}
	return filepath.Join(dir, name+"_reps.avi")
}
