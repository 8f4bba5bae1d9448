package imgproc

// Default camera resolution requested from the device.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

type Config struct {
	Device int // Camera device index
	Width  int // Requested capture width, DefaultWidth when zero
	Height int // Requested capture height, DefaultHeight when zero

	JPEGQuality int // Encoding quality of frames sent to the estimator, OpenCV's default when zero
}

type DisplayConfig struct {
	ShowGUI  bool    // Show a preview window
	Title    string  // Window title
	SavePath string  // Write the annotated video here when set
	SaveFPS  float64 // Frame rate of the saved video, 30 when zero
}

func (c Config) size() (int, int) {
	w, h := c.Width, c.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}
