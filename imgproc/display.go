package imgproc

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/repcounter/pose"
	"github.com/DaniruKun/repcounter/render"
	"github.com/DaniruKun/repcounter/session"
)

const defaultSaveFPS = 30

// Keys handled by the preview window.
const (
	KeyStart = 's'
	KeyStop  = 'x'
	KeyReset = 'r'
	KeyPause = 'p'
	KeyLoad  = 'l'
	KeyQuit  = 'q'
	KeyEsc   = 27
)

// HUDFor maps the session state onto the overlay.
func HUDFor(st session.State) render.HUD {
	hud := render.HUD{
		Count:  st.RepCount,
		Status: st.Message,
		Raised: st.Raised,
	}
	switch st.Status {
	case session.StatusRunning:
		hud.Indicator = render.IndicatorRunning
	case session.StatusError:
		hud.Indicator = render.IndicatorError
	default:
		hud.Indicator = render.IndicatorStopped
	}
	return hud
}

// Display draws results onto a surface and shows them in a window, writes
// them to a video file, or both. It implements session.Presenter.
//
// Present may be called from any goroutine, but Show must run on the
// goroutine that created the Display since OpenCV windows are not thread safe.
type Display struct {
	cfg      DisplayConfig
	logger   *slog.Logger
	renderer *render.Renderer

	mu         sync.Mutex
	surface    *MatSurface
	cleared    bool
	window     *gocv.Window
	writer     *gocv.VideoWriter
	writerSize image.Point
	written    int
}

func NewDisplay(cfg DisplayConfig, logger *slog.Logger) *Display {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Title == "" {
		cfg.Title = "repcounter"
	}
	if cfg.SaveFPS <= 0 {
		cfg.SaveFPS = defaultSaveFPS
	}

	d := &Display{
		cfg:      cfg,
		logger:   logger,
		renderer: render.New(),
		surface:  NewMatSurface(),
		cleared:  true,
	}
	if cfg.ShowGUI {
		d.window = gocv.NewWindow(cfg.Title)
	}
	return d
}

// SetSaveFPS sets the frame rate of the saved video. It has no effect once
// the first frame was written.
func (d *Display) SetSaveFPS(fps float64) {
	if fps <= 0 {
		return
	}
	d.mu.Lock()
	d.cfg.SaveFPS = fps
	d.mu.Unlock()
}

// Present draws the result with the HUD for st.
func (d *Display) Present(res pose.Result, st session.State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.renderer.Draw(d.surface, res); err != nil {
		d.logger.Warn("failed to draw frame", "seq", res.Frame.Seq, "error", err)
		return
	}
	d.renderer.DrawHUD(d.surface, HUDFor(st))
	d.cleared = false

	if d.cfg.SavePath != "" {
		d.save()
	}
}

// Clear blanks the surface.
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.surface.Clear()
	d.cleared = true
}

// Show displays the surface and waits up to delayMs for a key press. It
// returns the key code or -1. Without a window it returns -1 immediately.
func (d *Display) Show(st session.State, delayMs int) int {
	if d.window == nil {
		return -1
	}

	d.mu.Lock()
	if d.cleared {
		if d.surface.Mat().Empty() {
			d.surface.Resize(DefaultWidth, DefaultHeight)
		}
		d.surface.Clear()
		d.renderer.DrawHUD(d.surface, HUDFor(st))
	}
	d.window.IMShow(d.surface.Mat())
	d.mu.Unlock()

	return d.window.WaitKey(delayMs)
}

// save appends the surface to the output video, opening it on the first frame.
func (d *Display) save() {
	w, h := d.surface.Size()
	if d.writer == nil {
		vw, err := gocv.VideoWriterFile(d.cfg.SavePath, "MJPG", d.cfg.SaveFPS, w, h, true)
		if err != nil {
			d.logger.Error("failed to open output video", "path", d.cfg.SavePath, "error", err)
			d.cfg.SavePath = ""
			return
		}
		d.writer = vw
		d.writerSize = image.Pt(w, h)
		d.logger.Info("saving annotated video", "path", d.cfg.SavePath, "width", w, "height", h)
	}

	// The writer is fixed to the size of the first frame.
	if w != d.writerSize.X || h != d.writerSize.Y {
		d.logger.Debug("frame size changed, not saving frame", "width", w, "height", h)
		return
	}
	if err := d.writer.Write(d.surface.Mat()); err != nil {
		d.logger.Warn("failed to write output frame", "error", err)
		return
	}
	d.written++
}

// Close releases the window and finalizes the output video.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.writer != nil {
		if err := d.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close output video: %w", err))
		}
		d.logger.Info("annotated video saved", "path", d.cfg.SavePath, "frames", d.written)
		d.writer = nil
	}
	if d.window != nil {
		if err := d.window.Close(); err != nil {
			errs = append(errs, err)
		}
		d.window = nil
	}
	if err := d.surface.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
