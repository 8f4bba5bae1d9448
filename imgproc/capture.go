package imgproc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pump"
)

// Camera is a live capture device.
type Camera struct {
	*capture
	device int
}

// OpenCamera opens the device and requests the configured resolution.
// Devices that cannot honour it keep their native size.
func OpenCamera(cfg Config) (*Camera, error) {
	vc, err := gocv.VideoCaptureDevice(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera %d is not available", cfg.Device)
	}

	w, h := cfg.size()
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(h))

	return &Camera{capture: newCapture(vc, cfg.JPEGQuality), device: cfg.Device}, nil
}

// Next blocks until the device delivers an image.
func (c *Camera) Next(ctx context.Context) (frame.Frame, error) {
	if err := c.read(ctx); err != nil {
		if errors.Is(err, errDeviceClosed) {
			return frame.Frame{}, fmt.Errorf("camera %d: %w", c.device, err)
		}
		return frame.Frame{}, err
	}
	return c.encode()
}

func (c *Camera) Close() error {
	return c.close()
}

// VideoFile plays a media file frame by frame.
type VideoFile struct {
	*capture
	frameCount int
	fps        float64
	paused     atomic.Bool

	// first holds the frame decoded while probing the file.
	first *frame.Frame
}

// OpenVideoFile opens path and decodes its first frame, so a file that
// OpenCV cannot read is rejected before anything is pumped.
func OpenVideoFile(path string, cfg Config) (*VideoFile, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video file %s: %w", path, err)
	}

	v := &VideoFile{
		capture:    newCapture(vc, cfg.JPEGQuality),
		frameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		fps:        vc.Get(gocv.VideoCaptureFPS),
	}

	if err := v.read(context.Background()); err != nil {
		v.close()
		return nil, fmt.Errorf("no decodable frames in %s: %w", path, err)
	}
	f, err := v.encode()
	if err != nil {
		v.close()
		return nil, err
	}
	v.first = &f
	return v, nil
}

// Next returns io.EOF at the end of the file and pump.ErrPaused while paused.
func (v *VideoFile) Next(ctx context.Context) (frame.Frame, error) {
	if v.paused.Load() {
		return frame.Frame{}, pump.ErrPaused
	}
	if v.first != nil {
		f := *v.first
		v.first = nil
		return f, nil
	}
	if err := v.read(ctx); err != nil {
		if errors.Is(err, errDeviceClosed) {
			return frame.Frame{}, io.EOF
		}
		return frame.Frame{}, err
	}
	return v.encode()
}

// Pause makes the next read end playback. Playback cannot be resumed, the
// file has to be loaded again.
func (v *VideoFile) Pause() { v.paused.Store(true) }

func (v *VideoFile) Paused() bool { return v.paused.Load() }

// FrameCount is the container's frame count, which may be an estimate.
func (v *VideoFile) FrameCount() int { return v.frameCount }

func (v *VideoFile) FPS() float64 { return v.fps }

func (v *VideoFile) Close() error {
	return v.close()
}

// Opener opens capture sources for the session controller.
type Opener struct {
	Config Config

	// OnVideo, when set, is called with every video file that opens.
	OnVideo func(*VideoFile)

	video atomic.Pointer[VideoFile]
}

func (o *Opener) OpenCamera(ctx context.Context) (pump.Source, error) {
	o.video.Store(nil)
	return OpenCamera(o.Config)
}

func (o *Opener) OpenVideo(ctx context.Context, path string) (pump.Source, error) {
	v, err := OpenVideoFile(path, o.Config)
	if err != nil {
		return nil, err
	}
	o.video.Store(v)
	if o.OnVideo != nil {
		o.OnVideo(v)
	}
	return v, nil
}

// PauseVideo pauses the most recently opened video. It reports false when
// the camera is the active source.
func (o *Opener) PauseVideo() bool {
	v := o.video.Load()
	if v == nil {
		return false
	}
	v.Pause()
	return true
}
