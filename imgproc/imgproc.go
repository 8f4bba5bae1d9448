// Package imgproc adapts OpenCV capture and drawing to the counting pipeline.
package imgproc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/DaniruKun/repcounter/frame"
)

// Number of consecutive empty reads tolerated before a device is considered gone.
const maxEmptyReads = 100

var errDeviceClosed = errors.New("device closed")

// capture reads frames from a VideoCapture and encodes them for the estimator.
type capture struct {
	vc      *gocv.VideoCapture
	mat     gocv.Mat
	quality int
	seq     uint64
}

func newCapture(vc *gocv.VideoCapture, quality int) *capture {
	return &capture{vc: vc, mat: gocv.NewMat(), quality: quality}
}

// read fills c.mat with the next non-empty image.
func (c *capture) read(ctx context.Context) error {
	for empty := 0; ; empty++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := c.vc.Read(&c.mat); !ok {
			return errDeviceClosed
		}
		if !c.mat.Empty() {
			return nil
		}
		if empty >= maxEmptyReads {
			return fmt.Errorf("no image after %d reads", empty)
		}
	}
}

// encode turns the current image into a frame.
func (c *capture) encode() (frame.Frame, error) {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if c.quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, c.mat, []int{int(gocv.IMWriteJpegQuality), c.quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, c.mat)
	}
	if err != nil {
		return frame.Frame{}, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases.
	data := append([]byte(nil), buf.GetBytes()...)

	c.seq++
	return frame.Frame{
		Seq:       c.seq,
		Timestamp: time.Now(),
		Width:     c.mat.Cols(),
		Height:    c.mat.Rows(),
		Data:      data,
	}, nil
}

func (c *capture) close() error {
	if err := c.mat.Close(); err != nil {
		c.vc.Close()
		return err
	}
	return c.vc.Close()
}
