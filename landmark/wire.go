package landmark

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

// maxMessageSize guards against a corrupt length prefix.
const maxMessageSize = 64 << 20

type wireRequest struct {
	Type      string `msgpack:"type"`
	Seq       uint64 `msgpack:"seq"`
	Timestamp string `msgpack:"timestamp"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Image     []byte `msgpack:"image"`
}

type wireTiming struct {
	InferenceMS float64 `msgpack:"inference_ms"`
}

type wireResponse struct {
	Seq       uint64      `msgpack:"seq"`
	Pose      [][]float64 `msgpack:"pose"`
	LeftHand  [][]float64 `msgpack:"left_hand"`
	RightHand [][]float64 `msgpack:"right_hand"`
	Face      [][]float64 `msgpack:"face"`
	Timing    wireTiming  `msgpack:"timing"`
	Error     string      `msgpack:"error"`
}

func newRequest(f frame.Frame) wireRequest {
	return wireRequest{
		Type:      "frame",
		Seq:       f.Seq,
		Timestamp: f.Timestamp.Format(time.RFC3339Nano),
		Width:     f.Width,
		Height:    f.Height,
		Image:     f.Data,
	}
}

// writeMessage writes v as a 4-byte big-endian length followed by msgpack.
func writeMessage(w io.Writer, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack message: %w", err)
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v interface{}) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(lengthBuf[:])
	if n > maxMessageSize {
		return fmt.Errorf("message length %d exceeds limit", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("failed to read message body: %w", err)
	}

	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal msgpack message: %w", err)
	}
	return nil
}

// toLandmarks converts rows of [x, y, z?, visibility?] into a landmark set.
// A nil slice means the category was not detected. Rows with fewer than two
// values decode as non-finite points.
func toLandmarks(rows [][]float64) pose.Landmarks {
	if rows == nil {
		return pose.Absent()
	}
	set := make(pose.LandmarkSet, len(rows))
	for i, row := range rows {
		var p pose.Point
		switch {
		case len(row) >= 4:
			p.Visibility = row[3]
			fallthrough
		case len(row) == 3:
			p.Z = row[2]
			fallthrough
		case len(row) == 2:
			p.X, p.Y = row[0], row[1]
		default:
			// Too short to place; a non-finite point is treated as missing.
			p.X, p.Y = math.NaN(), math.NaN()
		}
		set[i] = p
	}
	return pose.Present(set)
}

func (r wireResponse) result(f frame.Frame) pose.Result {
	return pose.Result{
		Frame:       f,
		Pose:        toLandmarks(r.Pose),
		LeftHand:    toLandmarks(r.LeftHand),
		RightHand:   toLandmarks(r.RightHand),
		Face:        toLandmarks(r.Face),
		InferenceMS: r.Timing.InferenceMS,
	}
}
