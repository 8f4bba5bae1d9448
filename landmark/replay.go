package landmark

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

// Record is one line of a landmark recording. A nil set was not detected.
type Record struct {
	Seq         uint64           `json:"seq"`
	Pose        pose.LandmarkSet `json:"pose"`
	LeftHand    pose.LandmarkSet `json:"left_hand,omitempty"`
	RightHand   pose.LandmarkSet `json:"right_hand,omitempty"`
	Face        pose.LandmarkSet `json:"face,omitempty"`
	InferenceMS float64          `json:"inference_ms,omitempty"`
}

func landmarksOf(set pose.LandmarkSet) pose.Landmarks {
	if set == nil {
		return pose.Absent()
	}
	return pose.Present(set)
}

func recordOf(res pose.Result) Record {
	r := Record{Seq: res.Frame.Seq, InferenceMS: res.InferenceMS}
	r.Pose, _ = res.Pose.Get()
	r.LeftHand, _ = res.LeftHand.Get()
	r.RightHand, _ = res.RightHand.Get()
	r.Face, _ = res.Face.Get()
	return r
}

// Replay serves recorded detections by frame sequence number. Frames with
// no record come back as a detection miss.
type Replay struct {
	records map[uint64]Record
}

// LoadReplay reads a JSON-lines recording.
func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open landmark recording: %w", err)
	}
	defer f.Close()
	return ReadReplay(f)
}

// ReadReplay parses a JSON-lines recording from r.
func ReadReplay(r io.Reader) (*Replay, error) {
	rp := &Replay{records: make(map[uint64]Record)}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: failed to parse record: %w", line, err)
		}
		rp.records[rec.Seq] = rec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read landmark recording: %w", err)
	}
	return rp, nil
}

// Len returns the number of recorded frames.
func (r *Replay) Len() int {
	return len(r.records)
}

// Detect returns the recorded landmarks for f.
func (r *Replay) Detect(ctx context.Context, f frame.Frame) (pose.Result, error) {
	if err := ctx.Err(); err != nil {
		return pose.Result{}, err
	}
	rec, ok := r.records[f.Seq]
	if !ok {
		return pose.Result{Frame: f}, nil
	}
	return pose.Result{
		Frame:       f,
		Pose:        landmarksOf(rec.Pose),
		LeftHand:    landmarksOf(rec.LeftHand),
		RightHand:   landmarksOf(rec.RightHand),
		Face:        landmarksOf(rec.Face),
		InferenceMS: rec.InferenceMS,
	}, nil
}

// Close is a no-op.
func (r *Replay) Close() error {
	return nil
}

// Detector is the estimator contract shared by all backends.
type Detector interface {
	Detect(ctx context.Context, f frame.Frame) (pose.Result, error)
	Close() error
}

// Recorder wraps a detector and appends every result it returns to a
// JSON-lines recording that Replay can read back.
type Recorder struct {
	next Detector

	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
	err error
}

// NewRecorder records next's detections to w. If w is an io.Closer it is
// closed with the recorder.
func NewRecorder(next Detector, w io.Writer) *Recorder {
	rec := &Recorder{next: next, enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		rec.c = c
	}
	return rec
}

// Detect forwards to the wrapped detector and records the result. A failed
// write stops the recording but not detection; see Err.
func (r *Recorder) Detect(ctx context.Context, f frame.Frame) (pose.Result, error) {
	res, err := r.next.Detect(ctx, f)
	if err != nil {
		return res, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		if err := r.enc.Encode(recordOf(res)); err != nil {
			r.err = fmt.Errorf("failed to record landmarks: %w", err)
		}
	}
	return res, nil
}

// Err returns the first recording failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the wrapped detector and the recording.
func (r *Recorder) Close() error {
	err := r.next.Close()
	if r.c != nil {
		if cerr := r.c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = r.Err()
	}
	return err
}
