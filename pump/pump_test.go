package pump

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

// countingSource yields limit frames then io.EOF. A zero limit never ends.
type countingSource struct {
	limit  uint64
	seq    atomic.Uint64
	closed atomic.Int32
}

func (s *countingSource) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	n := s.seq.Add(1)
	if s.limit > 0 && n > s.limit {
		return frame.Frame{}, io.EOF
	}
	return frame.Frame{Seq: n, Width: 4, Height: 4, Data: []byte{1}}, nil
}

func (s *countingSource) Close() error {
	s.closed.Add(1)
	return nil
}

// slowDetector records how many Detect calls overlap.
type slowDetector struct {
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	fail     func(seq uint64) error
}

func (d *slowDetector) Detect(ctx context.Context, f frame.Frame) (pose.Result, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		m := d.maxSeen.Load()
		if n <= m || d.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	d.calls.Add(1)

	select {
	case <-time.After(d.delay):
	case <-ctx.Done():
		return pose.Result{}, ctx.Err()
	}

	if d.fail != nil {
		if err := d.fail(f.Seq); err != nil {
			return pose.Result{}, err
		}
	}
	return pose.Result{Frame: f, Pose: pose.Present(make(pose.LandmarkSet, pose.NumPoseLandmarks))}, nil
}

type fatalErr struct{}

func (fatalErr) Error() string { return "worker gone" }
func (fatalErr) Fatal() bool   { return true }

func waitDone(t *testing.T, p *Pump) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish")
	}
}

func TestPumpRunsToEOF(t *testing.T) {
	det := &slowDetector{}
	var delivered []uint64
	var mu sync.Mutex
	p := New(det, func(r pose.Result) {
		mu.Lock()
		delivered = append(delivered, r.Frame.Seq)
		mu.Unlock()
	}, Config{})

	exits := make(chan error, 1)
	p.OnExit(func(run uint64, err error) { exits <- err })

	src := &countingSource{limit: 5}
	if run := p.Start(context.Background(), src); run != 1 {
		t.Errorf("got run %d, want 1", run)
	}
	waitDone(t, p)

	if err := <-exits; err != nil {
		t.Errorf("expected natural end, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 5 {
		t.Fatalf("got %d results, want 5", len(delivered))
	}
	for i, seq := range delivered {
		if seq != uint64(i+1) {
			t.Errorf("result %d has seq %d", i, seq)
		}
	}
	if src.closed.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closed.Load())
	}
	if p.Running() {
		t.Error("pump still running after EOF")
	}
}

func TestPumpOneFrameInFlight(t *testing.T) {
	det := &slowDetector{delay: 2 * time.Millisecond}
	p := New(det, func(pose.Result) {}, Config{})

	src := &countingSource{}
	ctx := context.Background()
	first := p.Start(ctx, src)

	// A second start while running must not create another loop.
	other := &countingSource{}
	if run := p.Start(ctx, other); run != first {
		t.Errorf("second start returned run %d, want %d", run, first)
	}

	time.Sleep(50 * time.Millisecond)
	p.Stop()

	if det.maxSeen.Load() != 1 {
		t.Errorf("saw %d concurrent detections, want 1", det.maxSeen.Load())
	}
	if other.seq.Load() != 0 {
		t.Error("second source was read")
	}
	if det.calls.Load() == 0 {
		t.Error("detector never called")
	}
}

func TestPumpStopIsIdempotent(t *testing.T) {
	p := New(&slowDetector{}, func(pose.Result) {}, Config{})

	// Stopping a pump that never ran is a no-op.
	p.Stop()
	p.Stop()

	src := &countingSource{}
	p.Start(context.Background(), src)
	p.Stop()
	p.Stop()

	if p.Running() {
		t.Error("pump running after stop")
	}
	if src.closed.Load() != 1 {
		t.Errorf("source closed %d times, want 1", src.closed.Load())
	}
}

func TestPumpDeliversNothingAfterStop(t *testing.T) {
	det := &slowDetector{delay: time.Millisecond}
	var afterStop atomic.Bool
	var late atomic.Int32
	p := New(det, func(pose.Result) {
		if afterStop.Load() {
			late.Add(1)
		}
	}, Config{})

	p.Start(context.Background(), &countingSource{})
	time.Sleep(20 * time.Millisecond)
	p.Stop()
	afterStop.Store(true)

	calls := det.calls.Load()
	time.Sleep(20 * time.Millisecond)

	if late.Load() != 0 {
		t.Errorf("%d results delivered after stop", late.Load())
	}
	if det.calls.Load() != calls {
		t.Error("detector called after stop")
	}
}

func TestPumpSkipsFailedFrames(t *testing.T) {
	det := &slowDetector{fail: func(seq uint64) error {
		if seq%2 == 0 {
			return errors.New("bad frame")
		}
		return nil
	}}
	var got atomic.Int32
	p := New(det, func(pose.Result) { got.Add(1) }, Config{})

	p.Start(context.Background(), &countingSource{limit: 6})
	waitDone(t, p)

	if got.Load() != 3 {
		t.Errorf("got %d results, want 3", got.Load())
	}
	if s := p.Stats(); s.Failures != 3 || s.Frames != 6 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPumpFatalDetectorError(t *testing.T) {
	det := &slowDetector{fail: func(seq uint64) error {
		if seq == 2 {
			return fatalErr{}
		}
		return nil
	}}
	p := New(det, func(pose.Result) {}, Config{})

	exits := make(chan error, 1)
	p.OnExit(func(run uint64, err error) { exits <- err })

	p.Start(context.Background(), &countingSource{})
	waitDone(t, p)

	err := <-exits
	var fatal fatalErr
	if !errors.As(err, &fatal) {
		t.Errorf("expected fatal detector error, got %v", err)
	}
}

func TestPumpDetectTimeout(t *testing.T) {
	det := &slowDetector{delay: time.Second}
	p := New(det, func(pose.Result) {}, Config{DetectTimeout: 5 * time.Millisecond})

	p.Start(context.Background(), &countingSource{limit: 2})
	waitDone(t, p)

	if s := p.Stats(); s.Failures != 2 || s.Results != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPumpStopReportsCancellation(t *testing.T) {
	p := New(&slowDetector{delay: time.Millisecond}, func(pose.Result) {}, Config{})

	var exitErr error
	p.OnExit(func(run uint64, err error) { exitErr = err })

	p.Start(context.Background(), &countingSource{})
	p.Stop()

	// OnExit has run by the time Stop returns.
	if !errors.Is(exitErr, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", exitErr)
	}
}
