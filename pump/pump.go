// Package pump feeds frames from a capture source through the pose estimator,
// one frame at a time.
//
// The pump never requests a new frame until the detection for the current one
// has returned, so a slow estimator throttles the source instead of building a
// queue behind it.
package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

// ErrPaused is returned by a Source whose playback was paused. Like io.EOF it
// ends the pump loop without an error.
var ErrPaused = errors.New("source paused")

// Source yields frames. Next blocks until a frame is available.
type Source interface {
	Next(ctx context.Context) (frame.Frame, error)
	Close() error
}

// Detector runs the pose estimator on a frame.
type Detector interface {
	Detect(ctx context.Context, f frame.Frame) (pose.Result, error)
}

// Fatal is implemented by detector errors after which no further frame can
// be processed.
type Fatal interface {
	Fatal() bool
}

// Handler receives each detection result on the pump goroutine.
type Handler func(pose.Result)

// Config tunes a Pump.
type Config struct {
	// DetectTimeout bounds a single Detect call. Zero waits forever.
	DetectTimeout time.Duration

	Logger *slog.Logger
}

// Pump drives a single loop goroutine per Start.
type Pump struct {
	detector Detector
	handle   Handler
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	run     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	onExit  func(run uint64, err error)

	frames   atomic.Uint64
	results  atomic.Uint64
	misses   atomic.Uint64
	failures atomic.Uint64
}

// New creates a stopped pump.
func New(detector Detector, handle Handler, cfg Config) *Pump {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)
	return &Pump{
		detector: detector,
		handle:   handle,
		cfg:      cfg,
		logger:   logger,
		done:     done,
	}
}

// OnExit registers fn to be called when a loop ends, before Stop returns.
// run identifies the loop as returned by Start. err is nil when the source
// ran out or was paused, the context error when stopped, and the failure
// otherwise.
func (p *Pump) OnExit(fn func(run uint64, err error)) {
	p.mu.Lock()
	p.onExit = fn
	p.mu.Unlock()
}

// Start begins pumping from src and returns the id of the loop. If the pump
// is already running the call is a no-op, src is left untouched and the id
// of the active loop is returned.
func (p *Pump) Start(ctx context.Context, src Source) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Debug("pump already running, ignoring start", "run", p.run)
		return p.run
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.run++
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(loopCtx, p.run, src, p.done)
	return p.run
}

// Stop cancels the loop, waits for it to exit and closes the source.
// Calling Stop on a stopped pump does nothing.
func (p *Pump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether a loop is active.
func (p *Pump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Done returns a channel closed when the current loop exits. For a stopped
// pump it is already closed.
func (p *Pump) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *Pump) loop(ctx context.Context, run uint64, src Source, done chan struct{}) {
	defer close(done)

	err := p.pump(ctx, src)

	if cerr := src.Close(); cerr != nil {
		p.logger.Warn("failed to close frame source", "run", run, "error", cerr)
	}

	p.mu.Lock()
	p.running = false
	p.cancel()
	onExit := p.onExit
	p.mu.Unlock()

	if onExit != nil {
		onExit(run, err)
	}
}

func (p *Pump) pump(ctx context.Context, src Source) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrPaused) {
				p.logger.Debug("frame source ended", "reason", err)
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read frame: %w", err)
		}
		p.frames.Add(1)

		res, err := p.detect(ctx, f)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var fatal Fatal
			if errors.As(err, &fatal) && fatal.Fatal() {
				return fmt.Errorf("detector failed: %w", err)
			}
			p.failures.Add(1)
			p.logger.Warn("detection failed, skipping frame", "seq", f.Seq, "error", err)
			continue
		}

		// A stop that raced the detection wins: nothing is delivered after it.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if res.Miss() {
			p.misses.Add(1)
		}
		p.results.Add(1)
		p.handle(res)
	}
}

func (p *Pump) detect(ctx context.Context, f frame.Frame) (pose.Result, error) {
	if p.cfg.DetectTimeout <= 0 {
		return p.detector.Detect(ctx, f)
	}
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DetectTimeout)
	defer cancel()
	return p.detector.Detect(dctx, f)
}

// Stats is a snapshot of pump counters.
type Stats struct {
	Frames   uint64
	Results  uint64
	Misses   uint64
	Failures uint64
}

// Stats returns the counters accumulated over the pump's lifetime.
func (p *Pump) Stats() Stats {
	return Stats{
		Frames:   p.frames.Load(),
		Results:  p.results.Load(),
		Misses:   p.misses.Load(),
		Failures: p.failures.Load(),
	}
}
