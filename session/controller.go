// Package session owns the counting session: it starts and stops the frame
// pump, feeds detections through the classifier into the rep counter and
// reports what happened to the presenter and event sinks.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DaniruKun/repcounter/motion"
	"github.com/DaniruKun/repcounter/pose"
	"github.com/DaniruKun/repcounter/pump"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrVideoUnavailable  = errors.New("video unavailable")
	ErrDisposed          = errors.New("session disposed")
)

// Status messages.
const (
	msgIdle          = "Webcam is stopped"
	msgCameraRunning = "Webcam is running..."
	msgCameraStopped = "Webcam is stopped"
	msgVideoRunning  = "Playing video..."
	msgVideoStopped  = "Video stopped"
	msgVideoEnded    = "video ended"
	msgVideoPaused   = "Video paused"
)

const eventBuffer = 64

// Opener acquires frame sources.
type Opener interface {
	OpenCamera(ctx context.Context) (pump.Source, error)
	OpenVideo(ctx context.Context, path string) (pump.Source, error)
}

// pausable is implemented by sources whose playback can be paused. A paused
// source ends the run without it counting as the end of the video.
type pausable interface {
	Paused() bool
}

// Detector is the landmark estimator owned by the controller.
type Detector interface {
	pump.Detector
	Close() error
}

// Presenter shows detection results. Present is called on the pump
// goroutine, Clear from whichever goroutine stopped the session.
type Presenter interface {
	Present(res pose.Result, st State)
	Clear()
}

// Sink consumes session events.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// Options configure a Controller.
type Options struct {
	Opener     Opener
	Detector   Detector
	Classifier motion.Classifier

	// Presenter and Sinks are optional.
	Presenter Presenter
	Sinks     []Sink

	DetectTimeout time.Duration
	Logger        *slog.Logger
}

// Controller is the session controller. All methods are safe for concurrent
// use.
type Controller struct {
	opener     Opener
	detector   Detector
	classifier motion.Classifier
	presenter  Presenter
	sinks      []Sink
	logger     *slog.Logger
	pump       *pump.Pump

	ctx    context.Context
	cancel context.CancelFunc

	// op serializes control operations. It is never taken by the pump.
	op sync.Mutex

	mu       sync.Mutex
	counter  motion.Counter
	state    State
	run      uint64
	src      pump.Source
	disposed bool

	events chan Event
	sinkWG sync.WaitGroup
}

// New creates an idle controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		opener:     opts.Opener,
		detector:   opts.Detector,
		classifier: opts.Classifier,
		presenter:  opts.Presenter,
		sinks:      opts.Sinks,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		state:      State{Status: StatusIdle, Message: msgIdle},
		events:     make(chan Event, eventBuffer),
	}
	c.pump = pump.New(opts.Detector, c.handle, pump.Config{
		DetectTimeout: opts.DetectTimeout,
		Logger:        logger,
	})
	c.pump.OnExit(c.exited)

	c.sinkWG.Add(1)
	go c.dispatch()
	return c
}

// Start begins counting from the camera. It does nothing if the camera is
// already running, and stops a playing video first.
func (c *Controller) Start(ctx context.Context) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	st := c.state
	c.mu.Unlock()

	if st.Running {
		if st.Source == SourceCamera {
			return nil
		}
		c.stop()
	}

	src, err := c.opener.OpenCamera(ctx)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		c.fail(SourceCamera, "", err)
		return err
	}
	c.begin(src, SourceCamera, "")
	return nil
}

// LoadVideo plays the file at path through the counting pipeline, stopping
// any running session first. A file that cannot be opened leaves the
// controller stopped with an error status.
func (c *Controller) LoadVideo(ctx context.Context, path string) error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}

	c.stop()

	src, err := c.opener.OpenVideo(ctx, path)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrVideoUnavailable, err)
		c.fail(SourceVideo, path, err)
		return err
	}
	c.begin(src, SourceVideo, path)
	return nil
}

// Stop ends the running session and clears the display. It does nothing
// when no session is running.
func (c *Controller) Stop() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}

	c.stop()
	return nil
}

// Reset zeroes the rep count and re-arms the counter. A running session keeps
// running.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.counter.Reset()
	c.state.RepCount = 0
	c.state.Raised = false
	ev := c.eventLocked(EventReset)
	c.mu.Unlock()

	c.logger.Info("rep count reset", "session_id", ev.SessionID)
	c.emit(ev)
	return nil
}

// Dispose stops the session, closes the detector and flushes pending events.
// Every later call returns ErrDisposed.
func (c *Controller) Dispose() error {
	c.op.Lock()
	defer c.op.Unlock()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.mu.Unlock()

	c.stop()

	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()

	c.cancel()
	close(c.events)
	c.sinkWG.Wait()

	if c.detector == nil {
		return nil
	}
	if err := c.detector.Close(); err != nil {
		return fmt.Errorf("failed to close detector: %w", err)
	}
	return nil
}

// State returns a snapshot of the session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done returns a channel that is closed when the current run ends.
func (c *Controller) Done() <-chan struct{} {
	return c.pump.Done()
}

// PumpStats exposes the frame pump counters.
func (c *Controller) PumpStats() pump.Stats {
	return c.pump.Stats()
}

func (c *Controller) begin(src pump.Source, source, path string) {
	c.mu.Lock()
	c.state.Running = true
	c.state.Status = StatusRunning
	c.state.Source = source
	c.state.Path = path
	c.state.SessionID = uuid.NewString()
	if source == SourceVideo {
		c.state.Message = msgVideoRunning
	} else {
		c.state.Message = msgCameraRunning
	}
	ev := c.eventLocked(EventStarted)

	// The pump lock is never taken while holding ours, so starting under
	// c.mu keeps the run id and state in step with the loop's exit.
	c.run = c.pump.Start(c.ctx, src)
	c.src = src
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", ev.SessionID, "source", source, "path", path)
	c.emit(ev)
}

// stop must be called with c.op held.
func (c *Controller) stop() {
	c.mu.Lock()
	running := c.state.Running
	c.mu.Unlock()
	if !running {
		return
	}

	c.pump.Stop()
	if c.presenter != nil {
		c.presenter.Clear()
	}

	c.mu.Lock()
	c.state.Running = false
	c.state.Status = StatusStopped
	if c.state.Source == SourceVideo {
		c.state.Message = msgVideoStopped
	} else {
		c.state.Message = msgCameraStopped
	}
	ev := c.eventLocked(EventStopped)
	c.mu.Unlock()

	c.logger.Info("session stopped", "session_id", ev.SessionID, "rep_count", ev.RepCount)
	c.emit(ev)
}

// fail records a source that could not be opened. Whatever a finished run
// left on the presenter is cleared.
func (c *Controller) fail(source, path string, err error) {
	if c.presenter != nil {
		c.presenter.Clear()
	}

	c.mu.Lock()
	c.state.Running = false
	c.state.Status = StatusError
	c.state.Source = source
	c.state.Path = path
	c.state.SessionID = ""
	c.state.Message = err.Error()
	ev := c.eventLocked(EventError)
	c.mu.Unlock()

	c.logger.Error("failed to start session", "source", source, "path", path, "error", err)
	c.emit(ev)
}

// handle runs on the pump goroutine for every detection result.
func (c *Controller) handle(res pose.Result) {
	c.mu.Lock()
	var (
		ev      Event
		counted bool
	)
	if set, ok := res.Pose.Get(); ok {
		feat := c.classifier.Classify(set)
		c.logger.Debug("arm state",
			"seq", res.Frame.Seq,
			"arms", feat.Arms,
			"state", c.counter.State(),
			"legs_apart", feat.LegsApart,
		)
		if c.counter.Observe(feat.Arms) {
			counted = true
			c.state.RepCount = c.counter.Count()
			ev = c.eventLocked(EventRep)
			ev.Pose = append(pose.LandmarkSet(nil), set...)
		}
		c.state.Raised = c.counter.Raised()
	}
	st := c.state
	c.mu.Unlock()

	if counted {
		c.logger.Info("rep counted", "session_id", st.SessionID, "rep_count", st.RepCount)
		c.emit(ev)
	}
	if c.presenter != nil {
		c.presenter.Present(res, st)
	}
}

// exited runs when a pump loop ends, before Stop returns.
func (c *Controller) exited(run uint64, err error) {
	c.mu.Lock()
	if run != c.run || !c.state.Running {
		c.mu.Unlock()
		return
	}
	if errors.Is(err, context.Canceled) {
		// Stop finishes the bookkeeping.
		c.mu.Unlock()
		return
	}

	c.state.Running = false
	p, ok := c.src.(pausable)
	paused := ok && p.Paused()

	var ev Event
	switch {
	case err != nil:
		c.state.Status = StatusError
		c.state.Message = err.Error()
		ev = c.eventLocked(EventError)
	case paused:
		c.state.Status = StatusStopped
		c.state.Message = msgVideoPaused
		ev = c.eventLocked(EventStopped)
	default:
		c.state.Status = StatusEnded
		if c.state.Source == SourceVideo {
			c.state.Message = msgVideoEnded
		} else {
			c.state.Message = msgCameraStopped
		}
		ev = c.eventLocked(EventEnded)
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("session failed", "session_id", ev.SessionID, "error", err)
	} else {
		c.logger.Info("session ended", "session_id", ev.SessionID, "rep_count", ev.RepCount)
	}
	c.emit(ev)
}

func (c *Controller) eventLocked(kind EventKind) Event {
	return Event{
		Kind:      kind,
		SessionID: c.state.SessionID,
		Source:    c.state.Source,
		Path:      c.state.Path,
		RepCount:  c.state.RepCount,
		Status:    c.state.Status,
		Message:   c.state.Message,
		At:        time.Now(),
	}
}

// emit queues ev for the sinks without blocking the caller. Events are
// dropped when the sinks fall behind.
func (c *Controller) emit(ev Event) {
	if len(c.sinks) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event queue full, dropping event", "kind", ev.Kind, "session_id", ev.SessionID)
	}
}

func (c *Controller) dispatch() {
	defer c.sinkWG.Done()
	for ev := range c.events {
		for _, s := range c.sinks {
			if err := s.Handle(context.Background(), ev); err != nil {
				c.logger.Warn("event sink failed", "kind", ev.Kind, "error", err)
			}
		}
	}
}
