package landmark

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DaniruKun/repcounter/frame"
	"github.com/DaniruKun/repcounter/pose"
)

const defaultStopTimeout = 2 * time.Second

// PythonConfig describes the worker process.
type PythonConfig struct {
	// Command is the executable, usually a wrapper script that activates the
	// worker's virtualenv.
	Command string
	Args    []string
	Options Options

	// StopTimeout is how long Close waits for a clean exit before killing.
	StopTimeout time.Duration

	Logger *slog.Logger
}

// Python runs the holistic landmark model in a subprocess. Frames go to the
// worker's stdin and results come back on stdout, both as length-prefixed
// msgpack messages. Detect calls are serialized.
type Python struct {
	logger      *slog.Logger
	stopTimeout time.Duration

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	exited chan struct{}

	mu      sync.Mutex
	pending chan reply // reply of a call abandoned by its caller
	closed  atomic.Bool
	cause   atomic.Value // error

	detections atomic.Uint64
	failures   atomic.Uint64
}

type reply struct {
	resp wireResponse
	err  error
}

// StartPython spawns the worker process.
func StartPython(ctx context.Context, cfg PythonConfig) (*Python, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("detector command is required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid detector options: %w", err)
	}

	args := append(append([]string{}, cfg.Args...), cfg.Options.Args()...)
	cmd := exec.CommandContext(ctx, cfg.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start detector process: %w", err)
	}

	w := newPython(stdin, bufio.NewReader(stdout), cfg.Logger)
	w.cmd = cmd
	if cfg.StopTimeout > 0 {
		w.stopTimeout = cfg.StopTimeout
	}

	w.logger.Info("detector process spawned",
		"command", cfg.Command,
		"pid", cmd.Process.Pid,
		"model_complexity", cfg.Options.ModelComplexity,
	)

	go w.logStderr(stderr)
	go w.waitProcess()

	return w, nil
}

func newPython(stdin io.WriteCloser, stdout io.Reader, logger *slog.Logger) *Python {
	if logger == nil {
		logger = slog.Default()
	}
	exited := make(chan struct{})
	return &Python{
		logger:      logger,
		stopTimeout: defaultStopTimeout,
		stdin:       stdin,
		stdout:      stdout,
		exited:      exited,
	}
}

// Detect sends f to the worker and waits for its landmarks. If ctx ends
// first the call returns and the late reply is discarded by the next call.
func (w *Python) Detect(ctx context.Context, f frame.Frame) (pose.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.drain(ctx); err != nil {
		return pose.Result{}, err
	}
	if w.closed.Load() {
		return pose.Result{}, w.closedErr()
	}

	ch := make(chan reply, 1)
	go func() {
		if err := writeMessage(w.stdin, newRequest(f)); err != nil {
			ch <- reply{err: err}
			return
		}
		var resp wireResponse
		err := readMessage(w.stdout, &resp)
		ch <- reply{resp: resp, err: err}
	}()

	select {
	case r := <-ch:
		return w.finish(f, r)
	case <-ctx.Done():
		w.pending = ch
		w.failures.Add(1)
		return pose.Result{}, ctx.Err()
	}
}

// drain waits for an abandoned reply so the stream stays in step.
func (w *Python) drain(ctx context.Context) error {
	if w.pending == nil {
		return nil
	}
	select {
	case r := <-w.pending:
		w.pending = nil
		if r.err != nil {
			w.markBroken(r.err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Python) finish(f frame.Frame, r reply) (pose.Result, error) {
	if r.err != nil {
		w.failures.Add(1)
		w.markBroken(r.err)
		return pose.Result{}, w.closedErr()
	}
	if r.resp.Seq != f.Seq {
		w.failures.Add(1)
		w.markBroken(fmt.Errorf("reply for frame %d, expected %d", r.resp.Seq, f.Seq))
		return pose.Result{}, w.closedErr()
	}
	if r.resp.Error != "" {
		w.failures.Add(1)
		return pose.Result{}, fmt.Errorf("worker failed on frame %d: %s", f.Seq, r.resp.Error)
	}

	w.detections.Add(1)
	res := r.resp.result(f)
	w.logger.Debug("landmarks received",
		"seq", f.Seq,
		"pose", res.Pose.IsPresent(),
		"inference_ms", res.InferenceMS,
	)
	return res, nil
}

func (w *Python) markBroken(err error) {
	if w.closed.CompareAndSwap(false, true) {
		w.cause.Store(err)
		w.logger.Error("detector stream broken", "error", err)
	}
}

func (w *Python) closedErr() error {
	cause, _ := w.cause.Load().(error)
	return &closedError{cause: cause}
}

// Close ends the worker: stdin is closed so it can exit on its own, and it is
// killed if it has not exited within the stop timeout.
func (w *Python) Close() error {
	if !w.closed.Swap(true) {
		w.cause.Store(ErrClosed)
	}

	if err := w.stdin.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		w.logger.Debug("failed to close detector stdin", "error", err)
	}

	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}

	select {
	case <-w.exited:
		w.logger.Info("detector process stopped", "detections", w.detections.Load())
	case <-time.After(w.stopTimeout):
		w.logger.Warn("detector stop timeout, killing process", "pid", w.cmd.Process.Pid)
		if err := w.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill detector process: %w", err)
		}
	}
	return nil
}

// Stats reports successful and failed detections.
func (w *Python) Stats() (detections, failures uint64) {
	return w.detections.Load(), w.failures.Load()
}

// logStderr forwards worker log lines, mapping "[LEVEL]" markers to slog levels.
func (w *Python) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		w.logger.Log(context.Background(), workerLogLevel(line), "detector worker", "log", line)
	}
	if err := scanner.Err(); err != nil {
		w.logger.Debug("detector stderr closed", "error", err)
	}
}

func workerLogLevel(line string) slog.Level {
	switch {
	case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
		return slog.LevelError
	case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}

// waitProcess reaps the worker and marks the detector closed if it exits.
func (w *Python) waitProcess() {
	defer close(w.exited)

	err := w.cmd.Wait()
	if w.closed.Load() {
		w.logger.Debug("detector process exited", "error", err)
		return
	}
	if err == nil {
		err = errors.New("detector process exited")
	}
	w.markBroken(err)
}
