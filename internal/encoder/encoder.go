package encoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Sentinel errors for encoder state.
var (
	ErrNotRunning     = errors.New("encoder is not running")
	ErrAlreadyStarted = errors.New("encoder already started")
	ErrInputStalled   = errors.New("encoder input queue is full")
)

// maxStderrLines is the number of recent stderr lines kept for diagnostics.
const maxStderrLines = 100

// feedQueueDepth bounds how many chunks may wait for the stdin pipe. When
// the process stops draining its input the queue fills and further writes
// fail with ErrInputStalled instead of blocking the caller.
const feedQueueDepth = 16

// Encoder supervises a single ffmpeg subprocess fed over stdin.
type Encoder struct {
	binary   string
	args     []string
	profile  Profile
	output   string
	logLevel string
	logger   *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	feed        *CountingWriter
	feedCh      chan []byte
	monitor     *ProcessMonitor
	started     time.Time
	paused      bool
	stdinClosed bool
	exited      bool
	exitErr     error
	onExit      func(error)
	exitCh      chan struct{}

	stderrMu    sync.RWMutex
	stderrLines []string
}

// New creates an encoder that writes the given profile to outputPath.
// Call Start to launch the process.
func New(binary string, profile Profile, logLevel, outputPath string, logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	if logLevel == "" {
		logLevel = "error"
	}
	return &Encoder{
		binary:   binary,
		args:     profile.Args(logLevel, outputPath),
		profile:  profile,
		output:   outputPath,
		logLevel: logLevel,
		logger:   logger,
		exitCh:   make(chan struct{}),
	}
}

// OnExit registers a callback invoked exactly once when the process exits,
// with the process's exit error (nil on clean exit). Must be called before
// Start.
func (e *Encoder) OnExit(fn func(error)) {
	e.mu.Lock()
	e.onExit = fn
	e.mu.Unlock()
}

// String returns the full command line.
func (e *Encoder) String() string {
	return e.binary + " " + strings.Join(e.args, " ")
}

// Start launches the ffmpeg process. The returned error covers launch
// failures only; runtime failures surface through OnExit.
func (e *Encoder) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(e.binary, e.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("getting stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.started = time.Now()
	e.monitor = NewProcessMonitor(cmd.Process.Pid)
	e.monitor.Start()
	e.feed = NewCountingWriter(stdin, e.monitor)
	e.feedCh = make(chan []byte, feedQueueDepth)

	go e.feedLoop()
	go e.captureStderr(stderr)
	go e.waitForExit()

	e.logger.Info("encoder started",
		slog.Int("pid", cmd.Process.Pid),
		slog.String("output", e.output),
		slog.String("profile", string(e.profile.Name)),
	)
	return nil
}

// waitForExit reaps the process and fans out the exit status.
func (e *Encoder) waitForExit() {
	err := e.cmd.Wait()

	e.mu.Lock()
	e.exited = true
	e.exitErr = err
	onExit := e.onExit
	e.monitor.Stop()
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("encoder exited with error",
			slog.String("error", err.Error()),
			slog.String("stderr_tail", e.lastStderrLine()),
		)
	} else {
		e.logger.Debug("encoder exited cleanly")
	}

	close(e.exitCh)
	if onExit != nil {
		onExit(err)
	}
}

// captureStderr keeps the most recent stderr lines in a ring for diagnostics.
func (e *Encoder) captureStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		e.stderrMu.Lock()
		if len(e.stderrLines) >= maxStderrLines {
			e.stderrLines = e.stderrLines[1:]
		}
		e.stderrLines = append(e.stderrLines, line)
		e.stderrMu.Unlock()
	}
}

// StderrLines returns a copy of the recent stderr lines.
func (e *Encoder) StderrLines() []string {
	e.stderrMu.RLock()
	defer e.stderrMu.RUnlock()
	lines := make([]string, len(e.stderrLines))
	copy(lines, e.stderrLines)
	return lines
}

func (e *Encoder) lastStderrLine() string {
	e.stderrMu.RLock()
	defer e.stderrMu.RUnlock()
	if len(e.stderrLines) == 0 {
		return ""
	}
	return e.stderrLines[len(e.stderrLines)-1]
}

// feedLoop moves queued chunks onto the stdin pipe. Keeping the pipe write
// on its own goroutine means a stalled process backs up the bounded queue
// instead of the callers of Write. Once the queue is closed the remaining
// chunks are flushed and stdin is closed so the process sees end-of-input.
func (e *Encoder) feedLoop() {
	for {
		select {
		case data, ok := <-e.feedCh:
			if !ok {
				e.mu.Lock()
				_ = e.stdin.Close()
				e.mu.Unlock()
				return
			}
			if _, err := e.feed.Write(data); err != nil {
				e.logger.Debug("encoder feed write failed",
					slog.String("error", err.Error()),
				)
			}
		case <-e.exitCh:
			return
		}
	}
}

// Write queues media bytes for the encoder's stdin. It never blocks:
// when the process has stopped draining its input and the queue is full
// the chunk is rejected with ErrInputStalled. Returns ErrNotRunning once
// the process has exited or stdin was closed.
func (e *Encoder) Write(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.exited || e.stdinClosed {
		return 0, ErrNotRunning
	}

	// Copy so the caller may reuse its buffer after we return.
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case e.feedCh <- buf:
		return len(p), nil
	default:
		return 0, ErrInputStalled
	}
}

// Pause suspends the encoder process with SIGSTOP. Pausing a paused
// encoder is a no-op.
func (e *Encoder) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.exited {
		return ErrNotRunning
	}
	if e.paused {
		return nil
	}
	if err := e.cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		return fmt.Errorf("pausing encoder: %w", err)
	}
	e.paused = true
	e.logger.Debug("encoder paused", slog.Int("pid", e.cmd.Process.Pid))
	return nil
}

// Resume resumes a paused encoder process with SIGCONT. Resuming a running
// encoder is a no-op.
func (e *Encoder) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd == nil || e.exited {
		return ErrNotRunning
	}
	if !e.paused {
		return nil
	}
	if err := e.cmd.Process.Signal(syscall.SIGCONT); err != nil {
		return fmt.Errorf("resuming encoder: %w", err)
	}
	e.paused = false
	e.logger.Debug("encoder resumed", slog.Int("pid", e.cmd.Process.Pid))
	return nil
}

// Paused reports whether the encoder is currently suspended.
func (e *Encoder) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Running reports whether the process has been started and not yet exited.
func (e *Encoder) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cmd != nil && !e.exited
}

// Stop closes stdin so ffmpeg flushes and exits, waiting up to grace for a
// clean exit. A paused encoder is resumed first so it can drain. If the
// process outlives the grace period it is killed.
func (e *Encoder) Stop(grace time.Duration) error {
	e.mu.Lock()
	if e.cmd == nil {
		e.mu.Unlock()
		return ErrNotRunning
	}
	if e.exited {
		e.mu.Unlock()
		return nil
	}
	if e.paused {
		if err := e.cmd.Process.Signal(syscall.SIGCONT); err == nil {
			e.paused = false
		}
	}
	if !e.stdinClosed {
		e.stdinClosed = true
		// The feed loop flushes whatever is queued and then closes stdin.
		close(e.feedCh)
	}
	e.mu.Unlock()

	select {
	case <-e.exitCh:
		return nil
	case <-time.After(grace):
	}

	e.logger.Warn("encoder did not exit within grace period, killing",
		slog.Duration("grace", grace),
	)
	e.mu.Lock()
	if !e.exited {
		_ = e.cmd.Process.Kill()
	}
	e.mu.Unlock()

	<-e.exitCh
	return nil
}

// ExitErr returns the process exit error once it has exited.
func (e *Encoder) ExitErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exitErr
}

// Duration returns how long the encoder has been running.
func (e *Encoder) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started.IsZero() {
		return 0
	}
	return time.Since(e.started)
}

// Stats returns current process statistics, or nil before Start.
func (e *Encoder) Stats() *ProcessStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.monitor == nil {
		return nil
	}
	stats := e.monitor.Stats()
	return &stats
}

// PID returns the process ID, or 0 before Start.
func (e *Encoder) PID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cmd == nil || e.cmd.Process == nil {
		return 0
	}
	return e.cmd.Process.Pid
}
