package encoder

import (
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder returns an Encoder supervising an arbitrary binary instead of
// ffmpeg so process control can be exercised without media tooling.
func fakeEncoder(t *testing.T, binary string, args ...string) *Encoder {
	t.Helper()
	path, err := exec.LookPath(binary)
	if err != nil {
		t.Skipf("%s not available", binary)
	}
	return &Encoder{
		binary: path,
		args:   args,
		logger: testLogger(),
		exitCh: make(chan struct{}),
	}
}

func TestStartAndCleanStop(t *testing.T) {
	e := fakeEncoder(t, "cat")

	var exitCalls atomic.Int32
	var exitErr atomic.Value
	e.OnExit(func(err error) {
		exitCalls.Add(1)
		if err != nil {
			exitErr.Store(err)
		}
	})

	require.NoError(t, e.Start())
	assert.True(t, e.Running())
	assert.Greater(t, e.PID(), 0)

	n, err := e.Write([]byte("media bytes"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	require.NoError(t, e.Stop(5*time.Second))
	assert.False(t, e.Running())
	assert.NoError(t, e.ExitErr())

	// Exit callback fired exactly once with no error.
	assert.Eventually(t, func() bool { return exitCalls.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Nil(t, exitErr.Load())

	// Writes after stop are rejected.
	_, err = e.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrNotRunning)

	// Stopping again is a no-op.
	assert.NoError(t, e.Stop(time.Second))
}

func TestStartTwice(t *testing.T) {
	e := fakeEncoder(t, "cat")
	require.NoError(t, e.Start())
	assert.ErrorIs(t, e.Start(), ErrAlreadyStarted)
	require.NoError(t, e.Stop(5*time.Second))
}

func TestStopKillsAfterGrace(t *testing.T) {
	// sleep ignores stdin EOF, so Stop must escalate to SIGKILL.
	e := fakeEncoder(t, "sleep", "30")
	require.NoError(t, e.Start())

	start := time.Now()
	require.NoError(t, e.Stop(200*time.Millisecond))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, e.Running())
	assert.Error(t, e.ExitErr())
}

func TestPauseResume(t *testing.T) {
	e := fakeEncoder(t, "cat")
	require.NoError(t, e.Start())
	defer func() { _ = e.Stop(5 * time.Second) }()

	assert.False(t, e.Paused())
	require.NoError(t, e.Pause())
	assert.True(t, e.Paused())

	// Pausing again is a no-op.
	require.NoError(t, e.Pause())
	assert.True(t, e.Paused())

	require.NoError(t, e.Resume())
	assert.False(t, e.Paused())
	require.NoError(t, e.Resume())
}

func TestStopResumesPausedProcess(t *testing.T) {
	e := fakeEncoder(t, "cat")
	require.NoError(t, e.Start())
	require.NoError(t, e.Pause())

	// A paused cat cannot drain stdin; Stop must SIGCONT it first.
	require.NoError(t, e.Stop(5*time.Second))
	assert.NoError(t, e.ExitErr())
}

func TestControlBeforeStart(t *testing.T) {
	e := fakeEncoder(t, "cat")
	assert.ErrorIs(t, e.Pause(), ErrNotRunning)
	assert.ErrorIs(t, e.Resume(), ErrNotRunning)
	assert.ErrorIs(t, e.Stop(time.Second), ErrNotRunning)
	_, err := e.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Zero(t, e.PID())
	assert.Nil(t, e.Stats())
}

func TestLaunchFailure(t *testing.T) {
	e := &Encoder{
		binary: "/nonexistent/ffmpeg",
		logger: testLogger(),
		exitCh: make(chan struct{}),
	}
	assert.Error(t, e.Start())
}

func TestStatsTracksBytesFed(t *testing.T) {
	e := fakeEncoder(t, "cat")
	require.NoError(t, e.Start())
	defer func() { _ = e.Stop(5 * time.Second) }()

	_, err := e.Write(make([]byte, 4096))
	require.NoError(t, err)

	// The feed goroutine moves queued bytes onto the pipe asynchronously.
	assert.Eventually(t, func() bool {
		stats := e.Stats()
		return stats != nil && stats.BytesFed == 4096
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, e.PID(), e.Stats().PID)
}

func TestWriteDoesNotBlockOnStalledProcess(t *testing.T) {
	// sleep never reads stdin, so the pipe and then the feed queue fill up.
	e := fakeEncoder(t, "sleep", "30")
	require.NoError(t, e.Start())
	defer func() { _ = e.Stop(0) }()

	chunk := make([]byte, 256*1024)
	done := make(chan error, 1)
	go func() {
		var lastErr error
		for i := 0; i < feedQueueDepth+8; i++ {
			if _, err := e.Write(chunk); err != nil {
				lastErr = err
			}
		}
		done <- lastErr
	}()

	select {
	case lastErr := <-done:
		assert.ErrorIs(t, lastErr, ErrInputStalled)
	case <-time.After(2 * time.Second):
		t.Fatal("Write blocked once the process stopped draining stdin")
	}
}
