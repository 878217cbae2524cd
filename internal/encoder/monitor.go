package encoder

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessStats contains resource usage statistics for an encoder process.
type ProcessStats struct {
	PID int `json:"pid"`

	CPUPercent float64       `json:"cpu_percent"`
	CPUTotal   time.Duration `json:"cpu_total"`

	MemoryRSSBytes uint64 `json:"memory_rss_bytes"`
	MemoryVMSBytes uint64 `json:"memory_vms_bytes"`

	// BytesFed is the total media bytes written to the encoder's stdin.
	BytesFed uint64 `json:"bytes_fed"`

	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	LastUpdated time.Time     `json:"last_updated"`
}

// ProcessMonitor samples resource usage of an encoder process from /proc.
type ProcessMonitor struct {
	pid       int
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	lastCPUTime   time.Duration
	lastCheckTime time.Time

	bytesFed atomic.Uint64

	clockTicksHz int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID.
func NewProcessMonitor(pid int) *ProcessMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessMonitor{
		pid:       pid,
		startedAt: time.Now(),
		interval:  time.Second,
		// 100 Hz is the common Linux value; sysconf needs cgo.
		clockTicksHz: 100,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	pm.mu.Lock()
	pm.lastCheckTime = time.Now()
	pm.mu.Unlock()

	pm.wg.Add(1)
	go pm.loop()
}

// Stop stops sampling.
func (pm *ProcessMonitor) Stop() {
	pm.cancel()
	pm.wg.Wait()
}

// Stats returns the current process statistics.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := pm.stats
	stats.BytesFed = pm.bytesFed.Load()
	return stats
}

// AddBytesFed adds to the stdin byte counter.
func (pm *ProcessMonitor) AddBytesFed(n uint64) {
	pm.bytesFed.Add(n)
}

func (pm *ProcessMonitor) loop() {
	defer pm.wg.Done()

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()

	pm.sample()
	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.sample()
		}
	}
}

func (pm *ProcessMonitor) sample() {
	now := time.Now()

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.PID = pm.pid
	pm.stats.StartedAt = pm.startedAt
	pm.stats.Duration = now.Sub(pm.startedAt)
	pm.stats.LastUpdated = now

	if runtime.GOOS == "linux" {
		pm.sampleProc(now)
	}
}

// sampleProc reads CPU and memory usage from /proc/[pid].
func (pm *ProcessMonitor) sampleProc(now time.Time) {
	statData, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pm.pid))
	if err != nil {
		return // process may have exited
	}

	// utime and stime follow the parenthesized command name.
	statStr := string(statData)
	commEnd := strings.LastIndex(statStr, ")")
	if commEnd == -1 {
		return
	}
	fields := strings.Fields(statStr[commEnd+2:])
	if len(fields) < 13 {
		return
	}

	utime, _ := strconv.ParseInt(fields[11], 10, 64)
	stime, _ := strconv.ParseInt(fields[12], 10, 64)

	tick := time.Second / time.Duration(pm.clockTicksHz)
	cpuTotal := time.Duration(utime+stime) * tick
	pm.stats.CPUTotal = cpuTotal

	elapsed := now.Sub(pm.lastCheckTime)
	if elapsed > 0 && pm.lastCPUTime > 0 {
		pm.stats.CPUPercent = float64(cpuTotal-pm.lastCPUTime) / float64(elapsed) * 100.0
	}
	pm.lastCPUTime = cpuTotal
	pm.lastCheckTime = now

	statmData, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pm.pid))
	if err != nil {
		return
	}
	statmFields := strings.Fields(string(statmData))
	if len(statmFields) >= 2 {
		pageSize := uint64(os.Getpagesize())
		vms, _ := strconv.ParseUint(statmFields[0], 10, 64)
		rss, _ := strconv.ParseUint(statmFields[1], 10, 64)
		pm.stats.MemoryVMSBytes = vms * pageSize
		pm.stats.MemoryRSSBytes = rss * pageSize
	}
}

// CountingWriter wraps an io.Writer and reports bytes to the monitor.
type CountingWriter struct {
	w       interface{ Write(p []byte) (int, error) }
	monitor *ProcessMonitor
}

// NewCountingWriter creates a writer that counts bytes fed to the encoder.
func NewCountingWriter(w interface{ Write(p []byte) (int, error) }, monitor *ProcessMonitor) *CountingWriter {
	return &CountingWriter{w: w, monitor: monitor}
}

// Write implements io.Writer and tracks bytes written.
func (cw *CountingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.monitor != nil {
		cw.monitor.AddBytesFed(uint64(n))
	}
	return n, err
}
