// Package perf samples per-session frame rates and raises a one-shot
// low-performance advisory.
package perf

import "time"

// Defaults for NewMonitor.
const (
	// LowFPSThreshold is the frame rate below which a window counts as slow.
	LowFPSThreshold = 15

	// LowFPSWarningCount is the number of consecutive slow windows that
	// raises the advisory.
	LowFPSWarningCount = 5

	// Window is the wall-clock length of one sampling window.
	Window = time.Second
)

// Monitor counts consecutive slow sampling windows. The advisory is latched:
// once raised it is never raised again for the same monitor.
//
// Monitor is not safe for concurrent use; each session owns one and samples
// it from its own frame callback.
type Monitor struct {
	threshold float64
	count     int

	consecutive int
	raised      bool
}

// NewMonitor returns a monitor using LowFPSThreshold and LowFPSWarningCount.
func NewMonitor() *Monitor {
	return &Monitor{threshold: LowFPSThreshold, count: LowFPSWarningCount}
}

// NewMonitorWith returns a monitor with custom limits. Non-positive values
// fall back to the defaults.
func NewMonitorWith(threshold float64, count int) *Monitor {
	m := NewMonitor()
	if threshold > 0 {
		m.threshold = threshold
	}
	if count > 0 {
		m.count = count
	}
	return m
}

// Sample records one window's frame rate and reports whether this sample
// raised the advisory. Only rates in (0, threshold) count as slow; any other
// sample resets the streak.
func (m *Monitor) Sample(fps float64) bool {
	if fps <= 0 || fps >= m.threshold {
		m.consecutive = 0
		return false
	}
	m.consecutive++
	if m.consecutive >= m.count && !m.raised {
		m.raised = true
		return true
	}
	return false
}

// Raised reports whether the advisory has fired.
func (m *Monitor) Raised() bool { return m.raised }

// Streak returns the current number of consecutive slow windows.
func (m *Monitor) Streak() int { return m.consecutive }

// Counter accumulates frames and closes a sampling window once Window has
// elapsed since the window opened.
type Counter struct {
	window time.Duration
	start  time.Time
	frames int
	last   float64
}

// NewCounter returns a counter with the given window length; zero means
// Window.
func NewCounter(window time.Duration) *Counter {
	if window <= 0 {
		window = Window
	}
	return &Counter{window: window}
}

// Tick counts one frame at now. When the window closes it returns the
// window's frame rate and true, and opens the next window at now. A window
// counts the frames after its opening tick, so the first tick only opens.
func (c *Counter) Tick(now time.Time) (float64, bool) {
	if c.start.IsZero() {
		c.start = now
		return 0, false
	}
	c.frames++
	elapsed := now.Sub(c.start)
	if elapsed < c.window {
		return 0, false
	}
	// Frames per window, normalized to per-second.
	fps := float64(c.frames) * float64(time.Second) / float64(elapsed)
	c.last = fps
	c.frames = 0
	c.start = now
	return fps, true
}

// Last returns the rate of the most recently closed window.
func (c *Counter) Last() float64 { return c.last }

// Reset discards the open window.
func (c *Counter) Reset() {
	c.start = time.Time{}
	c.frames = 0
}
