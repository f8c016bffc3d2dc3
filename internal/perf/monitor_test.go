package perf

import (
	"testing"
	"time"
)

func TestMonitorLatchesAfterConsecutiveLowWindows(t *testing.T) {
	m := NewMonitor()
	raised := 0
	for i := 1; i <= 6; i++ {
		if m.Sample(10) {
			raised++
			if i != LowFPSWarningCount {
				t.Errorf("advisory raised on window %d, want %d", i, LowFPSWarningCount)
			}
		}
	}
	if raised != 1 {
		t.Fatalf("raised %d advisories over 6 low windows, want 1", raised)
	}
	if m.Sample(10) {
		t.Error("7th low window raised a second advisory")
	}
	if !m.Raised() {
		t.Error("Raised() = false after advisory")
	}
}

func TestMonitorResetsOnHealthySample(t *testing.T) {
	tests := []struct {
		name  string
		reset float64
	}{
		{"at threshold", LowFPSThreshold},
		{"healthy", 60},
		{"zero", 0},
		{"negative", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor()
			for i := 0; i < LowFPSWarningCount-1; i++ {
				if m.Sample(5) {
					t.Fatal("advisory raised early")
				}
			}
			m.Sample(tt.reset)
			if m.Streak() != 0 {
				t.Fatalf("Streak() = %d after reset sample, want 0", m.Streak())
			}
			for i := 0; i < LowFPSWarningCount-1; i++ {
				if m.Sample(5) {
					t.Fatal("advisory raised before a full streak")
				}
			}
			if !m.Sample(5) {
				t.Error("advisory not raised after a full streak")
			}
		})
	}
}

func TestNewMonitorWith(t *testing.T) {
	m := NewMonitorWith(30, 2)
	m.Sample(25)
	if !m.Sample(25) {
		t.Error("custom monitor did not raise after 2 windows under 30fps")
	}

	d := NewMonitorWith(0, -3)
	if d.threshold != LowFPSThreshold || d.count != LowFPSWarningCount {
		t.Errorf("defaults not applied: %v %d", d.threshold, d.count)
	}
}

func TestCounterWindows(t *testing.T) {
	c := NewCounter(0)
	base := time.Unix(1000, 0)

	var rates []float64
	for i := 0; i <= 30; i++ {
		now := base.Add(time.Duration(i) * 100 * time.Millisecond)
		if fps, ok := c.Tick(now); ok {
			rates = append(rates, fps)
		}
	}
	if len(rates) != 3 {
		t.Fatalf("closed %d windows in 3s, want 3: %v", len(rates), rates)
	}
	for _, r := range rates {
		if r != 10 {
			t.Errorf("window = %v, want 10", r)
		}
	}
	if c.Last() != 10 {
		t.Errorf("Last() = %v, want 10", c.Last())
	}

	c.Reset()
	if _, ok := c.Tick(base.Add(time.Hour)); ok {
		t.Error("first tick after Reset closed a window")
	}
}
