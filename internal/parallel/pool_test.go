package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolSize(t *testing.T) {
	p := NewWorkerPool(3)
	defer p.Close()
	if p.Workers() != 3 {
		t.Errorf("Workers() = %d, want 3", p.Workers())
	}

	d := NewWorkerPool(-1)
	defer d.Close()
	if d.Workers() != runtime.GOMAXPROCS(0) {
		t.Errorf("Workers() = %d, want GOMAXPROCS", d.Workers())
	}
}

func TestWorkerPoolExecuteAll(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var n atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { n.Add(1) }
	}
	p.ExecuteAll(work)
	if n.Load() != 100 {
		t.Errorf("ran %d items, want 100", n.Load())
	}
	p.ExecuteAll(nil)
}

func TestWorkerPoolSlowItemDoesNotBlockOthers(t *testing.T) {
	p := NewWorkerPool(2)
	defer p.Close()

	var fast atomic.Int64
	work := []func(){func() { time.Sleep(50 * time.Millisecond) }}
	for range 20 {
		work = append(work, func() { fast.Add(1) })
	}
	p.ExecuteAll(work)
	if fast.Load() != 20 {
		t.Errorf("fast items = %d, want 20", fast.Load())
	}
}

func TestWorkerPoolAfterClose(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	p.Close()

	ran := false
	p.ExecuteAll([]func(){func() { ran = true }})
	if !ran {
		t.Error("ExecuteAll after Close dropped work")
	}
}
