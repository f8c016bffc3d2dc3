package enhance

import (
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/enhance/internal/gpu"
	"github.com/gogpu/enhance/internal/shader"
)

// frameJob is one frame handed to an offloaded worker.
type frameJob struct {
	pixels     []byte
	srcW, srcH int
	outW, outH int
	params     gpu.Params
}

type eventKind int

const (
	evReady eventKind = iota + 1
	evResized
	evRendered
	evFailed
)

// workerEvent flows from the worker back to the session.
type workerEvent struct {
	kind     eventKind
	err      error
	fallback bool
	outW     int
	outH     int
	view     hal.TextureView
	render   time.Duration
}

// mailbox connects a session to its worker. Frames go through a single
// slot: a frame the worker has not picked up yet is overwritten by the next
// one and counted as dropped. Program swaps are coalesced the same way.
// Events back to the session queue up until the next Frame drains them;
// consecutive render reports collapse into one.
type mailbox struct {
	mu   sync.Mutex
	cond *sync.Cond

	job     *frameJob
	program string
	closed  bool

	drops uint64
	free  [][]byte

	events []workerEvent
}

func newMailbox() *mailbox {
	mb := &mailbox{}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

// postFrame hands a frame to the worker, replacing any unconsumed one.
// It reports false once the mailbox is closed.
func (mb *mailbox) postFrame(job *frameJob) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return false
	}
	if mb.job != nil {
		mb.drops++
		mb.free = append(mb.free, mb.job.pixels)
	}
	mb.job = job
	mb.cond.Signal()
	return true
}

// postProgram queues a fragment stage for the worker to swap in.
func (mb *mailbox) postProgram(text string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.program = text
	mb.cond.Signal()
}

// next blocks until there is work or the mailbox closes. ok is false once
// closed; pending work is discarded then.
func (mb *mailbox) next() (job *frameJob, program string, ok bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for mb.job == nil && mb.program == "" && !mb.closed {
		mb.cond.Wait()
	}
	if mb.closed {
		return nil, "", false
	}
	job, program = mb.job, mb.program
	mb.job, mb.program = nil, ""
	return job, program, true
}

func (mb *mailbox) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.closed = true
	mb.job = nil
	mb.cond.Broadcast()
}

// buffer returns a frame buffer of n bytes, reusing a returned one when it
// fits.
func (mb *mailbox) buffer(n int) []byte {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.free) > 0 {
		b := mb.free[len(mb.free)-1]
		mb.free = mb.free[:len(mb.free)-1]
		if cap(b) >= n {
			return b[:n]
		}
	}
	return make([]byte, n)
}

func (mb *mailbox) recycle(b []byte) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.free) < 2 {
		mb.free = append(mb.free, b)
	}
}

func (mb *mailbox) emit(ev workerEvent) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if n := len(mb.events); ev.kind == evRendered && n > 0 && mb.events[n-1].kind == evRendered {
		mb.events[n-1] = ev
		return
	}
	mb.events = append(mb.events, ev)
}

func (mb *mailbox) drain() []workerEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	evs := mb.events
	mb.events = nil
	return evs
}

// dropped returns the number of frames overwritten before the worker
// picked them up.
func (mb *mailbox) dropped() uint64 {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.drops
}

// worker owns one offloaded session's device and renderer.
type worker struct {
	mb   *mailbox
	done chan struct{}

	// last requested sizes, touched only by the worker goroutine
	srcW, srcH int
	outW, outH int
}

// startWorker opens the device on a new goroutine, builds the renderer with
// fragment, and serves frames until the mailbox closes. Every GPU handle is
// created and destroyed on that goroutine.
func startWorker(open func() (*gpu.FrameRenderer, error), fragment string) *worker {
	w := &worker{mb: newMailbox(), done: make(chan struct{})}
	go w.run(open, fragment)
	return w
}

func (w *worker) run(open func() (*gpu.FrameRenderer, error), fragment string) {
	defer close(w.done)

	r, err := open()
	if err == nil {
		err = r.Init(fragment, shader.Passthrough())
	}
	if err != nil {
		if r != nil {
			_ = r.Release()
		}
		w.mb.emit(workerEvent{kind: evFailed, err: mapGPUError(err)})
		return
	}
	defer func() {
		if err := r.Release(); err != nil {
			slogger().Warn("enhance: worker release failed", "err", err)
		}
	}()
	w.mb.emit(workerEvent{kind: evReady, fallback: r.UsingFallback()})

	for {
		job, program, ok := w.mb.next()
		if !ok {
			return
		}
		if program != "" {
			if err := r.SwapProgram(program, shader.Passthrough()); err != nil {
				w.mb.emit(workerEvent{kind: evFailed, err: mapGPUError(err)})
				return
			}
		}
		if job == nil {
			continue
		}
		if err := w.render(r, job); err != nil {
			if mapped := mapGPUError(err); isFatal(mapped) {
				w.mb.emit(workerEvent{kind: evFailed, err: mapped})
				return
			}
			slogger().Warn("enhance: frame dropped", "err", err)
		}
	}
}

func (w *worker) render(r *gpu.FrameRenderer, job *frameJob) error {
	defer w.mb.recycle(job.pixels)

	if job.srcW != w.srcW || job.srcH != w.srcH || job.outW != w.outW || job.outH != w.outH {
		aw, ah, err := r.Resize(job.srcW, job.srcH, job.outW, job.outH)
		if err != nil {
			return err
		}
		w.srcW, w.srcH, w.outW, w.outH = job.srcW, job.srcH, job.outW, job.outH
		w.mb.emit(workerEvent{kind: evResized, outW: aw, outH: ah, view: r.Output()})
	}

	start := time.Now()
	if err := r.Draw(job.pixels, job.params); err != nil {
		return err
	}
	w.mb.emit(workerEvent{kind: evRendered, render: time.Since(start)})
	return nil
}

// stop closes the mailbox and waits for the worker to release its handles.
func (w *worker) stop() {
	w.mb.close()
	<-w.done
}
