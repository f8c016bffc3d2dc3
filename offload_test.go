package enhance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMailboxLatestFrameWins(t *testing.T) {
	mb := newMailbox()
	first := mb.buffer(16)
	if !mb.postFrame(&frameJob{pixels: first, srcW: 1}) {
		t.Fatal("postFrame on open mailbox = false")
	}
	if !mb.postFrame(&frameJob{pixels: mb.buffer(16), srcW: 2}) {
		t.Fatal("postFrame on open mailbox = false")
	}
	if mb.dropped() != 1 {
		t.Errorf("dropped = %d, want 1", mb.dropped())
	}

	job, program, ok := mb.next()
	if !ok || job == nil || job.srcW != 2 || program != "" {
		t.Fatalf("next = %+v %q %v, want the second frame", job, program, ok)
	}

	// The overwritten frame's buffer is reused.
	if b := mb.buffer(16); &b[0] != &first[0] {
		t.Error("dropped frame buffer not recycled")
	}
	// Too small buffers are skipped.
	mb.recycle(make([]byte, 4))
	if b := mb.buffer(16); len(b) != 16 {
		t.Errorf("buffer len = %d", len(b))
	}
}

func TestMailboxProgramCoalesced(t *testing.T) {
	mb := newMailbox()
	mb.postProgram("a")
	mb.postProgram("b")
	job, program, ok := mb.next()
	if !ok || job != nil || program != "b" {
		t.Errorf("next = %v %q %v, want only program b", job, program, ok)
	}
}

func TestMailboxClose(t *testing.T) {
	mb := newMailbox()
	done := make(chan bool)
	go func() {
		_, _, ok := mb.next()
		done <- ok
	}()
	mb.close()
	select {
	case ok := <-done:
		if ok {
			t.Error("next after close reported ok")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close did not wake next")
	}
	if mb.postFrame(&frameJob{}) {
		t.Error("postFrame after close = true")
	}
}

func TestMailboxEventsCollapse(t *testing.T) {
	mb := newMailbox()
	mb.emit(workerEvent{kind: evReady})
	mb.emit(workerEvent{kind: evRendered, render: time.Millisecond})
	mb.emit(workerEvent{kind: evRendered, render: 2 * time.Millisecond})
	mb.emit(workerEvent{kind: evResized, outW: 10})
	mb.emit(workerEvent{kind: evRendered, render: 3 * time.Millisecond})

	evs := mb.drain()
	kinds := make([]eventKind, len(evs))
	for i, ev := range evs {
		kinds[i] = ev.kind
	}
	want := []eventKind{evReady, evRendered, evResized, evRendered}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
	if evs[1].render != 2*time.Millisecond {
		t.Errorf("collapsed render = %v, want the latest", evs[1].render)
	}
	if len(mb.drain()) != 0 {
		t.Error("drain left events behind")
	}
}

// newOffloadedRegistry gives every session its own noop device, so workers
// never share a queue.
func newOffloadedRegistry(t *testing.T) (*Registry, *recorder) {
	t.Helper()
	rec := &recorder{}
	caps := ProbeAdapter(noopAdapter(t))
	reg := NewRegistry(caps,
		WithOpener(AdapterOpener(noopAdapter(t))),
		WithAdvisorySink(rec.sink),
	)
	t.Cleanup(reg.ReleaseAll)
	return reg, rec
}

// waitFor steps s until cond holds.
func waitFor(t *testing.T, s *Session, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	now := t0
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s (state %v)", what, s.State())
		}
		if err := s.Frame(now); err != nil {
			t.Fatalf("Frame: %v", err)
		}
		now = now.Add(16 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

func TestOffloadedSession(t *testing.T) {
	reg, _ := newOffloadedRegistry(t)
	src := newSource(640, 360)
	s, err := reg.Acquire(src, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s.Mode() != ModeOffloaded {
		t.Fatalf("mode = %v, want worker-offscreen", s.Mode())
	}

	waitFor(t, s, "active", func() bool { return s.State() == StateActive })
	waitFor(t, s, "output", func() bool {
		w, h := s.OutputSize()
		return w == 1280 && h == 720 && s.Output() != nil
	})

	src.Resize(1280, 720)
	waitFor(t, s, "resize", func() bool {
		w, h := s.OutputSize()
		return w == 2560 && h == 1440
	})

	s.Cleanup()
	if s.State() != StateTerminated {
		t.Errorf("state = %v", s.State())
	}
	if err := s.Frame(time.Now()); !errors.Is(err, ErrTerminated) {
		t.Errorf("Frame after Cleanup = %v", err)
	}
}

func TestOffloadedCrossOrigin(t *testing.T) {
	reg, rec := newOffloadedRegistry(t)
	src := newSource(640, 360)
	s, err := reg.Acquire(src, nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	waitFor(t, s, "active", func() bool { return s.State() == StateActive })

	src.SetBlocked(true)
	if err := s.Frame(t0); !errors.Is(err, ErrCrossOriginBlocked) {
		t.Fatalf("Frame = %v, want ErrCrossOriginBlocked", err)
	}
	if rec.count(AdvisoryCrossOrigin) != 1 {
		t.Errorf("advisories = %v", rec.kinds())
	}
}

func TestOffloadedInitFailure(t *testing.T) {
	rec := &recorder{}
	reg := NewRegistry(Capabilities{MaxSurfaceDimension: 8192, OffscreenSubmission: true},
		WithOpener(func() (Device, error) { return Device{}, ErrNoDevice }),
		WithAdvisorySink(rec.sink),
	)
	t.Cleanup(reg.ReleaseAll)

	s, err := reg.Acquire(newSource(640, 360), nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.State() != StateTerminated {
		if time.Now().After(deadline) {
			t.Fatal("worker failure never surfaced")
		}
		if err := s.Frame(t0); err != nil {
			if !errors.Is(err, ErrNoDevice) && !errors.Is(err, ErrTerminated) {
				t.Errorf("Frame = %v, want ErrNoDevice", err)
			}
			break
		}
		time.Sleep(time.Millisecond)
	}
	if rec.count(AdvisoryContextLost) != 1 {
		t.Errorf("advisories = %v", rec.kinds())
	}
}

func TestOffloadedRunParallel(t *testing.T) {
	reg, _ := newOffloadedRegistry(t)
	var sessions []*Session
	for range 3 {
		s, err := reg.Acquire(newSource(640, 360), nil)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		sessions = append(sessions, s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx, time.Millisecond) }()

	deadline := time.Now().Add(5 * time.Second)
	for _, s := range sessions {
		for {
			w, _ := s.OutputSize()
			if s.State() == StateActive && w == 1280 && s.Frames() >= 2 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("session %v never rendered (state %v)", s.ID(), s.State())
			}
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if reg.Len() != 3 {
		t.Errorf("len = %d, want 3", reg.Len())
	}
}
