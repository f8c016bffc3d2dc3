package enhance

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/enhance/internal/gpu"
	"github.com/gogpu/enhance/internal/perf"
	"github.com/gogpu/enhance/internal/resolution"
	"github.com/gogpu/enhance/internal/shader"
)

// State is a session's lifecycle state.
//
//	Initializing -> Active <-> Paused -> Terminated
//	Initializing -> Terminated
type State int32

const (
	// StateInitializing: GPU objects are being built. Only offloaded
	// sessions are observed in this state; they leave it on the first
	// Frame after their worker reports.
	StateInitializing State = iota

	// StateActive: frames are rendered.
	StateActive

	// StatePaused: the configuration disables enhancement. GPU objects
	// stay alive and frames are skipped.
	StatePaused

	// StateTerminated is absorbing. Every GPU object has been released.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// sessionEnv is what a registry shares with its sessions.
type sessionEnv struct {
	caps     Capabilities
	mode     Mode
	opener   DeviceOpener
	asm      *shader.Assembler
	sink     AdvisorySink
	lang     language.Tag
	compiler gpu.ShaderCompiler
	window   time.Duration
}

// Session renders one source. Sessions are created by Registry.Acquire.
//
// Frame, Reconfigure, and Cleanup are serialized by the session; they may
// be called from different goroutines but never run concurrently. The
// accessors are safe for concurrent use.
type Session struct {
	id   uuid.UUID
	src  Source
	env  *sessionEnv
	mode Mode
	text readouts

	cfg   atomic.Pointer[Config]
	state atomic.Int32

	mu sync.Mutex

	// cooperative mode
	renderer *gpu.FrameRenderer
	pixels   []byte

	// offloaded mode
	worker *worker

	programID   string
	programName string
	fallback    bool

	srcW, srcH int
	outW, outH int
	output     hal.TextureView

	counter    *perf.Counter
	monitor    *perf.Monitor
	frames     uint64
	lastRender time.Duration
	fpsText    string

	pending  []Advisory
	released bool
}

func newSession(env *sessionEnv, id uuid.UUID, src Source, cfg *Config) (*Session, error) {
	s := &Session{
		id:      id,
		src:     src,
		env:     env,
		mode:    env.mode.resolve(env.caps),
		text:    newReadouts(env.lang),
		counter: perf.NewCounter(env.window),
		monitor: perf.NewMonitor(),
	}
	s.cfg.Store(cfg)
	s.state.Store(int32(StateInitializing))

	asm, err := env.asm.Assemble(cfg.Program, shader.StagesAll)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompileFailed, err)
	}
	s.programID, s.programName = cfg.Program, asm.Name

	if s.mode == ModeOffloaded {
		s.worker = startWorker(s.openRenderer, asm.Text)
		return s, nil
	}

	r, err := s.openRenderer()
	if err != nil {
		return nil, err
	}
	if err := r.Init(asm.Text, shader.Passthrough()); err != nil {
		if rerr := r.Release(); rerr != nil {
			slogger().Warn("enhance: release after failed init", "err", rerr)
		}
		return nil, mapGPUError(err)
	}
	s.renderer = r
	s.fallback = r.UsingFallback()
	s.setEnabledState(StateInitializing, cfg.Enabled)
	return s, nil
}

// openRenderer opens the session's device and wraps it in a renderer.
func (s *Session) openRenderer() (*gpu.FrameRenderer, error) {
	if s.env.opener == nil {
		return nil, ErrNoDevice
	}
	dev, err := s.env.opener()
	if err != nil {
		if !errors.Is(err, ErrNoDevice) {
			err = fmt.Errorf("%w: %w", ErrNoDevice, err)
		}
		return nil, err
	}
	var opts []gpu.ManagerOption
	if dev.Owned {
		opts = append(opts, gpu.WithOwnedDevice())
	}
	if s.env.compiler != nil {
		opts = append(opts, gpu.WithCompiler(s.env.compiler))
	}
	mgr := gpu.NewManager(dev.Device, dev.Queue, gpu.Limits{
		MaxSurfaceDimension: s.env.caps.MaxSurfaceDimension,
		Anisotropy:          s.env.caps.Anisotropy,
		SurfaceFormat:       s.env.caps.SurfaceFormat,
	}, opts...)
	return gpu.NewFrameRenderer(mgr, shader.VertexSource()), nil
}

// setEnabledState moves from one of Initializing, Active, or Paused to
// Active or Paused. It never leaves Terminated.
func (s *Session) setEnabledState(from State, enabled bool) {
	to := StatePaused
	if enabled {
		to = StateActive
	}
	s.state.CompareAndSwap(int32(from), int32(to))
}

// Frame runs one frame step at now. It returns nil when the frame was
// rendered, skipped, or the session is paused or still initializing. It
// returns the fatal error in the frame the session terminates, and
// ErrTerminated afterwards.
func (s *Session) Frame(now time.Time) error {
	if s.State() == StateTerminated {
		return ErrTerminated
	}
	s.mu.Lock()
	err := s.frameLocked(now)
	advs := s.takeAdvisoriesLocked()
	s.mu.Unlock()
	s.publish(advs)
	return err
}

func (s *Session) frameLocked(now time.Time) error {
	if s.State() == StateTerminated {
		return ErrTerminated
	}
	if s.worker != nil {
		if err := s.drainLocked(); err != nil {
			return err
		}
	}
	switch s.State() {
	case StateInitializing, StatePaused:
		return nil
	case StateTerminated:
		return ErrTerminated
	}

	cfg := s.cfg.Load()
	w, h := s.src.Size()
	if w <= 0 || h <= 0 {
		return nil
	}
	if w != s.srcW || h != s.srcH {
		if !s.env.caps.fits(w, h) {
			return s.failLocked(fmt.Errorf("%w: %dx%d, limit %d",
				ErrSourceTooLarge, w, h, s.env.caps.MaxSurfaceDimension))
		}
		if err := s.resizeLocked(cfg, w, h); err != nil {
			return s.checkLocked(err)
		}
	}

	var buf []byte
	if s.worker != nil {
		buf = s.worker.mb.buffer(w * h * 4)
	} else {
		if cap(s.pixels) < w*h*4 {
			s.pixels = make([]byte, w*h*4)
		}
		buf = s.pixels[:w*h*4]
	}
	if err := s.src.ReadFrame(buf); err != nil {
		if s.worker != nil {
			s.worker.mb.recycle(buf)
		}
		return s.checkLocked(err)
	}

	params := gpu.Params{
		SrcWidth:  w,
		SrcHeight: h,
		Sharpen:   cfg.Sharpen,
		Vibrance:  cfg.Vibrance,
		Dither:    cfg.Dither,
	}
	if s.worker != nil {
		s.worker.mb.postFrame(&frameJob{
			pixels: buf,
			srcW:   w, srcH: h,
			outW: s.outW, outH: s.outH,
			params: params,
		})
	} else {
		start := time.Now()
		err := s.renderer.Draw(buf, params)
		s.lastRender = time.Since(start)
		if err != nil {
			return s.checkLocked(mapGPUError(err))
		}
	}

	s.frames++
	s.tickLocked(cfg, now)
	return nil
}

// resizeLocked recomputes the output size for a new source size. The
// caller renders the same frame at the new size.
func (s *Session) resizeLocked(cfg *Config, w, h int) error {
	outW, outH := resolution.Compute(w, h, cfg.resolutionParams(s.env.caps))
	if s.renderer != nil {
		aw, ah, err := s.renderer.Resize(w, h, outW, outH)
		if err != nil {
			return mapGPUError(err)
		}
		outW, outH = aw, ah
		s.output = s.renderer.Output()
	}
	slogger().Debug("enhance: session resized",
		"id", s.id, "src_w", w, "src_h", h, "out_w", outW, "out_h", outH)
	s.srcW, s.srcH = w, h
	s.outW, s.outH = outW, outH
	return nil
}

// checkLocked terminates the session on fatal errors and drops the frame on
// the rest.
func (s *Session) checkLocked(err error) error {
	if isFatal(err) {
		return s.failLocked(err)
	}
	slogger().Warn("enhance: frame dropped", "id", s.id, "err", err)
	return nil
}

// failLocked terminates the session with err and raises the matching
// advisory.
func (s *Session) failLocked(err error) error {
	s.state.Store(int32(StateTerminated))
	slogger().Warn("enhance: session terminated", "id", s.id, "err", err)
	s.releaseLocked()
	s.pending = append(s.pending, s.text.advisory(advisoryFor(err), s.id))
	return err
}

func advisoryFor(err error) AdvisoryKind {
	switch {
	case errors.Is(err, ErrCrossOriginBlocked):
		return AdvisoryCrossOrigin
	case errors.Is(err, ErrSourceClosed):
		return AdvisorySourceClosed
	case errors.Is(err, ErrSourceTooLarge):
		return AdvisorySourceTooLarge
	case errors.Is(err, ErrCompileFailed):
		return AdvisoryCompileFailed
	default:
		return AdvisoryContextLost
	}
}

// drainLocked applies the offloaded worker's reports.
func (s *Session) drainLocked() error {
	for _, ev := range s.worker.mb.drain() {
		switch ev.kind {
		case evReady:
			s.fallback = ev.fallback
			s.setEnabledState(StateInitializing, s.cfg.Load().Enabled)
			slogger().Debug("enhance: offloaded session ready", "id", s.id, "fallback", ev.fallback)
		case evResized:
			s.outW, s.outH, s.output = ev.outW, ev.outH, ev.view
		case evRendered:
			s.lastRender = ev.render
		case evFailed:
			return s.failLocked(ev.err)
		}
	}
	return nil
}

// tickLocked counts the frame and closes the sampling window when due.
func (s *Session) tickLocked(cfg *Config, now time.Time) {
	fps, closed := s.counter.Tick(now)
	if !closed {
		return
	}
	s.fpsText = s.text.fps(cfg, int(math.Round(fps)), s.lastRender)
	if s.monitor.Sample(fps) {
		slogger().Warn("enhance: sustained low frame rate", "id", s.id, "fps", fps)
		s.pending = append(s.pending, s.text.advisory(AdvisoryLowPerformance, s.id))
	}
}

func (s *Session) takeAdvisoriesLocked() []Advisory {
	advs := s.pending
	s.pending = nil
	return advs
}

func (s *Session) publish(advs []Advisory) {
	if s.env.sink == nil {
		return
	}
	for _, a := range advs {
		s.env.sink(a)
	}
}

// Reconfigure replaces the session's configuration. GPU objects are
// rebuilt only when the program changes; post-processing parameters are
// uniforms; a resolution change resizes on the next frame. Enabled toggles
// between Active and Paused.
func (s *Session) Reconfigure(cfg *Config) error {
	if cfg == nil {
		return errors.New("enhance: nil config")
	}
	next := cfg.Normalize()
	if s.State() == StateTerminated {
		return ErrTerminated
	}
	s.mu.Lock()
	err := s.reconfigureLocked(&next)
	advs := s.takeAdvisoriesLocked()
	s.mu.Unlock()
	s.publish(advs)
	return err
}

func (s *Session) reconfigureLocked(next *Config) error {
	if s.State() == StateTerminated {
		return ErrTerminated
	}
	old := s.cfg.Swap(next)

	if next.Enabled {
		s.setEnabledState(StatePaused, true)
	} else {
		s.setEnabledState(StateActive, false)
	}

	if next.Resolution != old.Resolution || next.CustomScale != old.CustomScale || next.Quality != old.Quality {
		s.srcW, s.srcH = 0, 0
	}

	if next.Program == s.programID {
		return nil
	}
	asm, err := s.env.asm.Assemble(next.Program, shader.StagesAll)
	if err != nil {
		return s.failLocked(fmt.Errorf("%w: %w", ErrCompileFailed, err))
	}
	if s.worker != nil {
		s.worker.mb.postProgram(asm.Text)
	} else {
		if err := s.renderer.SwapProgram(asm.Text, shader.Passthrough()); err != nil {
			return s.checkLocked(mapGPUError(err))
		}
		s.fallback = s.renderer.UsingFallback()
	}
	slogger().Debug("enhance: program swapped", "id", s.id, "program", asm.ProgramID)
	s.programID, s.programName = next.Program, asm.Name
	return nil
}

// Cleanup terminates the session and releases every GPU object. Frames
// after Cleanup do nothing. Calling Cleanup again is a no-op.
func (s *Session) Cleanup() {
	s.state.Store(int32(StateTerminated))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

func (s *Session) releaseLocked() {
	if s.released {
		return
	}
	s.released = true
	if s.worker != nil {
		s.worker.stop()
	}
	if s.renderer != nil {
		if err := s.renderer.Release(); err != nil {
			slogger().Warn("enhance: session release incomplete", "id", s.id, "err", err)
		}
	}
	s.output = nil
	s.pixels = nil
	slogger().Info("enhance: session released", "id", s.id, "frames", s.frames)
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

// Source returns the session's source.
func (s *Session) Source() Source { return s.src }

// Mode returns where the session's GPU work runs. Never ModeAuto.
func (s *Session) Mode() Mode { return s.mode }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Config returns the current configuration snapshot.
func (s *Session) Config() *Config { return s.cfg.Load() }

// OutputSize returns the output surface size, zero before the first frame.
func (s *Session) OutputSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outW, s.outH
}

// SourceSize returns the source size seen by the last frame.
func (s *Session) SourceSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srcW, s.srcH
}

// Output returns the view of the output surface, or nil before the first
// frame and after termination. The view is replaced when the surface is
// resized.
func (s *Session) Output() hal.TextureView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// FPSText returns the frame rate readout, refreshed once per sampling
// window. Empty until the first window closes or when both readouts are
// disabled.
func (s *Session) FPSText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fpsText
}

// Label returns "<program name> <w>x<h>", or "" when labels are disabled
// or the output size is not known yet.
func (s *Session) Label() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Load().ShowLabels || s.outW == 0 {
		return ""
	}
	return s.text.label(s.programName, s.outW, s.outH)
}

// UsingFallback reports whether the passthrough stage replaced the
// enhancement program.
func (s *Session) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallback
}

// Frames returns the number of frames rendered or handed to the worker.
func (s *Session) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Dropped returns the number of frames an offloaded worker skipped because
// a newer frame arrived first. Always zero in cooperative mode.
func (s *Session) Dropped() uint64 {
	if s.worker == nil {
		return 0
	}
	return s.worker.mb.dropped()
}
