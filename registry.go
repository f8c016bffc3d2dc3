package enhance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/enhance/internal/parallel"
	"github.com/gogpu/enhance/internal/perf"
	"github.com/gogpu/enhance/internal/resolution"
	"github.com/gogpu/enhance/internal/shader"
)

// Registry owns every session of one device class. It bounds the number of
// concurrent sessions and indexes them by id and by source.
//
// Registry is safe for concurrent use. GPU cleanup never runs under the
// registry lock.
type Registry struct {
	env     *sessionEnv
	text    readouts
	opts    options
	cfg     atomic.Pointer[Config]
	mu      sync.Mutex
	byID    map[uuid.UUID]*Session
	bySrc   map[Source]uuid.UUID
	pending map[Source]struct{}
	order   []uuid.UUID // acquisition order, oldest first
}

// NewRegistry returns an empty registry for devices with caps.
func NewRegistry(caps Capabilities, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.asm == nil {
		o.asm = shader.NewAssembler()
	}
	cfg := DefaultConfig()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	cfg = cfg.Normalize()

	r := &Registry{
		env: &sessionEnv{
			caps:     caps,
			mode:     o.mode,
			opener:   o.opener,
			asm:      o.asm,
			sink:     o.sink,
			lang:     o.lang,
			compiler: o.compiler,
			window:   perf.Window,
		},
		text:    newReadouts(o.lang),
		opts:    o,
		byID:    make(map[uuid.UUID]*Session),
		bySrc:   make(map[Source]uuid.UUID),
		pending: make(map[Source]struct{}),
	}
	r.cfg.Store(&cfg)
	return r
}

// Capabilities returns the device capabilities the registry sizes for.
func (r *Registry) Capabilities() Capabilities { return r.env.caps }

// Config returns the registry's current configuration snapshot.
func (r *Registry) Config() *Config { return r.cfg.Load() }

// quota returns the session bound for cfg.
func (r *Registry) quota(cfg *Config) int {
	if cfg.MaxInstances > 0 {
		return cfg.MaxInstances
	}
	return DefaultMaxInstances(r.env.caps)
}

// Acquire starts a session for src. A nil cfg uses the registry's current
// configuration.
//
// Refusals leave the registry unchanged:
//   - ErrSourceTooSmall when src is under 100x100 or has no frame yet;
//   - ErrSourceTooLarge when a side exceeds the device texture limit;
//   - ErrAlreadyActive when src has a session, which is returned;
//   - ErrQuotaExceeded when MaxInstances sessions exist; a quota advisory
//     is raised.
//
// Cooperative sessions are ready when Acquire returns; offloaded sessions
// become Active on the first Frame after their worker has built the
// pipeline.
func (r *Registry) Acquire(src Source, cfg *Config) (*Session, error) {
	if src == nil {
		return nil, errors.New("enhance: nil source")
	}
	if r.env.opener == nil {
		return nil, ErrNoDevice
	}
	var c Config
	if cfg != nil {
		c = cfg.Normalize()
	} else {
		c = *r.cfg.Load()
	}
	w, h := src.Size()
	if !resolution.Eligible(w, h) {
		return nil, fmt.Errorf("%w: %dx%d", ErrSourceTooSmall, w, h)
	}
	if !r.env.caps.fits(w, h) {
		return nil, fmt.Errorf("%w: %dx%d, limit %d", ErrSourceTooLarge, w, h, r.env.caps.MaxSurfaceDimension)
	}

	r.mu.Lock()
	if id, ok := r.bySrc[src]; ok {
		s := r.byID[id]
		r.mu.Unlock()
		return s, ErrAlreadyActive
	}
	if _, ok := r.pending[src]; ok {
		r.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	if limit := r.quota(&c); len(r.byID)+len(r.pending) >= limit {
		r.mu.Unlock()
		slogger().Warn("enhance: session quota reached", "limit", limit)
		r.publish(r.text.advisory(AdvisoryQuotaExceeded, uuid.Nil, limit))
		return nil, fmt.Errorf("%w: limit %d", ErrQuotaExceeded, limit)
	}
	r.pending[src] = struct{}{}
	r.mu.Unlock()

	id := uuid.New()
	s, err := newSession(r.env, id, src, &c)

	r.mu.Lock()
	delete(r.pending, src)
	if err == nil {
		r.byID[id] = s
		r.bySrc[src] = id
		r.order = append(r.order, id)
	}
	r.mu.Unlock()

	if err != nil {
		slogger().Warn("enhance: session init failed", "id", id, "err", err)
		if isFatal(err) {
			r.publish(r.text.advisory(advisoryFor(err), id))
		}
		return nil, err
	}
	slogger().Info("enhance: session acquired",
		"id", id, "mode", s.Mode().String(), "program", c.Program, "resolution", c.Resolution)
	return s, nil
}

func (r *Registry) publish(a Advisory) {
	if r.env.sink != nil {
		r.env.sink(a)
	}
}

// Release cleans up and removes the session with id. Unknown ids are a
// no-op.
func (r *Registry) Release(id uuid.UUID) {
	r.mu.Lock()
	s := r.removeLocked(id)
	r.mu.Unlock()
	if s != nil {
		s.Cleanup()
	}
}

// ReleaseSource cleans up and removes src's session, if any.
func (r *Registry) ReleaseSource(src Source) {
	r.mu.Lock()
	var s *Session
	if id, ok := r.bySrc[src]; ok {
		s = r.removeLocked(id)
	}
	r.mu.Unlock()
	if s != nil {
		s.Cleanup()
	}
}

// ReleaseAll cleans up every session and leaves the registry empty.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.byID))
	for id := range r.byID {
		all = append(all, r.removeLocked(id))
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Cleanup()
	}
}

func (r *Registry) removeLocked(id uuid.UUID) *Session {
	s, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)
	delete(r.bySrc, s.src)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return s
}

// trimLocked removes the most recently acquired sessions until at most
// limit remain and returns them for cleanup.
func (r *Registry) trimLocked(limit int) []*Session {
	var out []*Session
	for len(r.order) > limit {
		out = append(out, r.removeLocked(r.order[len(r.order)-1]))
	}
	return out
}

// Reconfigure installs cfg. When the program, resolution, custom scale, or
// quality preset changed, every session is released so the caller can
// re-acquire with fresh GPU objects; rebuilt is true then. Otherwise every
// session is updated in place. A lower instance limit releases the most
// recently acquired sessions over it, each with a quota advisory.
func (r *Registry) Reconfigure(cfg Config) (rebuilt bool) {
	next := cfg.Normalize()
	old := r.cfg.Swap(&next)
	if next.needsRebuild(old) {
		slogger().Info("enhance: configuration rebuild", "program", next.Program, "resolution", next.Resolution)
		r.ReleaseAll()
		return true
	}

	limit := r.quota(&next)
	r.mu.Lock()
	over := r.trimLocked(limit)
	r.mu.Unlock()
	for _, s := range over {
		slogger().Warn("enhance: session over quota released", "id", s.ID(), "limit", limit)
		s.Cleanup()
		r.publish(r.text.advisory(AdvisoryQuotaExceeded, s.ID(), limit))
	}
	for _, s := range r.Sessions() {
		if err := s.Reconfigure(&next); err != nil && !errors.Is(err, ErrTerminated) {
			slogger().Warn("enhance: session reconfigure failed", "id", s.ID(), "err", err)
		}
	}
	return false
}

// Get returns the session with id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

// Lookup returns src's session.
func (r *Registry) Lookup(src Source) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySrc[src]
	if !ok {
		return nil, false
	}
	return r.byID[id], true
}

// Sessions returns a snapshot of the live sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Step runs one frame of every session at now and removes the sessions
// that terminated. A failing session never affects the others.
func (r *Registry) Step(now time.Time) {
	r.step(now, nil)
}

// step frames offloaded sessions on pool when one is given. Cooperative
// sessions may share a queue, so they always run in order on the caller.
func (r *Registry) step(now time.Time, pool *parallel.WorkerPool) {
	var (
		deadMu sync.Mutex
		dead   []uuid.UUID
	)
	frame := func(s *Session) {
		if err := s.Frame(now); err != nil {
			deadMu.Lock()
			dead = append(dead, s.ID())
			deadMu.Unlock()
		}
	}

	var work []func()
	for _, s := range r.Sessions() {
		if pool != nil && s.Mode() == ModeOffloaded {
			work = append(work, func() { frame(s) })
			continue
		}
		frame(s)
	}
	if pool != nil {
		pool.ExecuteAll(work)
	}

	if len(dead) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range dead {
		r.removeLocked(id)
	}
	r.mu.Unlock()
}

// Run steps every session each interval and calls the scanner every scan
// interval until ctx is done. It returns ctx.Err(). Sessions stay alive
// when Run returns; call ReleaseAll to drop them.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	frames := time.NewTicker(interval)
	defer frames.Stop()

	pool := parallel.NewWorkerPool(0)
	defer pool.Close()

	var scan <-chan time.Time
	if r.opts.scanner != nil {
		r.opts.scanner(r)
		t := time.NewTicker(r.opts.scanInterval)
		defer t.Stop()
		scan = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-frames.C:
			r.step(now, pool)
		case <-scan:
			r.opts.scanner(r)
		}
	}
}
