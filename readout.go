package enhance

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/google/uuid"
)

// AdvisoryKind classifies an advisory.
type AdvisoryKind int

const (
	// AdvisoryLowPerformance is raised once per session after sustained
	// low frame rates.
	AdvisoryLowPerformance AdvisoryKind = iota + 1

	// AdvisoryQuotaExceeded is raised when Acquire is refused.
	AdvisoryQuotaExceeded

	// AdvisoryCrossOrigin is raised when a session stops because its
	// frames may not be read.
	AdvisoryCrossOrigin

	// AdvisoryContextLost is raised when a session stops because its GPU
	// context was lost.
	AdvisoryContextLost

	// AdvisoryCompileFailed is raised when a session stops because no
	// program could be built.
	AdvisoryCompileFailed

	// AdvisorySourceClosed is raised when a session stops because its
	// source is gone.
	AdvisorySourceClosed

	// AdvisorySourceTooLarge is raised when a session stops because its
	// source outgrew the device texture limit.
	AdvisorySourceTooLarge
)

func (k AdvisoryKind) String() string {
	switch k {
	case AdvisoryLowPerformance:
		return "low-performance"
	case AdvisoryQuotaExceeded:
		return "quota-exceeded"
	case AdvisoryCrossOrigin:
		return "cross-origin"
	case AdvisoryContextLost:
		return "context-lost"
	case AdvisoryCompileFailed:
		return "compile-failed"
	case AdvisorySourceClosed:
		return "source-closed"
	case AdvisorySourceTooLarge:
		return "source-too-large"
	default:
		return "unknown"
	}
}

// Advisory is a one-shot notification for the presentation layer.
type Advisory struct {
	Kind AdvisoryKind

	// Session is the affected session, or uuid.Nil for registry-wide
	// advisories.
	Session uuid.UUID

	Message string
}

// AdvisorySink receives advisories. It is called synchronously from Frame,
// Acquire, or an offloaded session's event drain, and must not call back
// into the registry. Under Run, offloaded sessions frame in parallel, so the
// sink may be called concurrently.
type AdvisorySink func(Advisory)

// Advisory message keys. They double as the English text.
const (
	msgLowPerformance = "Low Performance detected. Try a lower resolution."
	msgQuotaExceeded  = "Max upscaler instances reached (%d)"
	msgCrossOrigin    = "Sorry This Media/Server Is Not Supported"
	msgContextLost    = "GPU context lost. Enhancement stopped."
	msgCompileFailed  = "Enhancement program failed to build. Enhancement stopped."
	msgSourceClosed   = "Video source closed."
	msgSourceTooLarge = "Video is larger than the GPU supports. Enhancement stopped."
	msgFPS            = "FPS: %d"
	msgRenderTime     = "%.2fms"
	msgLabel          = "%s %s"
)

// readouts formats presentation strings for one language.
type readouts struct {
	p *message.Printer
}

func newReadouts(tag language.Tag) readouts {
	return readouts{p: message.NewPrinter(tag)}
}

// fps builds the FPS readout: "FPS: N" and "X.XXms", each when enabled,
// joined by " | ".
func (r readouts) fps(cfg *Config, fps int, render time.Duration) string {
	parts := make([]string, 0, 2)
	if cfg.ShowFPS {
		parts = append(parts, r.p.Sprintf(msgFPS, fps))
	}
	if cfg.ShowRenderTime {
		parts = append(parts, r.p.Sprintf(msgRenderTime, float64(render.Microseconds())/1000))
	}
	return strings.Join(parts, " | ")
}

// label is "<program display name> <w>x<h>". The printer groups digits
// of integer verbs, so the size is formatted before it.
func (r readouts) label(name string, w, h int) string {
	return r.p.Sprintf(msgLabel, name, strconv.Itoa(w)+"x"+strconv.Itoa(h))
}

func (r readouts) advisory(kind AdvisoryKind, id uuid.UUID, args ...any) Advisory {
	var key string
	switch kind {
	case AdvisoryLowPerformance:
		key = msgLowPerformance
	case AdvisoryQuotaExceeded:
		key = msgQuotaExceeded
	case AdvisoryCrossOrigin:
		key = msgCrossOrigin
	case AdvisoryContextLost:
		key = msgContextLost
	case AdvisoryCompileFailed:
		key = msgCompileFailed
	case AdvisorySourceClosed:
		key = msgSourceClosed
	case AdvisorySourceTooLarge:
		key = msgSourceTooLarge
	}
	return Advisory{Kind: kind, Session: id, Message: r.p.Sprintf(key, args...)}
}
