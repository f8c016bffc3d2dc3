package enhance

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

func TestReadoutFPS(t *testing.T) {
	r := newReadouts(language.English)
	tests := []struct {
		name      string
		fps, time bool
		want      string
	}{
		{"fps", true, false, "FPS: 24"},
		{"both", true, true, "FPS: 24 | 3.25ms"},
		{"time", false, true, "3.25ms"},
		{"none", false, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ShowFPS, cfg.ShowRenderTime = tt.fps, tt.time
			if got := r.fps(&cfg, 24, 3250*time.Microsecond); got != tt.want {
				t.Errorf("fps = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadoutLabel(t *testing.T) {
	r := newReadouts(language.English)
	if got := r.label("Anime4K Fast", 3840, 2160); got != "Anime4K Fast 3840x2160" {
		t.Errorf("label = %q", got)
	}
	// Sizes are never digit-grouped, whatever the language.
	if got := newReadouts(language.German).label("CAS", 7680, 4320); got != "CAS 7680x4320" {
		t.Errorf("label = %q", got)
	}
}

func TestReadoutAdvisories(t *testing.T) {
	r := newReadouts(language.English)
	id := uuid.New()
	tests := []struct {
		kind AdvisoryKind
		args []any
		want string
	}{
		{AdvisoryQuotaExceeded, []any{6}, "Max upscaler instances reached (6)"},
		{AdvisoryCrossOrigin, nil, "Sorry This Media/Server Is Not Supported"},
		{AdvisoryLowPerformance, nil, "Low Performance detected. Try a lower resolution."},
		{AdvisoryContextLost, nil, "GPU context lost"},
		{AdvisoryCompileFailed, nil, "failed to build"},
		{AdvisorySourceClosed, nil, "closed"},
		{AdvisorySourceTooLarge, nil, "larger than the GPU supports"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			a := r.advisory(tt.kind, id, tt.args...)
			if a.Kind != tt.kind || a.Session != id {
				t.Errorf("advisory = %+v", a)
			}
			if !strings.Contains(a.Message, tt.want) {
				t.Errorf("message = %q, want %q", a.Message, tt.want)
			}
		})
	}
}

func TestAdvisoryKindString(t *testing.T) {
	seen := map[string]bool{}
	for k := AdvisoryLowPerformance; k <= AdvisorySourceTooLarge; k++ {
		s := k.String()
		if s == "unknown" || seen[s] {
			t.Errorf("AdvisoryKind(%d).String() = %q", int(k), s)
		}
		seen[s] = true
	}
	if AdvisoryKind(0).String() != "unknown" {
		t.Error("zero kind has a name")
	}
}
