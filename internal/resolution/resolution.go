// Package resolution computes output surface sizes for enhanced video.
//
// All functions are pure: they take source dimensions plus the configured
// directive, quality preset, and device limit, and return the size the
// session should render at. Nothing here touches the GPU.
package resolution

import "math"

// Scale bounds for the custom directive.
const (
	MinCustomScale     = 0.1
	MaxCustomScale     = 10.0
	DefaultCustomScale = 2.0
)

// Minimum source size worth enhancing.
const (
	MinSourceWidth  = 100
	MinSourceHeight = 100
)

// Directive names.
const (
	Double    = "2x"
	Quadruple = "4x"
	Octuple   = "8x"
	Custom    = "custom"
	FHD       = "1080p"
	QHD       = "1440p"
	TwoK      = "2k"
	UHD       = "4k"
	EightK    = "8k"

	// Default is substituted for any directive this package does not know.
	Default = Double
)

// Quality preset names.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualityAuto   = "auto"
)

// Preset describes one resolution directive.
type Preset struct {
	Name  string
	Label string

	// Width and Height are set for fixed presets.
	Width, Height int

	// Scale is set for multiplier presets.
	Scale int
}

// Fixed reports whether the preset renders at a fixed size.
func (p Preset) Fixed() bool { return p.Width > 0 && p.Height > 0 }

var presets = []Preset{
	{Name: FHD, Label: "1080p (FHD)", Width: 1920, Height: 1080},
	{Name: QHD, Label: "1440p (2K)", Width: 2560, Height: 1440},
	{Name: TwoK, Label: "2K", Width: 2560, Height: 1440},
	{Name: UHD, Label: "4K (UHD)", Width: 3840, Height: 2160},
	{Name: EightK, Label: "8K", Width: 7680, Height: 4320},
	{Name: Double, Label: "2x Native", Scale: 2},
	{Name: Quadruple, Label: "4x Native", Scale: 4},
	{Name: Octuple, Label: "8x Native", Scale: 8},
	{Name: Custom, Label: "Custom"},
}

// Presets returns every known directive in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup returns the preset named by directive.
func Lookup(directive string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == directive {
			return p, true
		}
	}
	return Preset{}, false
}

// IsKnown reports whether directive is recognized.
func IsKnown(directive string) bool {
	_, ok := Lookup(directive)
	return ok
}

// ClampCustomScale bounds a custom scale factor. Zero and NaN mean
// "unset" and yield DefaultCustomScale.
func ClampCustomScale(scale float64) float64 {
	if scale == 0 || math.IsNaN(scale) {
		return DefaultCustomScale
	}
	return math.Max(MinCustomScale, math.Min(MaxCustomScale, scale))
}

// Target returns the desired output size for a source of srcW x srcH under
// the given directive. Unknown directives behave like Default.
func Target(srcW, srcH int, directive string, customScale float64) (int, int) {
	if directive == Custom {
		s := ClampCustomScale(customScale)
		return roundInt(float64(srcW) * s), roundInt(float64(srcH) * s)
	}
	p, ok := Lookup(directive)
	if !ok {
		p, _ = Lookup(Default)
	}
	if p.Fixed() {
		return p.Width, p.Height
	}
	return srcW * p.Scale, srcH * p.Scale
}

// CapFor returns the maximum scale allowed by a quality preset. The auto
// preset (and anything unrecognized) depends on whether the device takes
// the high-tier GPU path.
func CapFor(quality string, highTier bool) float64 {
	switch quality {
	case QualityLow:
		return 1.5
	case QualityMedium:
		return 2.0
	case QualityHigh:
		return 4.0
	default:
		if highTier {
			return 4.0
		}
		return 2.0
	}
}

// ApplyQualityCap limits oversampling. If the desired size implies a scale
// above the preset's cap, the source size times the cap is returned instead.
// The result is never larger than the desired size.
func ApplyQualityCap(srcW, srcH, desiredW, desiredH int, quality string, highTier bool) (int, int) {
	desiredScale := math.Max(
		float64(desiredW)/float64(max(1, srcW)),
		float64(desiredH)/float64(max(1, srcH)),
	)
	limit := CapFor(quality, highTier)
	if desiredScale <= limit {
		return desiredW, desiredH
	}
	return min(desiredW, roundInt(float64(srcW)*limit)), min(desiredH, roundInt(float64(srcH)*limit))
}

// ClampToDeviceLimit uniformly shrinks (w, h) so neither side exceeds maxDim.
// Aspect ratio is preserved to within rounding; sides never drop below 1.
// A non-positive maxDim means "no limit".
func ClampToDeviceLimit(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	// Integer arithmetic keeps the larger side exactly at the limit.
	if w >= h {
		return maxDim, max(1, int(int64(h)*int64(maxDim)/int64(w)))
	}
	return max(1, int(int64(w)*int64(maxDim)/int64(h))), maxDim
}

// Params bundles the inputs of Compute.
type Params struct {
	Directive   string
	CustomScale float64
	Quality     string
	HighTier    bool
	MaxDim      int
}

// Compute runs Target, ApplyQualityCap, and ClampToDeviceLimit in order.
func Compute(srcW, srcH int, p Params) (int, int) {
	w, h := Target(srcW, srcH, p.Directive, p.CustomScale)
	w, h = ApplyQualityCap(srcW, srcH, w, h, p.Quality, p.HighTier)
	return ClampToDeviceLimit(w, h, p.MaxDim)
}

// Eligible reports whether a source is large enough to enhance.
func Eligible(w, h int) bool {
	return w >= MinSourceWidth && h >= MinSourceHeight
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
