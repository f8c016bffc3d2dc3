package enhance

import (
	"math"

	"github.com/gogpu/enhance/internal/resolution"
	"github.com/gogpu/enhance/internal/shader"
)

// Instance bounds for Config.MaxInstances.
const (
	MinInstances = 1
	MaxInstances = 32
)

// Config is one immutable snapshot of the user's settings. A new snapshot
// fully replaces the previous one; sessions never mutate it.
//
// Field names in TOML and YAML follow the settings keys of the browser
// extension this engine grew out of, so existing settings files load as-is.
type Config struct {
	// Program is the enhancement program id, e.g. "anime4k_v41_fast".
	// Ids without a bundled shader render with the default sharpening
	// program.
	Program string `toml:"model" yaml:"model"`

	// Resolution is the resolution directive: "2x", "4x", "8x", "1080p",
	// "1440p", "2k", "4k", "8k", or "custom". Unknown values mean "2x".
	Resolution string `toml:"resolution" yaml:"resolution"`

	// CustomScale is the multiplier for the "custom" directive.
	CustomScale float64 `toml:"customScale" yaml:"customScale"`

	// Quality is the quality preset bounding oversampling: "low",
	// "medium", "high", or "auto".
	Quality string `toml:"qualityPreset" yaml:"qualityPreset"`

	Sharpen  float32 `toml:"sharpen" yaml:"sharpen"`
	Vibrance float32 `toml:"vibrance" yaml:"vibrance"`
	Dither   bool    `toml:"deband" yaml:"deband"`

	// Presentation toggles. They do not affect rendering.
	Compare        bool `toml:"compare" yaml:"compare"`
	SliderPos      int  `toml:"sliderPos" yaml:"sliderPos"`
	ShowFPS        bool `toml:"showFps" yaml:"showFps"`
	ShowLabels     bool `toml:"showLabels" yaml:"showLabels"`
	ShowRenderTime bool `toml:"showRenderTime" yaml:"showRenderTime"`

	// Enabled pauses every session when false. GPU objects stay alive.
	Enabled bool `toml:"enabled" yaml:"enabled"`

	// MaxInstances bounds the number of concurrent sessions. Zero selects
	// DefaultMaxInstances for the registry's device.
	MaxInstances int `toml:"maxInstances" yaml:"maxInstances"`
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Program:        shader.ProgramAnime4KFast,
		Resolution:     resolution.Default,
		CustomScale:    resolution.DefaultCustomScale,
		Quality:        resolution.QualityAuto,
		Sharpen:        0,
		Vibrance:       0.1,
		Dither:         false,
		Compare:        false,
		SliderPos:      50,
		ShowFPS:        true,
		ShowLabels:     true,
		ShowRenderTime: false,
		Enabled:        true,
		MaxInstances:   3,
	}
}

// Normalize returns a copy of c with every field inside its valid range.
// Unknown resolution directives and quality presets become the defaults;
// unknown program ids are kept, since they resolve at assembly time.
func (c Config) Normalize() Config {
	if !resolution.IsKnown(c.Resolution) {
		c.Resolution = resolution.Default
	}
	switch c.Quality {
	case resolution.QualityLow, resolution.QualityMedium, resolution.QualityHigh, resolution.QualityAuto:
	default:
		c.Quality = resolution.QualityAuto
	}
	if c.Program == "" {
		c.Program = shader.ProgramAnime4KFast
	}
	c.CustomScale = resolution.ClampCustomScale(c.CustomScale)
	c.SliderPos = min(100, max(0, c.SliderPos))
	if c.MaxInstances != 0 {
		c.MaxInstances = min(MaxInstances, max(MinInstances, c.MaxInstances))
	}
	if isBad(c.Sharpen) {
		c.Sharpen = 0
	}
	if isBad(c.Vibrance) {
		c.Vibrance = 0
	}
	return c
}

func isBad(v float32) bool {
	f := float64(v)
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// resolutionParams returns the sizing inputs for caps.
func (c *Config) resolutionParams(caps Capabilities) resolution.Params {
	return resolution.Params{
		Directive:   c.Resolution,
		CustomScale: c.CustomScale,
		Quality:     c.Quality,
		HighTier:    caps.HighTier,
		MaxDim:      caps.MaxSurfaceDimension,
	}
}

// needsRebuild reports whether moving from old to c invalidates every
// compiled program and surface, so sessions must be torn down and
// re-acquired rather than hot-updated.
func (c *Config) needsRebuild(old *Config) bool {
	return c.Program != old.Program ||
		c.Resolution != old.Resolution ||
		c.CustomScale != old.CustomScale ||
		c.Quality != old.Quality
}
