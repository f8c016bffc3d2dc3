package enhance

import (
	"time"

	"golang.org/x/text/language"

	"github.com/gogpu/enhance/internal/gpu"
	"github.com/gogpu/enhance/internal/shader"
)

// DefaultScanInterval is how often Run calls the scanner.
const DefaultScanInterval = 2 * time.Second

// DefaultFrameInterval is Run's frame tick when none is given.
const DefaultFrameInterval = time.Second / 60

// Scanner discovers sources and acquires sessions for them. Run calls it
// once on start and then every scan interval, from Run's goroutine.
type Scanner func(r *Registry)

// Option configures a Registry during creation.
//
// Example:
//
//	reg := enhance.NewRegistry(caps,
//		enhance.WithOpener(enhance.AdapterOpener(adapter)),
//		enhance.WithAdvisorySink(func(a enhance.Advisory) { log.Println(a.Message) }),
//	)
type Option func(*options)

// options holds optional configuration for Registry creation.
type options struct {
	sink         AdvisorySink
	mode         Mode
	opener       DeviceOpener
	scanInterval time.Duration
	scanner      Scanner
	compiler     gpu.ShaderCompiler
	lang         language.Tag
	asm          *shader.Assembler
	cfg          *Config
}

func defaultOptions() options {
	return options{
		mode:         ModeAuto,
		scanInterval: DefaultScanInterval,
		lang:         language.English,
	}
}

// WithAdvisorySink receives every advisory the registry and its sessions
// raise.
func WithAdvisorySink(sink AdvisorySink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithMode fixes the render strategy of new sessions. The default is
// ModeAuto.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = m
	}
}

// WithOpener sets how sessions get their device. Without one, Acquire
// fails with ErrNoDevice.
func WithOpener(open DeviceOpener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// WithScanInterval sets how often Run calls the scanner. Non-positive
// values keep DefaultScanInterval.
func WithScanInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.scanInterval = d
		}
	}
}

// WithScanner installs the source discovery hook run by Run.
func WithScanner(s Scanner) Option {
	return func(o *options) {
		o.scanner = s
	}
}

// WithCompiler makes sessions build shader modules from SPIR-V produced by
// c, e.g. shader.CompileSPIRV, for backends that do not take WGSL.
func WithCompiler(c gpu.ShaderCompiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithLanguage selects the language of readouts and advisories.
func WithLanguage(tag language.Tag) Option {
	return func(o *options) {
		o.lang = tag
	}
}

// WithAssembler replaces the program assembler, e.g. one with extra
// programs registered.
func WithAssembler(a *shader.Assembler) Option {
	return func(o *options) {
		o.asm = a
	}
}

// WithConfig sets the registry's initial configuration. The default is
// DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = &cfg
	}
}
