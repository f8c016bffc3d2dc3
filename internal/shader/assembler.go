// Package shader assembles WGSL fragment stages for enhancement programs.
//
// A base program contributes a single enhance(uv) hook. The assembler wraps
// it with the shared uniform declarations, the post-processing helpers, and
// a generated fs_main that routes the hook's color through saturation and
// dither adjustment before clamping. Base programs never see or edit the
// entry point, so there is exactly one place where post-processing attaches.
package shader

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/enhance/internal/cache"
)

// Assembly errors.
var (
	// ErrBadProgram is returned when a program does not follow the
	// enhance hook contract.
	ErrBadProgram = errors.New("shader: program violates enhance hook contract")

	// ErrNoPrograms is returned when neither the requested program nor the
	// default is registered.
	ErrNoPrograms = errors.New("shader: no enhancement programs registered")
)

// Stage selects optional post-processing stages compiled into an assembled
// fragment stage. Enabled stages are still gated at runtime by their
// uniform: vibrance applies only when non-zero, dither only when set.
type Stage uint8

const (
	StageVibrance Stage = 1 << iota
	StageDither

	StagesNone Stage = 0
	StagesAll        = StageVibrance | StageDither
)

// Assembled is the result of Assemble.
type Assembled struct {
	// Requested is the id passed to Assemble.
	Requested string

	// ProgramID is the id of the program actually used.
	ProgramID string

	// Name is the display name of ProgramID.
	Name string

	// Fallback is true when Requested had no shader and ProgramID is the
	// default program.
	Fallback bool

	Stages Stage

	// Text is the complete WGSL fragment module. Entry point is "fs_main".
	Text string
}

// FragmentEntryPoint is the entry point of every assembled fragment stage.
const FragmentEntryPoint = "fs_main"

// VertexEntryPoint is the entry point of VertexSource.
const VertexEntryPoint = "vs_main"

type cacheKey struct {
	id     string
	stages Stage
}

// Assembler builds fragment stages from registered programs. The output for
// a given (id, stages) pair is deterministic and cached.
//
// Assembler is safe for concurrent use.
type Assembler struct {
	programs *gpucontext.Registry[Program]

	// mu serializes assembly so an unknown id warns once per key.
	mu    sync.Mutex
	cache *cache.Cache[cacheKey, Assembled]
}

// assembledLimit bounds the number of cached fragment stages.
const assembledLimit = 64

// NewAssembler returns an assembler with the bundled programs registered.
func NewAssembler() *Assembler {
	a := &Assembler{
		programs: gpucontext.NewRegistry[Program](gpucontext.WithPriority(DefaultProgram, ProgramAnime4KFast)),
		cache:    cache.New[cacheKey, Assembled](assembledLimit),
	}
	for _, p := range builtins() {
		a.programs.Register(p.ID, func() Program { return p })
	}
	return a
}

// Register adds or replaces a program. The program's source is checked
// against the hook contract before it is accepted.
func (a *Assembler) Register(p Program) error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty program id", ErrBadProgram)
	}
	if err := CheckHook(p.Source); err != nil {
		return fmt.Errorf("program %q: %w", p.ID, err)
	}
	if p.Name == "" {
		p.Name = DisplayName(p.ID)
	}
	if p.Cost == 0 {
		p.Cost = 1
	}
	a.programs.Register(p.ID, func() Program { return p })

	// Fallback entries may depend on the replaced program.
	a.mu.Lock()
	a.cache.Clear()
	a.mu.Unlock()
	return nil
}

// Has reports whether id has a registered shader.
func (a *Assembler) Has(id string) bool { return a.programs.Has(id) }

// Programs returns the ids of every registered program, sorted.
func (a *Assembler) Programs() []string {
	ids := a.programs.Available()
	sort.Strings(ids)
	return ids
}

// Assemble returns the fragment stage for id with the selected
// post-processing stages. An id with no registered shader is replaced by the
// default program and logged at warn level; this is not an error.
func (a *Assembler) Assemble(id string, stages Stage) (Assembled, error) {
	key := cacheKey{id: id, stages: stages & StagesAll}

	a.mu.Lock()
	defer a.mu.Unlock()
	if out, ok := a.cache.Get(key); ok {
		return out, nil
	}

	fallback := false
	var p Program
	if a.programs.Has(id) {
		p = a.programs.Get(id)
	} else {
		p = a.programs.Best()
		if p.ID == "" {
			return Assembled{}, ErrNoPrograms
		}
		fallback = true
		slogger().Warn("shader: unknown enhancement program, using default",
			"requested", id, "program", p.ID)
	}

	if err := CheckHook(p.Source); err != nil {
		return Assembled{}, fmt.Errorf("program %q: %w", p.ID, err)
	}

	out := Assembled{
		Requested: id,
		ProgramID: p.ID,
		Name:      p.Name,
		Fallback:  fallback,
		Stages:    key.stages,
		Text:      build(p, key.stages),
	}
	a.cache.Set(key, out)
	return out, nil
}

func build(p Program, stages Stage) string {
	var b strings.Builder
	b.Grow(len(preludeSource) + len(p.Source) + len(postProcessSource) + 1024)

	fmt.Fprintf(&b, "// program: %s\n\n", p.ID)
	b.WriteString(preludeSource)
	b.WriteString("\n")
	b.WriteString(p.Source)
	b.WriteString("\n")
	b.WriteString(postProcessSource)
	b.WriteString("\n")

	b.WriteString("fn post_process(color: vec4<f32>, uv: vec2<f32>) -> vec4<f32> {\n")
	b.WriteString("    var rgb = color.rgb;\n")
	if stages&StageVibrance != 0 {
		b.WriteString("    if (params.vibrance != 0.0) {\n")
		b.WriteString("        rgb = apply_vibrance(rgb, params.vibrance);\n")
		b.WriteString("    }\n")
	}
	if stages&StageDither != 0 {
		b.WriteString("    if (params.dither > 0.5) {\n")
		b.WriteString("        let noise = (rand(uv * params.tex_size) - 0.5) / 255.0;\n")
		b.WriteString("        rgb = rgb + vec3<f32>(noise, noise, noise);\n")
		b.WriteString("    }\n")
	}
	b.WriteString("    return vec4<f32>(clamp(rgb, vec3<f32>(0.0), vec3<f32>(1.0)), clamp(color.a, 0.0, 1.0));\n")
	b.WriteString("}\n\n")

	b.WriteString("@fragment\n")
	b.WriteString("fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {\n")
	b.WriteString("    return post_process(enhance(uv), uv);\n")
	b.WriteString("}\n")
	return b.String()
}

var (
	lineComment  = regexp.MustCompile(`//[^\n]*`)
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	hookDecl     = regexp.MustCompile(`\bfn\s+enhance\s*\(`)
	entryAttr    = regexp.MustCompile(`@(fragment|vertex|compute)\b`)
	bindingAttr  = regexp.MustCompile(`@(group|binding)\s*\(`)
)

// CheckHook verifies that src defines exactly one enhance hook and declares
// no entry points or bindings. Comments are ignored.
func CheckHook(src string) error {
	code := blockComment.ReplaceAllString(src, "")
	code = lineComment.ReplaceAllString(code, "")

	switch n := len(hookDecl.FindAllStringIndex(code, -1)); n {
	case 1:
	case 0:
		return fmt.Errorf("%w: no enhance function", ErrBadProgram)
	default:
		return fmt.Errorf("%w: %d enhance functions", ErrBadProgram, n)
	}
	if m := entryAttr.FindString(code); m != "" {
		return fmt.Errorf("%w: declares its own %s entry point", ErrBadProgram, m)
	}
	if bindingAttr.MatchString(code) {
		return fmt.Errorf("%w: declares its own bindings", ErrBadProgram)
	}
	return nil
}
