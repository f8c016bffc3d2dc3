package shader

import "sort"

// Program identifiers known to the engine. Only some ship a shader; the rest
// resolve to DefaultProgram when assembled.
const (
	ProgramDebug       = "debug"
	ProgramAnime4KFast = "anime4k_v41_fast"
	ProgramAnime4KHQ   = "anime4k_v41_hq"
	ProgramLanczos3    = "lanczos3"
	ProgramESRGAN      = "esrgan"
	ProgramFSR         = "fsr"
	ProgramXBRZ        = "xbrz"
	ProgramCAS         = "cas"
	ProgramBicubic     = "bicubic"
	ProgramRealSR      = "realsr"
	ProgramSharpen     = "sharpen"

	// DefaultProgram replaces any program id without a registered shader.
	DefaultProgram = ProgramSharpen
)

// Program is a named enhancement program. Source must define exactly one
// function with the signature
//
//	fn enhance(uv: vec2<f32>) -> vec4<f32>
//
// and may use the shared declarations: src_tex, src_sampler, params
// (tex_size, sharpen, vibrance, dither), sample_at, texel, and luma. It must
// not declare bindings or entry points of its own.
type Program struct {
	ID     string
	Name   string
	Cost   float64
	Source string
}

// Info describes a program id for presentation.
type Info struct {
	ID   string
	Name string

	// Cost is the relative GPU cost of the program; 1 is a plain resample.
	Cost float64
}

var catalog = []Info{
	{ID: ProgramDebug, Name: "Debug (Grayscale)", Cost: 1.0},
	{ID: ProgramAnime4KFast, Name: "Anime4K Fast", Cost: 1.2},
	{ID: ProgramAnime4KHQ, Name: "Anime4K HQ", Cost: 1.8},
	{ID: ProgramLanczos3, Name: "Lanczos3", Cost: 1.0},
	{ID: ProgramESRGAN, Name: "ESRGAN", Cost: 2.5},
	{ID: ProgramFSR, Name: "FSR 1.0", Cost: 1.3},
	{ID: ProgramXBRZ, Name: "xBRZ", Cost: 1.5},
	{ID: ProgramCAS, Name: "CAS", Cost: 1.0},
	{ID: ProgramBicubic, Name: "Bicubic", Cost: 1.0},
	{ID: ProgramRealSR, Name: "Real-ESRGAN", Cost: 2.0},
	{ID: ProgramSharpen, Name: "Sharpen", Cost: 1.0},
}

// Lookup returns presentation info for id. Unknown ids report the id itself
// as the name.
func Lookup(id string) (Info, bool) {
	for _, info := range catalog {
		if info.ID == id {
			return info, true
		}
	}
	return Info{ID: id, Name: id, Cost: 1.0}, false
}

// DisplayName returns the human-readable name for id.
func DisplayName(id string) string {
	info, _ := Lookup(id)
	return info.Name
}

// Catalog returns every known program id, sorted.
func Catalog() []string {
	ids := make([]string, len(catalog))
	for i, info := range catalog {
		ids[i] = info.ID
	}
	sort.Strings(ids)
	return ids
}

// builtins returns the programs that ship a shader.
func builtins() []Program {
	sources := map[string]string{
		ProgramSharpen:     sharpenSource,
		ProgramDebug:       debugSource,
		ProgramAnime4KFast: anime4kFastSource,
		ProgramLanczos3:    lanczos3Source,
		ProgramCAS:         casSource,
		ProgramBicubic:     bicubicSource,
	}
	out := make([]Program, 0, len(sources))
	for id, src := range sources {
		info, _ := Lookup(id)
		out = append(out, Program{ID: id, Name: info.Name, Cost: info.Cost, Source: src})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
