package shader

import _ "embed"

//go:embed shaders/prelude.wgsl
var preludeSource string

//go:embed shaders/postprocess.wgsl
var postProcessSource string

//go:embed shaders/vertex.wgsl
var vertexSource string

//go:embed shaders/passthrough.wgsl
var passthroughSource string

//go:embed shaders/sharpen.wgsl
var sharpenSource string

//go:embed shaders/debug.wgsl
var debugSource string

//go:embed shaders/bicubic.wgsl
var bicubicSource string

//go:embed shaders/lanczos3.wgsl
var lanczos3Source string

//go:embed shaders/cas.wgsl
var casSource string

//go:embed shaders/anime4k_fast.wgsl
var anime4kFastSource string

// VertexSource returns the full-surface quad vertex stage. Its entry point
// is "vs_main".
func VertexSource() string { return vertexSource }

// Passthrough returns a fragment stage that samples the source texture
// without any processing. Its entry point is "fs_main".
func Passthrough() string { return passthroughSource }
