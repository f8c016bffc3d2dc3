// Package gpu owns the GPU objects of one render session.
//
// A Manager wraps a hal.Device and hal.Queue and records every handle it
// creates: shader modules, pipelines, buffers, textures, samplers, and bind
// groups. ReleaseAll tears all of them down in reverse creation order,
// tolerating individual failures, and destroys the device when the manager
// owns it.
//
// FrameRenderer builds the per-session pipeline on top of a Manager: an
// assembled fragment program (with a passthrough fallback), two static
// vertex buffers for a full-surface quad, a uniform buffer, the source
// texture the video frame is uploaded into, and the output surface the quad
// is drawn onto.
//
// # Resource Lifecycle
//
//	NewManager -> FrameRenderer.Init -> Resize -> Draw ... -> Release
//	                                      ^          |
//	                                      +----------+ (source size change)
//
// None of the types in this package are safe for concurrent use. A session
// serializes access itself, either under its own mutex (cooperative mode)
// or by confining the renderer to one worker goroutine (offloaded mode).
//
// # Errors
//
//   - ErrCompileFailed: a shader stage or pipeline failed to build
//   - ErrDeviceLost: the device or surface was lost; the session must stop
//   - ErrReleased: the manager was already released
package gpu
