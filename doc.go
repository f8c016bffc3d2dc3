// Package enhance renders live video through a GPU upscale and sharpen
// program.
//
// # Overview
//
// Each video source gets a Session that owns its GPU objects: a source
// texture the frames are uploaded to, an output surface sized from the
// source and the user's resolution directive, and a render pipeline built
// from the selected enhancement program. A Registry bounds the number of
// concurrent sessions and routes configuration changes to them.
//
// # Quick Start
//
//	g, err := gpu.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer g.Close()
//	reg := enhance.NewRegistry(g.Caps, enhance.WithOpener(g.Opener()))
//	defer reg.ReleaseAll()
//
//	src := enhance.NewImageSource(img, 640, 360)
//	s, err := reg.Acquire(src, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for range 60 {
//		_ = s.Frame(time.Now())
//	}
//	fmt.Println(s.Label(), s.FPSText())
//
// # Sizing
//
// The output size is the source size scaled by the resolution directive
// ("2x", "4x", "8x", "custom") or fitted to a preset height ("1080p",
// "1440p", "2k", "4k", "8k"), then bounded by the quality preset and the
// device's maximum texture size. Aspect ratio is preserved throughout.
//
// # Render Strategies
//
// ModeCooperative renders inline in Session.Frame. ModeOffloaded hands
// frames to a worker goroutine that owns the session's device; a frame the
// worker has not picked up yet is replaced by the next one. ModeAuto picks
// offloaded rendering when Capabilities.OffscreenSubmission is set.
//
// # Failures
//
// Cross-origin blocks, lost GPU contexts, closed sources, sources that
// outgrow the device texture limit, and programs that cannot be built
// terminate only the affected session and raise an Advisory. Other
// per-frame errors drop the frame.
package enhance

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
