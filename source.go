package enhance

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// Source is one video stream. Implementations must be comparable (pointer
// types are), since the registry indexes sessions by source.
type Source interface {
	// Size returns the current frame size. Zero means no frame yet.
	Size() (w, h int)

	// ReadFrame copies the current frame into dst as tightly packed RGBA8,
	// len(dst) == w*h*4 for the size last returned by Size. It returns
	// ErrCrossOriginBlocked when the frame may not be read and
	// ErrSourceClosed when the source is gone for good.
	ReadFrame(dst []byte) error
}

// ImageSource is a Source backed by a still image, scaled to the size the
// source advertises. The image and size may change at any time, which
// makes it useful for tests and demos of mid-stream resizes.
type ImageSource struct {
	mu      sync.Mutex
	img     image.Image
	w, h    int
	scaler  draw.Scaler
	blocked bool
	closed  bool
}

// NewImageSource returns a source showing img at w x h. Non-positive sizes
// use the image bounds.
func NewImageSource(img image.Image, w, h int) *ImageSource {
	s := &ImageSource{img: img, scaler: draw.ApproxBiLinear}
	s.setSize(w, h)
	return s
}

func (s *ImageSource) setSize(w, h int) {
	if w <= 0 || h <= 0 {
		if s.img == nil {
			w, h = 0, 0
		} else {
			b := s.img.Bounds()
			w, h = b.Dx(), b.Dy()
		}
	}
	s.w, s.h = w, h
}

// SetImage replaces the image, keeping the advertised size.
func (s *ImageSource) SetImage(img image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

// SetScaler selects the interpolator, e.g. draw.CatmullRom. Nil restores
// draw.ApproxBiLinear.
func (s *ImageSource) SetScaler(sc draw.Scaler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sc == nil {
		sc = draw.ApproxBiLinear
	}
	s.scaler = sc
}

// Resize changes the advertised frame size.
func (s *ImageSource) Resize(w, h int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setSize(w, h)
}

// SetBlocked makes ReadFrame fail with ErrCrossOriginBlocked.
func (s *ImageSource) SetBlocked(blocked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = blocked
}

// Close makes ReadFrame fail with ErrSourceClosed from now on. Size keeps
// reporting the last size so the next frame observes the closure.
func (s *ImageSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Size implements Source.
func (s *ImageSource) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w, s.h
}

// ReadFrame implements Source.
func (s *ImageSource) ReadFrame(dst []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSourceClosed
	case s.blocked:
		return ErrCrossOriginBlocked
	case s.img == nil:
		return fmt.Errorf("enhance: image source has no image")
	}
	if want := s.w * s.h * 4; len(dst) != want {
		return fmt.Errorf("enhance: frame buffer is %d bytes, want %d", len(dst), want)
	}
	out := &image.RGBA{Pix: dst, Stride: s.w * 4, Rect: image.Rect(0, 0, s.w, s.h)}
	sb := s.img.Bounds()
	if sb.Dx() == s.w && sb.Dy() == s.h {
		draw.Draw(out, out.Rect, s.img, sb.Min, draw.Src)
		return nil
	}
	s.scaler.Scale(out, out.Rect, s.img, sb, draw.Src, nil)
	return nil
}
