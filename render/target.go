// Package render provides the image shared between the simulation worker and renderers.
package render

import (
	"image"
	"sync"
)

// Target is an RGBA image guarded by its own lock. The pixels are only reachable
// through Read and Write, so writer and readers cannot bypass the guard.
type Target struct {
	mu  sync.RWMutex
	img *image.RGBA
}

// NewTarget allocates a w x h target.
func NewTarget(w, h int) *Target {
	return &Target{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

// Write calls fn with exclusive access to the image.
func (t *Target) Write(fn func(img *image.RGBA)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.img)
}

// Read calls fn with shared access to the image. fn must not retain or modify img.
func (t *Target) Read(fn func(img *image.RGBA)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.img)
}

// Resize replaces the image with a blank w x h one. It is a no-op if the size is unchanged.
func (t *Target) Resize(w, h int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if b := t.img.Bounds(); b.Dx() == w && b.Dy() == h {
		return
	}
	t.img = image.NewRGBA(image.Rect(0, 0, w, h))
}

// Bounds returns the current image bounds.
func (t *Target) Bounds() image.Rectangle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.img.Bounds()
}
