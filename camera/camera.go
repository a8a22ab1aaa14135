// Package camera maps between the viewer window and the toroidal world.
package camera

import (
	"math"

	"github.com/pthm-cable/clusters/geometry"
)

// Camera is a pan and zoom view onto the world.
// The kernel renders the view region 1:1 into an image, which the viewer
// draws scaled by Zoom.
type Camera struct {
	// Center of the view in world coordinates.
	X, Y float64

	// Zoom level (1.0 = one world unit per screen pixel).
	Zoom float64

	ViewportW, ViewportH float64

	space geometry.Space

	MinZoom, MaxZoom float64
}

// New creates a camera centered on the world with 1:1 zoom, or the smallest
// zoom at which the view fits into the world.
func New(viewportW, viewportH float64, space geometry.Space) *Camera {
	c := &Camera{
		ViewportW: viewportW,
		ViewportH: viewportH,
		space:     space,
		MaxZoom:   8.0,
	}
	c.updateMinZoom()
	c.Reset()
	return c
}

// Region returns the world region the view covers, with P1 in the world.
// The region spans the seam when the view does.
func (c *Camera) Region() geometry.Rect {
	w, h := c.ImageSize()
	x0 := int(math.Floor(c.X - float64(w)/2))
	y0 := int(math.Floor(c.Y - float64(h)/2))
	x0 = modInt(x0, c.space.Width)
	y0 = modInt(y0, c.space.Height)
	return geometry.Rect{
		P1: geometry.IntVec{X: x0, Y: y0},
		P2: geometry.IntVec{X: x0 + w - 1, Y: y0 + h - 1},
	}
}

// ImageSize returns the size of the image the view region renders into.
func (c *Camera) ImageSize() (w, h int) {
	w = min(int(math.Ceil(c.ViewportW/c.Zoom)), c.space.Width)
	h = min(int(math.Ceil(c.ViewportH/c.Zoom)), c.space.Height)
	return max(w, 1), max(h, 1)
}

// ScreenToWorld converts screen coordinates to a world position.
func (c *Camera) ScreenToWorld(sx, sy float64) geometry.Vec {
	r := c.Region()
	return c.space.Correct(geometry.Vec{
		X: float64(r.P1.X) + sx/c.Zoom,
		Y: float64(r.P1.Y) + sy/c.Zoom,
	})
}

// Resize updates viewport dimensions and recalculates zoom constraints.
func (c *Camera) Resize(viewportW, viewportH float64) {
	if viewportW == c.ViewportW && viewportH == c.ViewportH {
		return
	}
	c.ViewportW = viewportW
	c.ViewportH = viewportH
	c.updateMinZoom()
	c.SetZoom(c.Zoom)
}

// Pan moves the camera by the given delta in screen pixels, wrapping around the world.
func (c *Camera) Pan(dx, dy float64) {
	c.X = mod(c.X+dx/c.Zoom, float64(c.space.Width))
	c.Y = mod(c.Y+dy/c.Zoom, float64(c.space.Height))
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float64) {
	c.Zoom = math.Max(c.MinZoom, math.Min(zoom, c.MaxZoom))
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float64) {
	c.SetZoom(c.Zoom * factor)
}

// Reset centers the camera on the world at zoom 1.
func (c *Camera) Reset() {
	c.X = float64(c.space.Width) / 2
	c.Y = float64(c.space.Height) / 2
	c.SetZoom(1)
}

// updateMinZoom keeps the view no larger than the world, so that no part of
// the world is rendered twice.
func (c *Camera) updateMinZoom() {
	c.MinZoom = math.Max(c.ViewportW/float64(c.space.Width), c.ViewportH/float64(c.space.Height))
}

func mod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	return r
}

func modInt(x, m int) int {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}
