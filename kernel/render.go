package kernel

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/clusters/geometry"
)

var (
	background    = color.RGBA{A: 255}
	particleColor = color.RGBA{R: 90, G: 110, B: 160, A: 255}
)

// Render draws region into img with region.P1 at the image origin.
// One world unit maps to one pixel; the region may span the seam.
func (k *CPU) Render(region geometry.Rect, img *image.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	origin := geometry.Vec{X: float64(region.P1.X), Y: float64(region.P1.Y)}
	plot := func(p geometry.Vec, c color.RGBA) {
		d := k.space.Correct(r2.Sub(p, origin))
		x, y := b.Min.X+int(d.X), b.Min.Y+int(d.Y)
		if !(image.Point{X: x, Y: y}).In(b) {
			return
		}
		img.SetRGBA(x, y, c)
		if k.exec.ImageGlow {
			glow(img, x, y, c)
		}
	}

	pquery := k.particleFilter.Query()
	for pquery.Next() {
		pos, _, _ := pquery.Get()
		plot(pos.Vec(), particleColor)
	}

	query := k.clusterFilter.Query()
	for query.Next() {
		pos, _, rot, cells, _ := query.Get()
		for i := range cells.Cells {
			p := r2.Add(pos.Vec(), cells.Offset(i, rot.Angle))
			plot(p, k.cellColor(cells.Cells[i].Energy))
		}
	}
}

// cellColor maps energy to a green-to-yellow ramp, saturating at twice the default energy.
func (k *CPU) cellColor(energy float64) color.RGBA {
	t := 0.0
	if k.params.CellDefaultEnergy > 0 {
		t = math.Min(energy/(2*k.params.CellDefaultEnergy), 1)
	}
	return color.RGBA{R: uint8(80 + 175*t), G: 200, B: 60, A: 255}
}

// glow blends a quarter of c into the four neighbours of (x, y).
func glow(img *image.RGBA, x, y int, c color.RGBA) {
	b := img.Bounds()
	for _, d := range [4]image.Point{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}} {
		p := image.Point{X: x + d.X, Y: y + d.Y}
		if !p.In(b) {
			continue
		}
		old := img.RGBAAt(p.X, p.Y)
		img.SetRGBA(p.X, p.Y, color.RGBA{
			R: addClamped(old.R, c.R/4),
			G: addClamped(old.G, c.G/4),
			B: addClamped(old.B, c.B/4),
			A: 255,
		})
	}
}

func addClamped(a, b uint8) uint8 {
	if s := int(a) + int(b); s < 255 {
		return uint8(s)
	}
	return 255
}
