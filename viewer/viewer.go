// Package viewer shows the simulated world in a raylib window.
//
// The viewer is a reader of the guarded render target: it requests images
// through the access facade and uploads each finished image to a texture.
package viewer

import (
	"context"
	"image"
	"image/color"
	"log/slog"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/clusters/access"
	"github.com/pthm-cable/clusters/camera"
	"github.com/pthm-cable/clusters/control"
	"github.com/pthm-cable/clusters/geometry"
	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/monitor"
	"github.com/pthm-cable/clusters/render"
	"github.com/pthm-cable/clusters/telemetry"
)

const (
	panelWidth = 200
	panSpeed   = 8
)

// Status reports the state of the simulation loop.
type Status interface {
	IsSimulationRunning() bool
	Timestep() uint64
	Perf() *telemetry.PerfCollector
}

// Viewer draws the world and forwards user input.
type Viewer struct {
	facade  *access.Facade
	control *control.Controller
	monitor *monitor.Monitor
	status  Status
	logger  *slog.Logger

	cam     *camera.Camera
	target  *render.Target
	texture rl.Texture2D
	pixels  []color.RGBA
	theme   Theme

	imagePending bool
	dragging     bool
	dragFrom     geometry.Vec
	rate         float32
}

// New creates a viewer. The raylib window must already be open.
func New(f *access.Facade, c *control.Controller, m *monitor.Monitor, s Status, space geometry.Space, logger *slog.Logger) *Viewer {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Viewer{
		facade:  f,
		control: c,
		monitor: m,
		status:  s,
		logger:  logger,
		cam:     camera.New(float64(rl.GetScreenWidth()), float64(rl.GetScreenHeight()), space),
		theme:   DefaultTheme(),
	}
	w, h := v.cam.ImageSize()
	v.target = render.NewTarget(w, h)
	v.loadTexture(w, h)
	return v
}

// Close releases the texture.
func (v *Viewer) Close() {
	rl.UnloadTexture(v.texture)
}

// Run draws frames until the window is closed or ctx is done.
func (v *Viewer) Run(ctx context.Context) {
	for !rl.WindowShouldClose() && ctx.Err() == nil {
		v.handleEvents()
		v.handleInput()
		v.requestImage()
		v.draw()
		v.status.Perf().RecordFrame()
	}
}

func (v *Viewer) loadTexture(w, h int) {
	img := rl.GenImageColor(w, h, rl.Black)
	v.texture = rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	v.pixels = make([]color.RGBA, w*h)
}

func (v *Viewer) handleEvents() {
	for {
		select {
		case e := <-v.facade.Events():
			switch e.Kind {
			case access.ImageReady:
				v.upload()
				v.imagePending = false
			case access.Error:
				v.logger.Warn("access request failed", "error", e.Err)
				v.imagePending = false
			}
		default:
			return
		}
	}
}

func (v *Viewer) upload() {
	v.target.Read(func(img *image.RGBA) {
		copyPixels(v.pixels, img)
	})
	rl.UpdateTexture(v.texture, v.pixels)
}

// copyPixels copies img into dst row by row. dst has the size of img.
func copyPixels(dst []color.RGBA, img *image.RGBA) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if i >= len(dst) {
				return
			}
			dst[i] = img.RGBAAt(x, y)
			i++
		}
	}
}

func (v *Viewer) handleInput() {
	v.cam.Resize(float64(rl.GetScreenWidth()), float64(rl.GetScreenHeight()))

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		v.cam.ZoomBy(1 + 0.1*float64(wheel))
	}
	if rl.IsMouseButtonDown(rl.MouseButtonRight) {
		d := rl.GetMouseDelta()
		v.cam.Pan(-float64(d.X), -float64(d.Y))
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		v.cam.Pan(-panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyRight) {
		v.cam.Pan(panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		v.cam.Pan(0, -panSpeed)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		v.cam.Pan(0, panSpeed)
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		v.toggleRun()
	}

	mouse := rl.GetMousePosition()
	overPanel := mouse.X < panelWidth
	if rl.IsMouseButtonPressed(rl.MouseButtonLeft) && !overPanel {
		v.dragging = true
		v.dragFrom = v.cam.ScreenToWorld(float64(mouse.X), float64(mouse.Y))
	}
	if rl.IsMouseButtonReleased(rl.MouseButtonLeft) && v.dragging {
		v.dragging = false
		to := v.cam.ScreenToWorld(float64(mouse.X), float64(mouse.Y))
		if err := v.facade.ApplyAction(kernel.Action{From: v.dragFrom, To: to}); err != nil {
			v.logger.Error("apply action failed", "error", err)
		}
	}
}

func (v *Viewer) toggleRun() {
	if v.status.IsSimulationRunning() {
		v.control.Stop()
	} else {
		v.control.Run()
	}
}

// requestImage asks for the next image once the previous one has arrived.
// The target is only resized while no image is in flight.
func (v *Viewer) requestImage() {
	if v.imagePending {
		return
	}
	w, h := v.cam.ImageSize()
	if b := v.target.Bounds(); b.Dx() != w || b.Dy() != h {
		v.target.Resize(w, h)
		rl.UnloadTexture(v.texture)
		v.loadTexture(w, h)
	}
	if err := v.facade.RequireImage(v.cam.Region(), v.target); err != nil {
		v.logger.Error("image request failed", "error", err)
		return
	}
	v.imagePending = true
}

func (v *Viewer) draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.Black)

	w, h := v.cam.ImageSize()
	zoom := float32(v.cam.Zoom)
	rl.DrawTexturePro(
		v.texture,
		rl.Rectangle{X: 0, Y: 0, Width: float32(w), Height: float32(h)},
		rl.Rectangle{X: 0, Y: 0, Width: float32(w) * zoom, Height: float32(h) * zoom},
		rl.Vector2{},
		0,
		rl.White,
	)
	if v.dragging {
		mouse := rl.GetMousePosition()
		from := v.worldToScreen(v.dragFrom)
		rl.DrawLineV(from, mouse, rl.Yellow)
	}

	v.drawPanel()
	rl.EndDrawing()
}

func (v *Viewer) worldToScreen(p geometry.Vec) rl.Vector2 {
	r := v.cam.Region()
	space := geometry.Space{Width: r.Width(), Height: r.Height()}
	d := space.Correct(geometry.Vec{X: p.X - float64(r.P1.X), Y: p.Y - float64(r.P1.Y)})
	return rl.Vector2{X: float32(d.X * v.cam.Zoom), Y: float32(d.Y * v.cam.Zoom)}
}

func (v *Viewer) drawPanel() {
	t := v.theme
	x, y := int32(t.Padding), int32(t.Padding)
	running := v.status.IsSimulationRunning()

	label := "Run"
	if running {
		label = "Stop"
	}
	if gui.Button(rl.Rectangle{X: float32(x), Y: float32(y), Width: 85, Height: 28}, label) {
		v.toggleRun()
	}
	if gui.Button(rl.Rectangle{X: float32(x + 95), Y: float32(y), Width: 85, Height: 28}, "Step") && !running {
		v.control.Step()
	}
	y += 38

	rl.DrawText("Rate limit (0 = off)", x, y, t.FontSize, t.LabelColor)
	y += t.LineHeight
	rate := gui.SliderBar(rl.Rectangle{X: float32(x), Y: float32(y), Width: 180, Height: 16}, "", "", v.rate, 0, 240)
	if int(rate) != int(v.rate) {
		v.rate = rate
		v.control.RestrictRate(int(rate))
	}
	y += 26

	lines := statsLines(v.monitor.RetrieveStats(), v.status.Timestep(), v.status.Perf().Stats())
	t.drawStats(x, y, panelWidth-2*t.Padding, "World", lines)
}
