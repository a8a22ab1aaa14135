package viewer

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/clusters/kernel"
	"github.com/pthm-cable/clusters/telemetry"
)

// Theme holds HUD styling constants.
type Theme struct {
	PanelBg        rl.Color
	PanelBorder    rl.Color
	SectionHeader  rl.Color
	LabelColor     rl.Color
	ValueColor     rl.Color
	Padding        int32
	LineHeight     int32
	LabelWidth     int32
	FontSize       int32
	HeaderFontSize int32
}

// DefaultTheme returns the default HUD theme.
func DefaultTheme() Theme {
	return Theme{
		PanelBg:        rl.Color{R: 20, G: 25, B: 30, A: 240},
		PanelBorder:    rl.Color{R: 60, G: 70, B: 80, A: 255},
		SectionHeader:  rl.Yellow,
		LabelColor:     rl.LightGray,
		ValueColor:     rl.White,
		Padding:        10,
		LineHeight:     16,
		LabelWidth:     90,
		FontSize:       12,
		HeaderFontSize: 14,
	}
}

// hudLine is one label/value row of the stats panel.
type hudLine struct {
	label, value string
}

func statsLines(s kernel.Stats, timestep uint64, perf telemetry.PerfStats) []hudLine {
	return []hudLine{
		{"Timestep", fmt.Sprintf("%d", timestep)},
		{"Clusters", fmt.Sprintf("%d", s.Clusters)},
		{"Cells", fmt.Sprintf("%d", s.Cells)},
		{"Particles", fmt.Sprintf("%d", s.Particles)},
		{"Tokens", fmt.Sprintf("%d", s.Tokens)},
		{"Energy", fmt.Sprintf("%.1f", s.TotalEnergy())},
		{"Kinetic", fmt.Sprintf("%.3f", s.KineticEnergy())},
		{"Steps/s", fmt.Sprintf("%.0f", perf.TicksPerSecond)},
		{"Tick", fmt.Sprintf("%.0fus", float64(perf.AvgTickDuration.Microseconds()))},
	}
}

// drawPanel draws a panel background with border.
func (t Theme) drawPanel(x, y, width, height int32) {
	rl.DrawRectangle(x, y, width, height, t.PanelBg)
	rl.DrawRectangleLines(x, y, width, height, t.PanelBorder)
}

// drawStats draws the stats panel and returns its bottom Y position.
func (t Theme) drawStats(x, y, width int32, title string, lines []hudLine) int32 {
	height := t.Padding*2 + t.LineHeight*int32(len(lines)+1)
	t.drawPanel(x, y, width, height)

	cy := y + t.Padding
	rl.DrawText(title, x+t.Padding, cy, t.HeaderFontSize, t.SectionHeader)
	cy += t.LineHeight
	for _, l := range lines {
		rl.DrawText(l.label+":", x+t.Padding, cy, t.FontSize, t.LabelColor)
		rl.DrawText(l.value, x+t.Padding+t.LabelWidth, cy, t.FontSize, t.ValueColor)
		cy += t.LineHeight
	}
	return y + height
}
