// Package render draws a top view of the field from a referee decision.
package render

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"

	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/referee/field"
)

var (
	turfColor   = color.RGBA{34, 110, 52, 255}
	lineColor   = color.RGBA{240, 240, 240, 255}
	ballColor   = color.RGBA{250, 250, 250, 255}
	removedTint = color.RGBA{120, 120, 120, 200}
	textColor   = color.White
	teamColors  = [2]color.RGBA{
		{220, 50, 47, 255},  // red
		{38, 139, 210, 255}, // blue
	}
)

// FieldRenderer turns decisions into images. It is not safe for
// concurrent use; the API guards it with a mutex.
type FieldRenderer struct {
	geometry field.Geometry
	width    int
	height   int
	scale    float64 // pixels per meter
	dc       *gg.Context
}

// NewFieldRenderer sizes the image so the turf, border strip included,
// fills width pixels.
func NewFieldRenderer(g field.Geometry, width int) *FieldRenderer {
	turfX := 2 * (g.SizeX + g.BorderStrip)
	turfY := 2 * (g.SizeY + g.BorderStrip)
	scale := float64(width) / turfX
	height := int(turfY*scale) + headerHeight
	return &FieldRenderer{
		geometry: g,
		width:    width,
		height:   height,
		scale:    scale,
		dc:       gg.NewContext(width, height),
	}
}

const headerHeight = 24

// Size returns the image dimensions.
func (r *FieldRenderer) Size() (int, int) {
	return r.width, r.height
}

// toPixel maps field coordinates (meters, +y up) to image pixels.
func (r *FieldRenderer) toPixel(v field.Vec3) (float64, float64) {
	g := r.geometry
	x := (v.X + g.SizeX + g.BorderStrip) * r.scale
	y := (g.SizeY + g.BorderStrip - v.Y) * r.scale
	return x, y + headerHeight
}

// Render draws d. A nil decision draws the empty field.
func (r *FieldRenderer) Render(d *referee.Decision) image.Image {
	dc := r.dc
	dc.SetColor(color.Black)
	dc.Clear()

	r.drawField(dc)
	if d != nil {
		r.drawRobots(dc, d)
		r.drawBall(dc, d.Ball)
		r.drawHeader(dc, d)
	}
	return dc.Image()
}

// EncodePNG renders d and writes it as PNG.
func (r *FieldRenderer) EncodePNG(w io.Writer, d *referee.Decision) error {
	r.Render(d)
	return r.dc.EncodePNG(w)
}

func (r *FieldRenderer) drawField(dc *gg.Context) {
	g := r.geometry
	dc.SetColor(turfColor)
	dc.DrawRectangle(0, headerHeight, float64(r.width), float64(r.height-headerHeight))
	dc.Fill()

	dc.SetColor(lineColor)
	dc.SetLineWidth(max(1, g.LineWidth*r.scale))

	r.rect(dc, -g.SizeX, -g.SizeY, g.SizeX, g.SizeY)
	x0, y0 := r.toPixel(field.Vec3{Y: g.SizeY})
	x1, y1 := r.toPixel(field.Vec3{Y: -g.SizeY})
	dc.DrawLine(x0, y0, x1, y1)
	dc.Stroke()

	cx, cy := r.toPixel(field.Vec3{})
	dc.DrawCircle(cx, cy, g.CircleRadius*r.scale)
	dc.Stroke()

	for _, side := range []field.Side{field.Negative, field.Positive} {
		s := side.Sign()
		r.rect(dc, s*(g.SizeX-g.PenaltyAreaLength), -g.PenaltyAreaWidth/2, s*g.SizeX, g.PenaltyAreaWidth/2)
		r.rect(dc, s*(g.SizeX-g.GoalAreaLength), -g.GoalAreaWidth/2, s*g.SizeX, g.GoalAreaWidth/2)

		mx, my := r.toPixel(g.PenaltyMark(side))
		dc.DrawCircle(mx, my, max(1.5, g.LineWidth*r.scale))
		dc.Fill()

		// goal posts behind the line
		gx0, gy0 := r.toPixel(field.Vec3{X: s * g.SizeX, Y: -g.GoalWidth / 2})
		gx1, gy1 := r.toPixel(field.Vec3{X: s * (g.SizeX + g.BorderStrip/3), Y: g.GoalWidth / 2})
		dc.DrawRectangle(min(gx0, gx1), min(gy0, gy1), abs(gx1-gx0), abs(gy1-gy0))
		dc.Stroke()
	}
}

// rect strokes the rectangle spanned by two field corners.
func (r *FieldRenderer) rect(dc *gg.Context, xa, ya, xb, yb float64) {
	x0, y0 := r.toPixel(field.Vec3{X: xa, Y: ya})
	x1, y1 := r.toPixel(field.Vec3{X: xb, Y: yb})
	dc.DrawRectangle(min(x0, x1), min(y0, y1), abs(x1-x0), abs(y1-y0))
	dc.Stroke()
}

func (r *FieldRenderer) drawRobots(dc *gg.Context, d *referee.Decision) {
	radius := max(3, r.geometry.RobotRadius*r.scale/2)
	for i, team := range d.Teams {
		for _, p := range team.Players {
			if !p.Present {
				continue
			}
			x, y := r.toPixel(p.Position)
			if p.Removed {
				dc.SetColor(removedTint)
			} else {
				dc.SetColor(teamColors[i])
			}
			dc.DrawCircle(x, y, radius)
			dc.Fill()

			if p.Fallen {
				dc.SetColor(color.Black)
				dc.SetLineWidth(2)
				dc.DrawLine(x-radius, y-radius, x+radius, y+radius)
				dc.Stroke()
			}
			dc.SetColor(textColor)
			dc.DrawStringAnchored(fmt.Sprint(p.Number), x, y, 0.5, 0.35)
		}
	}
}

func (r *FieldRenderer) drawBall(dc *gg.Context, ball field.Vec3) {
	x, y := r.toPixel(ball)
	dc.SetColor(ballColor)
	dc.DrawCircle(x, y, max(2, r.geometry.BallRadius*r.scale))
	dc.Fill()
	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawCircle(x, y, max(2, r.geometry.BallRadius*r.scale))
	dc.Stroke()
}

func (r *FieldRenderer) drawHeader(dc *gg.Context, d *referee.Decision) {
	red, blue := d.Teams[referee.Red], d.Teams[referee.Blue]
	line := fmt.Sprintf("%s %d - %d %s   %s", red.Name, d.Score[referee.Red], d.Score[referee.Blue], blue.Name, d.Phase)
	if d.Interruption.Kind != referee.Normal {
		line += fmt.Sprintf(" / %s stage %d", d.Interruption.Kind, d.Interruption.Stage)
	}
	if d.Shootout != nil {
		line += fmt.Sprintf("   penalties %d-%d", red.PenaltyGoals, blue.PenaltyGoals)
	} else if d.Remaining > 0 {
		line += fmt.Sprintf("   %d:%02d", int(d.Remaining)/60, int(d.Remaining)%60)
	}
	dc.SetColor(textColor)
	dc.DrawStringAnchored(line, float64(r.width)/2, headerHeight/2, 0.5, 0.35)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
