// Package field describes the soccer field geometry and answers the
// geometric questions the referee asks every tick.
//
// Coordinates are in meters with the origin at the center mark: x runs
// along the field length (goals at ±SizeX), y across it (touch lines at
// ±SizeY) and z points up. Every predicate is a pure function of its
// arguments; Geometry values are never mutated after construction.
package field

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Field classes supported by the referee.
const (
	ClassKid   = "kid"
	ClassAdult = "adult"
)

// =============================================================================
// SIDES
// =============================================================================

// Side identifies one half of the field by the sign of its x coordinates.
type Side int

const (
	Negative Side = -1
	Positive Side = 1
)

// Sign returns the side as a float multiplier.
func (s Side) Sign() float64 {
	if s == Negative {
		return -1
	}
	return 1
}

// Opposite returns the other half.
func (s Side) Opposite() Side {
	if s == Negative {
		return Positive
	}
	return Negative
}

func (s Side) String() string {
	if s == Negative {
		return "-x"
	}
	return "+x"
}

// SideOf returns the half containing x. The center line belongs to +x.
func SideOf(x float64) Side {
	if x < 0 {
		return Negative
	}
	return Positive
}

// =============================================================================
// GEOMETRY
// =============================================================================

// Geometry holds the dimensions of one field class.
type Geometry struct {
	Class string `json:"class"`

	SizeX float64 `json:"sizeX"` // half length, center line to goal line
	SizeY float64 `json:"sizeY"` // half width, center line to touch line

	GoalWidth         float64 `json:"goalWidth"`
	GoalHeight        float64 `json:"goalHeight"`
	GoalAreaLength    float64 `json:"goalAreaLength"`
	GoalAreaWidth     float64 `json:"goalAreaWidth"`
	PenaltyAreaLength float64 `json:"penaltyAreaLength"`
	PenaltyAreaWidth  float64 `json:"penaltyAreaWidth"`
	PenaltyMarkX      float64 `json:"penaltyMarkX"` // distance from the center mark
	CircleRadius      float64 `json:"circleRadius"`
	LineWidth         float64 `json:"lineWidth"`
	TurfDepth         float64 `json:"turfDepth"`
	BorderStrip       float64 `json:"borderStrip"` // turf beyond the outer lines

	BallRadius             float64 `json:"ballRadius"`
	OpponentDistanceToBall float64 `json:"opponentDistanceToBall"`
	RobotRadius            float64 `json:"robotRadius"` // contact attribution radius
}

// Kid returns the kid-size field.
func Kid() Geometry {
	return Geometry{
		Class:                  ClassKid,
		SizeX:                  4.5,
		SizeY:                  3,
		GoalWidth:              2.6,
		GoalHeight:             1.2,
		GoalAreaLength:         1,
		GoalAreaWidth:          3,
		PenaltyAreaLength:      2,
		PenaltyAreaWidth:       5,
		PenaltyMarkX:           3,
		CircleRadius:           0.75,
		LineWidth:              0.05,
		TurfDepth:              0.01,
		BorderStrip:            1,
		BallRadius:             0.07,
		OpponentDistanceToBall: 0.75,
		RobotRadius:            0.3,
	}
}

// Adult returns the adult-size field.
func Adult() Geometry {
	return Geometry{
		Class:                  ClassAdult,
		SizeX:                  7,
		SizeY:                  4.5,
		GoalWidth:              2.6,
		GoalHeight:             1.8,
		GoalAreaLength:         1,
		GoalAreaWidth:          4,
		PenaltyAreaLength:      3,
		PenaltyAreaWidth:       6,
		PenaltyMarkX:           4.9,
		CircleRadius:           1.5,
		LineWidth:              0.05,
		TurfDepth:              0.01,
		BorderStrip:            1,
		BallRadius:             0.1125,
		OpponentDistanceToBall: 1.5,
		RobotRadius:            0.5,
	}
}

// ForClass returns the geometry registered for a field class name.
func ForClass(class string) (Geometry, error) {
	switch strings.ToLower(strings.TrimSpace(class)) {
	case ClassKid:
		return Kid(), nil
	case ClassAdult:
		return Adult(), nil
	default:
		return Geometry{}, fmt.Errorf("unsupported field class %q", class)
	}
}

// Validate reports malformed dimensions.
func (g Geometry) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value float64
	}{
		{"sizeX", g.SizeX},
		{"sizeY", g.SizeY},
		{"goalWidth", g.GoalWidth},
		{"goalHeight", g.GoalHeight},
		{"goalAreaLength", g.GoalAreaLength},
		{"goalAreaWidth", g.GoalAreaWidth},
		{"penaltyAreaLength", g.PenaltyAreaLength},
		{"penaltyAreaWidth", g.PenaltyAreaWidth},
		{"penaltyMarkX", g.PenaltyMarkX},
		{"circleRadius", g.CircleRadius},
		{"ballRadius", g.BallRadius},
		{"robotRadius", g.RobotRadius},
	}
	for _, dim := range positive {
		if !(dim.value > 0) {
			errs = append(errs, fmt.Errorf("%s must be positive, got %g", dim.name, dim.value))
		}
	}
	if g.TurfDepth < 0 || g.LineWidth < 0 || g.BorderStrip < 0 {
		errs = append(errs, errors.New("turf depth, line width and border strip cannot be negative"))
	}
	if g.GoalWidth >= g.GoalAreaWidth {
		errs = append(errs, fmt.Errorf("goal width %g must be narrower than the goal area %g", g.GoalWidth, g.GoalAreaWidth))
	}
	if g.GoalAreaWidth > g.PenaltyAreaWidth || g.GoalAreaLength > g.PenaltyAreaLength {
		errs = append(errs, errors.New("goal area must fit inside the penalty area"))
	}
	if g.PenaltyAreaWidth >= 2*g.SizeY || g.PenaltyAreaLength >= g.SizeX {
		errs = append(errs, errors.New("penalty area must fit inside the half field"))
	}
	if g.PenaltyMarkX >= g.SizeX || g.PenaltyMarkX <= g.CircleRadius {
		errs = append(errs, fmt.Errorf("penalty mark %g must lie between the center circle and the goal line", g.PenaltyMarkX))
	}
	return errors.Join(errs...)
}

// halfLine is the tolerance given to points lying on a painted line.
func (g Geometry) halfLine() float64 {
	return g.LineWidth / 2
}

// InsideField reports whether p lies inside the outer lines. Lines belong
// to the field.
func (g Geometry) InsideField(p Vec3) bool {
	return math.Abs(p.X) <= g.SizeX+g.halfLine() && math.Abs(p.Y) <= g.SizeY+g.halfLine()
}

// InsideTurf reports whether p lies on the turf, border strip included.
func (g Geometry) InsideTurf(p Vec3) bool {
	return math.Abs(p.X) <= g.SizeX+g.BorderStrip && math.Abs(p.Y) <= g.SizeY+g.BorderStrip
}

// InCircle reports whether p lies inside the center circle, line included.
func (g Geometry) InCircle(p Vec3) bool {
	return math.Hypot(p.X, p.Y) <= g.CircleRadius+g.halfLine()
}

// InsideSide reports whether p lies in the half of the field whose goal is
// at the given side. The center line counts for both halves.
func (g Geometry) InsideSide(p Vec3, side Side) bool {
	return p.X*side.Sign() >= -g.halfLine()
}

// InPenaltyArea reports whether p lies in the penalty area in front of the
// goal at side.
func (g Geometry) InPenaltyArea(p Vec3, side Side) bool {
	return g.inBox(p, side, g.PenaltyAreaLength, g.PenaltyAreaWidth)
}

// InGoalArea reports whether p lies in the goal area in front of the goal
// at side.
func (g Geometry) InGoalArea(p Vec3, side Side) bool {
	return g.inBox(p, side, g.GoalAreaLength, g.GoalAreaWidth)
}

func (g Geometry) inBox(p Vec3, side Side, length, width float64) bool {
	x := p.X * side.Sign()
	hl := g.halfLine()
	return x >= g.SizeX-length-hl && x <= g.SizeX+hl && math.Abs(p.Y) <= width/2+hl
}

// =============================================================================
// BALL BOUNDARIES
// =============================================================================

// Boundary identifies which outer line a ball left the field across.
type Boundary int

const (
	BoundaryNone Boundary = iota
	BoundaryTouchLine
	BoundaryGoalLine
)

func (b Boundary) String() string {
	switch b {
	case BoundaryTouchLine:
		return "touch_line"
	case BoundaryGoalLine:
		return "goal_line"
	default:
		return "none"
	}
}

// GoalCrossed reports whether the ball entered a goal and which one. The
// whole ball must be past the goal line plane, between the posts and
// under the crossbar. Both goals use the same convention.
func (g Geometry) GoalCrossed(ball Vec3) (Side, bool) {
	if math.Abs(ball.X) <= g.SizeX+g.BallRadius {
		return Positive, false
	}
	if math.Abs(ball.Y)+g.BallRadius >= g.GoalWidth/2 || ball.Z+g.BallRadius >= g.GoalHeight {
		return SideOf(ball.X), false
	}
	return SideOf(ball.X), true
}

// BallOut reports whether the whole ball has left the field and across
// which line. A ball past both lines near a corner counts as over the
// goal line.
func (g Geometry) BallOut(ball Vec3) Boundary {
	if math.Abs(ball.X) > g.SizeX+g.BallRadius {
		return BoundaryGoalLine
	}
	if math.Abs(ball.Y) > g.SizeY+g.BallRadius {
		return BoundaryTouchLine
	}
	return BoundaryNone
}

// =============================================================================
// RESTART SPOTS
// =============================================================================

// restZ is the height of a ball resting on the turf.
func (g Geometry) restZ() float64 {
	return g.BallRadius + g.TurfDepth
}

// KickOffSpot returns the ball rest position on the center mark.
func (g Geometry) KickOffSpot() Vec3 {
	return Vec3{Z: g.restZ()}
}

// TouchLineSpot projects the exit point of a ball onto the touch line it
// crossed.
func (g Geometry) TouchLineSpot(exit Vec3) Vec3 {
	x := math.Max(-g.SizeX, math.Min(g.SizeX, exit.X))
	return Vec3{X: x, Y: math.Copysign(g.SizeY, exit.Y), Z: g.restZ()}
}

// CornerSpot returns the corner on the goal line at side nearest to y.
func (g Geometry) CornerSpot(side Side, y float64) Vec3 {
	return Vec3{X: side.Sign() * g.SizeX, Y: math.Copysign(g.SizeY, y), Z: g.restZ()}
}

// GoalKickSpot returns the goal area corner at side nearest to y.
func (g Geometry) GoalKickSpot(side Side, y float64) Vec3 {
	return Vec3{
		X: side.Sign() * (g.SizeX - g.GoalAreaLength),
		Y: math.Copysign(g.GoalAreaWidth/2, y),
		Z: g.restZ(),
	}
}

// PenaltyMark returns the penalty mark in front of the goal at side.
func (g Geometry) PenaltyMark(side Side) Vec3 {
	return Vec3{X: side.Sign() * g.PenaltyMarkX, Z: g.restZ()}
}

// PenaltyLineSpot moves p onto the penalty area line facing the field in
// front of the goal at side.
func (g Geometry) PenaltyLineSpot(p Vec3, side Side) Vec3 {
	half := g.PenaltyAreaWidth / 2
	return Vec3{
		X: side.Sign() * (g.SizeX - g.PenaltyAreaLength),
		Y: math.Max(-half, math.Min(half, p.Y)),
		Z: g.restZ(),
	}
}

// RestOnTurf returns p dropped to the resting ball height.
func (g Geometry) RestOnTurf(p Vec3) Vec3 {
	p.Z = g.restZ()
	return p
}
