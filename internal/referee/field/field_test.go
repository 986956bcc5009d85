package field

import (
	"math"
	"strings"
	"testing"
)

// TestForClass tests field class lookup
func TestForClass(t *testing.T) {
	tests := []struct {
		class   string
		sizeX   float64
		wantErr bool
	}{
		{"kid", 4.5, false},
		{" Adult ", 7, false},
		{"teen", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			g, err := ForClass(tt.class)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected error for unknown class")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if g.SizeX != tt.sizeX {
				t.Errorf("Expected sizeX %v, got %v", tt.sizeX, g.SizeX)
			}
			if err := g.Validate(); err != nil {
				t.Errorf("Built-in geometry should validate: %v", err)
			}
		})
	}
}

// TestValidateRejectsMalformedGeometry tests geometry sanity checks
func TestValidateRejectsMalformedGeometry(t *testing.T) {
	g := Kid()
	g.SizeX = -1
	if err := g.Validate(); err == nil {
		t.Error("Negative field length should be rejected")
	}

	g = Kid()
	g.PenaltyAreaWidth = 10
	if err := g.Validate(); err == nil {
		t.Error("Penalty area wider than the field should be rejected")
	}

	g = Kid()
	g.GoalWidth = 4
	if err := g.Validate(); err == nil {
		t.Error("Goal wider than the goal area should be rejected")
	}

	g = Kid()
	g.SizeX, g.SizeY, g.BallRadius = 0, -1, 0
	first := g.Validate()
	if first == nil {
		t.Fatal("Zero dimensions should be rejected")
	}
	want := "sizeX must be positive, got 0\nsizeY must be positive, got -1\nballRadius must be positive, got 0"
	for i := 0; i < 10; i++ {
		if got := g.Validate().Error(); !strings.HasPrefix(got, want) || got != first.Error() {
			t.Fatalf("Expected stable error order starting with %q, got %q", want, got)
		}
	}
}

// TestPenaltyAreaPredicateIsPure tests that repeated queries agree
func TestPenaltyAreaPredicateIsPure(t *testing.T) {
	g := Kid()
	points := []Vec3{
		{X: 4, Y: 0},
		{X: -4, Y: 2.4},
		{X: 2.4, Y: 0},
		{X: 3, Y: 2.6},
	}

	for _, p := range points {
		for _, side := range []Side{Negative, Positive} {
			first := g.InPenaltyArea(p, side)
			second := g.InPenaltyArea(p, side)
			if first != second {
				t.Errorf("InPenaltyArea(%v, %v) changed between calls", p, side)
			}
		}
	}
}

// TestAreas tests area membership on both halves
func TestAreas(t *testing.T) {
	g := Kid()

	if !g.InPenaltyArea(Vec3{X: 4, Y: 1}, Positive) {
		t.Error("Point in front of +x goal should be in its penalty area")
	}
	if g.InPenaltyArea(Vec3{X: 4, Y: 1}, Negative) {
		t.Error("Point near +x goal should not be in the -x penalty area")
	}
	if !g.InGoalArea(Vec3{X: -4, Y: -1}, Negative) {
		t.Error("Point in front of -x goal should be in its goal area")
	}
	if g.InGoalArea(Vec3{X: -3, Y: 0}, Negative) {
		t.Error("Point 1.5m from goal line should be outside the goal area")
	}
	if !g.InCircle(Vec3{X: 0.5, Y: 0.5}) {
		t.Error("Point near center should be in the circle")
	}
	if g.InCircle(Vec3{X: 0.8, Y: 0}) {
		t.Error("Point beyond radius should be outside the circle")
	}
	if !g.InsideSide(Vec3{X: 0.01}, Negative) {
		t.Error("Center line should count for both halves")
	}
	if g.InsideSide(Vec3{X: 1}, Negative) {
		t.Error("Positive x should not belong to the -x half")
	}
}

// TestFieldAndTurf tests outer line and turf membership
func TestFieldAndTurf(t *testing.T) {
	g := Kid()

	if !g.InsideField(Vec3{X: 4.5, Y: 3}) {
		t.Error("Outer line belongs to the field")
	}
	if g.InsideField(Vec3{X: 4.6}) {
		t.Error("Point past the goal line is outside the field")
	}
	if !g.InsideTurf(Vec3{X: 5.3}) {
		t.Error("Border strip belongs to the turf")
	}
	if g.InsideTurf(Vec3{X: 5.6}) {
		t.Error("Point past the border strip is off the turf")
	}
}

// TestGoalCrossedIsSymmetric tests the whole-ball convention on both goals
func TestGoalCrossedIsSymmetric(t *testing.T) {
	g := Kid()
	r := g.BallRadius

	tests := []struct {
		name     string
		ball     Vec3
		wantGoal bool
		wantSide Side
	}{
		{"on line +x", Vec3{X: g.SizeX, Z: r}, false, Positive},
		{"edge past +x", Vec3{X: g.SizeX + r/2, Z: r}, false, Positive},
		{"fully past +x", Vec3{X: g.SizeX + r + 0.01, Z: r}, true, Positive},
		{"fully past -x", Vec3{X: -(g.SizeX + r + 0.01), Z: r}, true, Negative},
		{"edge past -x", Vec3{X: -(g.SizeX + r/2), Z: r}, false, Negative},
		{"wide of post", Vec3{X: g.SizeX + 0.2, Y: 1.4, Z: r}, false, Positive},
		{"over crossbar", Vec3{X: -(g.SizeX + 0.2), Z: 1.3}, false, Negative},
		{"clipping crossbar", Vec3{X: g.SizeX + 0.2, Z: g.GoalHeight - r/2}, false, Positive},
		{"under crossbar", Vec3{X: g.SizeX + 0.2, Z: g.GoalHeight - r - 0.01}, true, Positive},
		{"clipping post", Vec3{X: -(g.SizeX + 0.2), Y: g.GoalWidth/2 - r/2, Z: r}, false, Negative},
		{"inside post", Vec3{X: -(g.SizeX + 0.2), Y: g.GoalWidth/2 - r - 0.01, Z: r}, true, Negative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			side, ok := g.GoalCrossed(tt.ball)
			if ok != tt.wantGoal {
				t.Fatalf("Expected goal=%v, got %v", tt.wantGoal, ok)
			}
			if ok && side != tt.wantSide {
				t.Errorf("Expected side %v, got %v", tt.wantSide, side)
			}
		})
	}
}

// TestBallOut tests boundary classification
func TestBallOut(t *testing.T) {
	g := Kid()
	if b := g.BallOut(Vec3{X: 1, Y: 3.2}); b != BoundaryTouchLine {
		t.Errorf("Expected touch line, got %v", b)
	}
	if b := g.BallOut(Vec3{X: -4.7, Y: 2}); b != BoundaryGoalLine {
		t.Errorf("Expected goal line, got %v", b)
	}
	if b := g.BallOut(Vec3{X: 4.5, Y: 3}); b != BoundaryNone {
		t.Errorf("Ball on the corner is still in, got %v", b)
	}
}

// TestRestartSpots tests spot construction
func TestRestartSpots(t *testing.T) {
	g := Kid()

	spot := g.TouchLineSpot(Vec3{X: 6, Y: -3.4})
	if spot.X != g.SizeX || spot.Y != -g.SizeY {
		t.Errorf("Touch line spot should clamp to the corner, got %+v", spot)
	}

	gk := g.GoalKickSpot(Negative, 0.4)
	if gk.X != -3.5 || gk.Y != 1.5 {
		t.Errorf("Unexpected goal kick spot %+v", gk)
	}

	pl := g.PenaltyLineSpot(Vec3{X: 4.2, Y: -3}, Positive)
	if pl.X != 2.5 || pl.Y != -2.5 {
		t.Errorf("Penalty line spot should clamp onto the line, got %+v", pl)
	}

	if m := g.PenaltyMark(Negative); m.X != -3 {
		t.Errorf("Expected penalty mark at -3, got %v", m.X)
	}
}

// TestFlipIsInvolution tests that flipping twice restores the pose
func TestFlipIsInvolution(t *testing.T) {
	poses := []Pose{
		{Translation: Vec3{X: -3.5, Y: 1.2, Z: 0.4}, Rotation: [4]float64{0, 0, 1, 0}},
		{Translation: Vec3{X: 0.7, Y: -2, Z: 0.3}, Rotation: [4]float64{0, 0, 1, 1.57}},
		{Translation: Vec3{X: 4.1, Y: 0, Z: 0.3}, Rotation: [4]float64{0, 0, 1, -2.2}},
	}

	for _, p := range poses {
		once := p.Flip()
		if once.Translation.X != -p.Translation.X {
			t.Errorf("Flip should mirror x: %v -> %v", p.Translation.X, once.Translation.X)
		}
		twice := once.Flip()
		if twice.Translation != p.Translation {
			t.Errorf("Translation not restored: %+v != %+v", twice.Translation, p.Translation)
		}
		if math.Abs(twice.Rotation[3]-p.Rotation[3]) > 1e-12 {
			t.Errorf("Angle not restored: %v != %v", twice.Rotation[3], p.Rotation[3])
		}
	}
}
