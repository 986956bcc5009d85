package referee

import (
	"testing"
	"time"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee/field"
)

// throwInFor plays the ball over the touch line off an opponent of team
// and returns the throw in spot.
func throwInFor(t *testing.T, e *Engine, s *scene, team Color) field.Vec3 {
	t.Helper()
	x := 1.0
	if team == Red {
		x = -1
	}
	last := standing(team.Opponent(), 2, x, 2.2)
	s.ball = ballAt(x, 2.4)
	s.set(touching(last, s.ball, PartFoot))
	step(t, e, s)
	s.set(last)
	s.ball = ballAt(x, 3.2)
	d := step(t, e, s)
	if d.Interruption.Kind != ThrowIn || d.Interruption.Team != team {
		t.Fatalf("Expected a throw in for %s, got %s for %s", team, d.Interruption.Kind, d.Interruption.Team)
	}
	return s.ball
}

// TestInterruptionStages tests the stage timers and the return to normal
// play once the ball is in play
func TestInterruptionStages(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)
	throwInFor(t, e, s, Blue)
	start := e.Match().Clock.Tick()

	d := stepUntil(t, e, s, 50, func(d Decision) bool { return d.Interruption.Stage == StageCountdown })
	if got := d.Tick - start; got != 10 {
		t.Errorf("Expected stage 1 after 10 ticks, got %d", got)
	}
	d = stepUntil(t, e, s, 50, func(d Decision) bool { return d.Interruption.Stage == StageExecuted })
	if got := d.Tick - start; got != 20 {
		t.Errorf("Expected execution after 20 ticks, got %d", got)
	}
	d = stepUntil(t, e, s, 50, func(d Decision) bool { return d.Interruption.Kind == Normal })
	if got := d.Tick - start; got != 30 {
		t.Errorf("Expected normal play after the in play timeout at 30 ticks, got %d", got)
	}
	if !d.BallInPlay {
		t.Error("Expected ball in play")
	}
}

// TestEarlyTouchAsymmetry tests that an opponent touch forces a retake
// while a touch by the awarded team puts the ball in play
func TestEarlyTouchAsymmetry(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)
	throwInFor(t, e, s, Blue)
	spot := s.ball

	red2 := standing(Red, 2, 1, 2.7)
	s.set(touching(red2, spot, PartFoot))
	d := step(t, e, s)

	if countEvents(d, EventTypeRetake) != 1 {
		t.Fatalf("Expected a retake, got %v", d.Events)
	}
	if d.Interruption.Kind != ThrowIn || d.Interruption.Stage != StagePlacing {
		t.Errorf("Expected throw in back at stage 0, got %s stage %d", d.Interruption.Kind, d.Interruption.Stage)
	}
	if e.Match().Interruption.Retakes != 1 {
		t.Errorf("Expected 1 retake, got %d", e.Match().Interruption.Retakes)
	}
	red, _ := e.Match().Teams[Red].Player(2)
	if red.Status != StatusWarned {
		t.Errorf("Expected red player 2 warned, got %s", red.Status)
	}

	s.set(standing(Red, 2, -1, -0.5))
	blue2 := standing(Blue, 2, 1.5, 2.8)
	s.set(touching(blue2, spot, PartFoot))
	d = step(t, e, s)

	if countEvents(d, EventTypeAbort) != 1 {
		t.Fatalf("Expected an abort, got %v", d.Events)
	}
	if d.Interruption.Kind != Normal {
		t.Errorf("Expected normal play, got %s", d.Interruption.Kind)
	}
	if !d.BallInPlay {
		t.Error("Expected ball in play right after the abort")
	}
	blue, _ := e.Match().Teams[Blue].Player(2)
	if blue.Warnings != 1 {
		t.Errorf("Expected blue player 2 warned once, got %d", blue.Warnings)
	}
}

// TestSimultaneousEarlyTouchRetakes tests that an opponent touching in the
// same tick as the awarded team forces a retake for either color
func TestSimultaneousEarlyTouchRetakes(t *testing.T) {
	for _, awarded := range []Color{Red, Blue} {
		t.Run(awarded.String(), func(t *testing.T) {
			e := newTestEngine(t, config.MatchNormal, nil)
			s := newScene()
			kickOff(t, e, s)
			spot := throwInFor(t, e, s, awarded)

			s.set(touching(standing(awarded, 3, spot.X-0.3, 2.7), spot, PartFoot))
			s.set(touching(standing(awarded.Opponent(), 3, spot.X+0.3, 2.7), spot, PartFoot))
			d := step(t, e, s)

			if countEvents(d, EventTypeRetake) != 1 || countEvents(d, EventTypeAbort) != 0 {
				t.Fatalf("Expected one retake and no abort, got %v", d.Events)
			}
			if d.Interruption.Kind != ThrowIn || d.Interruption.Stage != StagePlacing {
				t.Errorf("Expected throw in back at stage 0, got %s stage %d", d.Interruption.Kind, d.Interruption.Stage)
			}
			ev, _ := findEvent(d, EventTypeRetake)
			if ev.Team != awarded.Opponent() || ev.Player != 3 {
				t.Errorf("Expected retake charged to %s player 3, got %s %d", awarded.Opponent(), ev.Team, ev.Player)
			}
			mine, _ := e.Match().Teams[awarded].Player(3)
			if mine.Warnings != 0 {
				t.Errorf("Expected the awarded player not warned, got %d warnings", mine.Warnings)
			}
		})
	}
}

// TestDroppedBallRetakeOnAnyTouch tests that any touch retakes a dropped ball
func TestDroppedBallRetakeOnAnyTouch(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)

	for i := 0; i < 9; i++ {
		step(t, e, s)
	}
	s.ball = ballAt(4.7, 0)
	d := step(t, e, s)
	if d.Interruption.Kind != DroppedBall {
		t.Fatalf("Expected a dropped ball, got %s", d.Interruption.Kind)
	}

	for _, team := range []Color{Red, Blue} {
		s.set(touching(standing(team, 3, 0.2, 0.2), s.ball, PartFoot))
		d = step(t, e, s)
		if countEvents(d, EventTypeRetake) != 1 {
			t.Errorf("Expected a retake after a %s touch, got %v", team, d.Events)
		}
		s.set(standing(team, 3, float64(int(team)*2-1), 0.5))
	}
	if e.Match().Interruption.Retakes != 2 {
		t.Errorf("Expected 2 retakes, got %d", e.Match().Interruption.Retakes)
	}
}

// TestFieldHoldingGivesOneFreeKick tests that a full holding window fires
// exactly once and gives a direct free kick to the opponents
func TestFieldHoldingGivesOneFreeKick(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)

	s.ball = ballAt(-0.3, 0)
	s.set(touching(standing(Red, 2, -0.5, 0), s.ball, PartHand))

	holding := 0
	var freeKick Decision
	for i := 0; i < 15; i++ {
		d := step(t, e, s)
		holding += countEvents(d, EventTypeHolding)
		if d.Interruption.Kind == DirectFreeKick && freeKick.Tick == 0 {
			freeKick = d
		}
	}

	if holding != 1 {
		t.Errorf("Expected exactly one holding violation, got %d", holding)
	}
	if freeKick.Tick == 0 {
		t.Fatal("Expected a direct free kick")
	}
	if freeKick.Interruption.Team != Blue {
		t.Errorf("Expected free kick for blue, got %s", freeKick.Interruption.Team)
	}
}

// TestGoalkeeperHoldingInsideArea tests that goalkeeper holding in the own
// penalty area gives an indirect free kick on the penalty area line
func TestGoalkeeperHoldingInsideArea(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, func(r *config.Rules) {
		r.GoalkeeperHoldingTimeout = 2 * time.Second
	})
	s := newScene()
	kickOff(t, e, s)

	s.ball = ballAt(-3.8, 0.4)
	s.set(touching(standing(Red, 1, -4, 0.4), s.ball, PartHand))

	// hold for the timeout plus one second
	violations := 0
	var d Decision
	for i := 0; i < 30; i++ {
		next := step(t, e, s)
		if n := countEvents(next, EventTypeHolding); n > 0 {
			violations += n
			d = next
		}
	}
	if violations != 1 {
		t.Fatalf("Expected exactly one holding violation, got %d", violations)
	}
	if d.Interruption.Kind != IndirectFreeKick {
		t.Fatalf("Expected an indirect free kick, got %s", d.Interruption.Kind)
	}
	if d.Interruption.Team != Blue {
		t.Errorf("Expected blue awarded, got %s", d.Interruption.Team)
	}
	want := ballAt(-2.5, 0.4)
	if d.BallPlacement == nil || !near(*d.BallPlacement, want) {
		t.Errorf("Expected ball on the penalty area line at %v, got %v", want, d.BallPlacement)
	}
}

// TestPushingFoul tests that a sustained push books the faster robot and
// gives a free kick where the victim stood
func TestPushingFoul(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)

	pusher := standing(Red, 2, 0.5, 1)
	pusher.Velocity.X = 0.5
	pusher = touching(pusher, field.Vec3{X: 0.85, Y: 1, Z: 0.3}, PartArm)
	s.set(pusher)
	s.set(standing(Blue, 2, 0.9, 1))

	pushes := 0
	var foul Decision
	for i := 0; i < 12; i++ {
		d := step(t, e, s)
		if n := countEvents(d, EventTypePushing); n > 0 {
			pushes += n
			foul = d
		}
	}

	if pushes != 1 {
		t.Fatalf("Expected one pushing foul, got %d", pushes)
	}
	ev, _ := findEvent(foul, EventTypePushing)
	if ev.Team != Red || ev.Player != 2 {
		t.Errorf("Expected red player 2 as offender, got %s %d", ev.Team, ev.Player)
	}
	if foul.Interruption.Kind != DirectFreeKick || foul.Interruption.Team != Blue {
		t.Errorf("Expected direct free kick for blue, got %s for %s", foul.Interruption.Kind, foul.Interruption.Team)
	}
	red, _ := e.Match().Teams[Red].Player(2)
	if red.Status != StatusWarned {
		t.Errorf("Expected red player 2 booked, got %s", red.Status)
	}
}

// TestBallContactIsNotPushing tests that a robot playing the ball next to
// an opponent is not booked for pushing
func TestBallContactIsNotPushing(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, nil)
	s := newScene()
	kickOff(t, e, s)

	s.ball = ballAt(0.7, 0.5)
	dribbler := standing(Red, 2, 0.5, 0.5)
	dribbler.Velocity.X = 0.5
	s.set(touching(dribbler, s.ball.Sub(field.Vec3{X: 0.05}), PartFoot))
	s.set(standing(Blue, 2, 0.92, 0.5))

	for i := 0; i < 20; i++ {
		d := step(t, e, s)
		if n := countEvents(d, EventTypePushing); n > 0 {
			t.Fatalf("Expected no pushing foul, got %d at tick %d", n, d.Tick)
		}
	}
}

// TestNoPushingWhilePlacing tests that contacts during stage 0 of an
// interruption are not fouls
func TestNoPushingWhilePlacing(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, func(r *config.Rules) {
		r.InterruptionPhase0 = 3 * time.Second
	})
	s := newScene()
	kickOff(t, e, s)
	throwInFor(t, e, s, Blue)

	pusher := standing(Red, 2, 0.5, 1)
	pusher.Velocity.X = 0.5
	s.set(touching(pusher, field.Vec3{X: 0.85, Y: 1, Z: 0.3}, PartArm))
	s.set(standing(Blue, 2, 0.9, 1))

	placing := 0
	for i := 0; i < 40; i++ {
		d := step(t, e, s)
		if d.Interruption.Kind != ThrowIn || d.Interruption.Stage != StagePlacing {
			break
		}
		placing++
		if n := countEvents(d, EventTypePushing); n > 0 {
			t.Fatalf("Expected no pushing foul while placing, got %d at tick %d", n, d.Tick)
		}
	}
	if placing < 20 {
		t.Errorf("Expected the push to outlast the pushing time in stage 0, lasted %d ticks", placing)
	}
}

// TestStaticBallDropsBall tests the dropped ball after the ball stays still
func TestStaticBallDropsBall(t *testing.T) {
	e := newTestEngine(t, config.MatchNormal, func(r *config.Rules) {
		r.DroppedBallTimeout = 2 * time.Second
	})
	s := newScene()
	kickOff(t, e, s)

	d := stepUntil(t, e, s, 60, func(d Decision) bool { return d.Interruption.Kind == DroppedBall })
	if d.Interruption.Stage != StagePlacing {
		t.Errorf("Expected stage 0, got %d", d.Interruption.Stage)
	}
	if d.Interruption.Team != NoTeam || d.Interruption.TeamID != DroppedBallTeamID {
		t.Errorf("Expected no awarded team, got %s (%d)", d.Interruption.Team, d.Interruption.TeamID)
	}
}
