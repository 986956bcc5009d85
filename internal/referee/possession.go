package referee

import (
	"humanoid-referee/internal/referee/field"
)

// kickContext identifies the restart the ball was last put in play from.
type kickContext struct {
	KickOff bool
	Kind    InterruptionKind // Normal with KickOff false means open play
	Team    Color            // team taking the restart, NoTeam for a dropped ball
}

// throwInWatch follows a thrower until the ball is released.
type throwInWatch struct {
	thrower *Player
	spot    field.Vec3
	lifted  bool
}

// Possession tracks touches, scoring permissions and whether the ball is
// in play.
type Possession struct {
	InPlay   bool
	Released bool // restart executed, waiting for the ball to be in play
	Kick     kickContext

	RestartSpot field.Vec3
	RestartTick Tick

	FirstToucher  *Player // first player touching since the restart
	LastToucher   *Player
	LastTouchTick Tick

	// CanScore allows the kicking team to score, CanScoreOwn allows a goal
	// against it. Both open up once a second player touches the ball.
	CanScore    bool
	CanScoreOwn bool
	LeftCircle  bool

	announced     *Player
	announcedTick Tick
	throwIn       *throwInWatch
	thrown        bool // the throw in was released
}

func (p *Possession) reset() {
	*p = Possession{
		Kick:          kickContext{Team: NoTeam},
		LastTouchTick: Never,
		RestartTick:   Never,
		announcedTick: Never,
	}
}

// ballReport is what the possession tracker tells the state machine.
type ballReport struct {
	goal         bool
	disallowed   bool
	goalSide     field.Side
	scorer       Color
	out          field.Boundary
	exit         field.Vec3
	invalidThrow *throwInWatch
}

// startRestart prepares the scoring permissions of a restart. The ball is
// not in play until release is called and the in-play rule fires.
func (e *Engine) startRestart(kick kickContext, spot field.Vec3) {
	pos := &e.match.Possession
	pos.InPlay = false
	pos.Released = false
	pos.Kick = kick
	pos.RestartSpot = spot
	pos.RestartTick = Never
	pos.FirstToucher = nil
	pos.LeftCircle = false
	pos.throwIn = nil
	pos.thrown = false

	switch {
	case kick.KickOff:
		pos.CanScore, pos.CanScoreOwn = false, false
	case kick.Kind == IndirectFreeKick, kick.Kind == ThrowIn:
		pos.CanScore, pos.CanScoreOwn = false, false
	case kick.Kind == DroppedBall:
		pos.CanScore, pos.CanScoreOwn = true, true
	default:
		pos.CanScore, pos.CanScoreOwn = true, false
	}
}

// releaseRestart starts the in-play rule.
func (e *Engine) releaseRestart() {
	pos := &e.match.Possession
	pos.Released = true
	pos.RestartTick = e.match.Clock.Tick()
}

// setInPlay marks the ball live.
func (e *Engine) setInPlay(reason string) {
	pos := &e.match.Possession
	if pos.InPlay {
		return
	}
	pos.InPlay = true
	pos.Released = true
	e.emit(EventTypeBallInPlay, NoTeam, 0, nil, "ball in play (%s)", reason)
}

// updatePossession consumes this tick's touches and ball position.
func (e *Engine) updatePossession(touches []ballTouch) ballReport {
	m := e.match
	pos := &m.Possession
	tick := m.Clock.Tick()
	ball := m.Ball.Position

	for _, t := range touches {
		switch {
		case pos.FirstToucher == nil:
			pos.FirstToucher = t.player
		case t.player != pos.FirstToucher:
			pos.CanScore, pos.CanScoreOwn = true, true
		}
		pos.LastToucher = t.player
		pos.LastTouchTick = tick

		if t.player != pos.announced || tick-pos.announcedTick >= Tick(e.t.touchRepeat) {
			e.emit(EventTypeTouch, t.player.Team, t.player.Number, nil, "%s touched the ball with %s", t.player, t.part)
			pos.announced = t.player
			pos.announcedTick = tick
		}
	}

	if pos.Released && !pos.InPlay {
		switch {
		case len(touches) > 0:
			e.setInPlay("touched")
		case ball.PlanarDistance(pos.RestartSpot) >= m.Rules.InPlayDistance:
			e.setInPlay("moved")
		case int64(tick-pos.RestartTick) >= e.t.inPlay:
			e.setInPlay("timeout")
		}
	}

	var report ballReport
	report.invalidThrow = e.watchThrowIn(touches)

	if pos.InPlay {
		if side, ok := m.Geometry.GoalCrossed(ball); ok {
			scorer := m.DefendingTeam(side).Color.Opponent()
			if e.goalAllowed(scorer) {
				report.goal = true
				report.goalSide = side
				report.scorer = scorer
			} else {
				report.disallowed = true
				report.out = field.BoundaryGoalLine
				report.exit = ball
			}
		} else if out := m.Geometry.BallOut(ball); out != field.BoundaryNone {
			report.out = out
			report.exit = ball
		}
	}

	// Leaving the circle only counts from the next tick on, so a ball that
	// jumps from the circle into the goal is not a kickoff goal.
	if pos.Kick.KickOff && !pos.LeftCircle && !m.Geometry.InCircle(ball) {
		pos.LeftCircle = true
		pos.CanScore, pos.CanScoreOwn = true, true
	}
	return report
}

// goalAllowed applies the restart permissions to a goal for scorer.
func (e *Engine) goalAllowed(scorer Color) bool {
	pos := &e.match.Possession
	switch pos.Kick.Team {
	case scorer:
		return pos.CanScore
	case scorer.Opponent():
		return pos.CanScoreOwn
	default:
		return pos.CanScore || pos.CanScoreOwn
	}
}

// watchThrowIn follows the thrower of a throw in: a thrower who handles
// the ball must lift it above the threshold before releasing it. Returns
// the watch when the throw was invalid.
func (e *Engine) watchThrowIn(touches []ballTouch) *throwInWatch {
	m := e.match
	pos := &m.Possession
	tick := m.Clock.Tick()

	if pos.throwIn == nil {
		if pos.Kick.Kind != ThrowIn || pos.thrown || !pos.Released || pos.FirstToucher == nil {
			return nil
		}
		thrower := pos.FirstToucher
		if thrower.Team != pos.Kick.Team || !thrower.isHandling(tick) {
			return nil
		}
		for _, t := range touches {
			if t.player == thrower && t.handling {
				pos.throwIn = &throwInWatch{thrower: thrower, spot: pos.RestartSpot}
			}
		}
		if pos.throwIn == nil {
			return nil
		}
	}

	w := pos.throwIn
	if w.thrower.isHandling(tick) {
		if m.Ball.Position.Z >= m.Geometry.RestOnTurf(m.Ball.Position).Z+m.Rules.ThrowInLiftHeight {
			w.lifted = true
		}
		return nil
	}

	pos.throwIn = nil
	pos.thrown = true
	if w.lifted {
		return nil
	}
	return w
}

// throwingTeam returns the team whose holding is not counted because it
// is taking a throw in.
func (e *Engine) throwingTeam() Color {
	m := e.match
	if m.Interruption.Kind == ThrowIn {
		return m.Interruption.Team
	}
	if m.Possession.throwIn != nil {
		return m.Possession.throwIn.thrower.Team
	}
	return NoTeam
}
