package referee

import (
	"math"

	"humanoid-referee/internal/referee/field"
)

// Interruption is the secondary state running inside PLAYING while a
// restart is being prepared.
type Interruption struct {
	Kind     InterruptionKind
	Stage    int
	Team     Color // awarded team, NoTeam for a dropped ball
	Position field.Vec3
	Retakes  int
	Timer    SimTimer
}

// Active reports whether play is interrupted.
func (i *Interruption) Active() bool {
	return i.Kind != Normal
}

// FoulKind classifies the fouls the sequencer turns into restarts.
type FoulKind uint8

const (
	FoulPushing FoulKind = iota
	FoulFieldHolding
	FoulGoalkeeperHolding
)

func (f FoulKind) String() string {
	switch f {
	case FoulPushing:
		return "pushing"
	case FoulFieldHolding:
		return "ball holding"
	case FoulGoalkeeperHolding:
		return "goalkeeper ball holding"
	default:
		return "foul"
	}
}

func (e *Engine) interruptionPayload() InterruptionPayload {
	it := &e.match.Interruption
	return InterruptionPayload{
		Kind:     it.Kind,
		Team:     it.Team,
		Stage:    it.Stage,
		Position: [3]float64{it.Position.X, it.Position.Y, it.Position.Z},
		Retakes:  it.Retakes,
	}
}

// startInterruption awards a restart to team at spot and enters stage 0.
func (e *Engine) startInterruption(kind InterruptionKind, team Color, spot field.Vec3) {
	m := e.match
	spot = m.Geometry.RestOnTurf(spot)
	m.Interruption = Interruption{Kind: kind, Stage: StagePlacing, Team: team, Position: spot}
	m.Interruption.Timer.Start(m.Clock.Tick(), e.t.phase0)
	e.placeBall(spot)
	e.startRestart(kickContext{Kind: kind, Team: team}, spot)
	e.out.restarted = true

	if kind == DroppedBall {
		e.emit(EventTypeInterruption, NoTeam, 0, e.interruptionPayload(), "%s", kind.Label())
		return
	}
	e.emit(EventTypeInterruption, team, 0, e.interruptionPayload(), "%s awarded to %s", kind.Label(), team)
}

// retake restarts the current interruption from stage 0.
func (e *Engine) retake(offender *Player) {
	m := e.match
	it := &m.Interruption
	e.warn(offender, "touched the ball before the "+it.Kind.Label())
	it.Retakes++
	it.Stage = StagePlacing
	it.Timer.Start(m.Clock.Tick(), e.t.phase0)
	e.placeBall(it.Position)
	e.startRestart(kickContext{Kind: it.Kind, Team: it.Team}, it.Position)
	e.emit(EventTypeRetake, offender.Team, offender.Number, e.interruptionPayload(), "%s retake", it.Kind.Label())
}

// abortInterruption gives the ball to play when the awarded team touches
// it before execution.
func (e *Engine) abortInterruption(toucher *Player) {
	m := e.match
	it := &m.Interruption
	e.warn(toucher, "played the ball before the "+it.Kind.Label()+" was executed")
	e.emit(EventTypeAbort, toucher.Team, toucher.Number, e.interruptionPayload(), "%s aborted", it.Kind.Label())
	e.setInPlay("early touch")
	m.Interruption = Interruption{}
}

// advanceInterruption runs the stage timers and the early touch rules.
func (e *Engine) advanceInterruption(touches []ballTouch) {
	m := e.match
	it := &m.Interruption
	tick := m.Clock.Tick()

	if it.Stage < StageExecuted {
		if len(touches) > 0 {
			// An opponent touch forces a retake even when the awarded
			// team touched in the same tick.
			for _, bt := range touches {
				if it.Kind == DroppedBall || bt.player.Team != it.Team {
					e.retake(bt.player)
					return
				}
			}
			e.abortInterruption(touches[0].player)
			return
		}
		if !it.Timer.Expired(tick) {
			return
		}
		if it.Stage == StagePlacing {
			it.Stage = StageCountdown
			it.Timer.Start(tick, e.t.phase1)
			e.emit(EventTypeInterruptionStage, it.Team, 0, e.interruptionPayload(), "%s: get ready", it.Kind.Label())
			return
		}
		it.Stage = StageExecuted
		it.Timer.Stop()
		e.clearOpponents()
		e.releaseRestart()
		e.emit(EventTypeInterruptionStage, it.Team, 0, e.interruptionPayload(), "%s: execute", it.Kind.Label())
		return
	}

	if m.Possession.InPlay {
		kind := it.Kind
		m.Interruption = Interruption{}
		e.emit(EventTypeInterruptionStage, NoTeam, 0, nil, "%s taken, normal play", kind.Label())
	}
}

// clearOpponents moves robots of the defending team (every robot for a
// dropped ball) out of the distance ring around the ball.
func (e *Engine) clearOpponents() {
	m := e.match
	it := &m.Interruption
	ball := it.Position
	radius := m.Geometry.OpponentDistanceToBall

	m.Players(func(p *Player) {
		if !p.Active() || (it.Kind != DroppedBall && p.Team == it.Team) {
			return
		}
		d := p.Position.PlanarDistance(ball)
		if d >= radius {
			return
		}
		dir := field.Vec3{X: p.Position.X - ball.X, Y: p.Position.Y - ball.Y}
		if d < 1e-6 {
			// Straight back toward the own goal.
			dir = field.Vec3{X: m.Teams[p.Team].GoalSide.Sign()}
			d = 1
		}
		target := ball.Add(dir.Scale((radius + m.Geometry.RobotRadius/2) / d))
		target.Z = p.Position.Z
		e.placePlayer(p, field.Facing(target, ball), "too close to the ball")
	})
}

// handleOut awards the restart for a ball over an outer line.
func (e *Engine) handleOut(boundary field.Boundary, exit field.Vec3) error {
	m := e.match
	g := m.Geometry
	last := m.Possession.LastToucher

	if last == nil {
		e.emit(EventTypeOutOfBounds, NoTeam, 0, nil, "ball left the field over the %s", boundary)
		e.startInterruption(DroppedBall, NoTeam, g.KickOffSpot())
		return nil
	}
	e.emit(EventTypeOutOfBounds, last.Team, last.Number, nil, "ball left the field over the %s, last touched by %s", boundary, last)

	opponent, err := m.Team(last.Team.Opponent())
	if err != nil {
		return err
	}
	if boundary == field.BoundaryTouchLine {
		e.startInterruption(ThrowIn, opponent.Color, g.TouchLineSpot(exit))
		return nil
	}

	side := field.SideOf(exit.X)
	defending := m.DefendingTeam(side)
	if last.Team == defending.Color {
		e.startInterruption(CornerKick, opponent.Color, g.CornerSpot(side, exit.Y))
	} else {
		e.startInterruption(GoalKick, defending.Color, g.GoalKickSpot(side, exit.Y))
	}
	return nil
}

// awardFoul turns a foul into a restart for the opponents of offender. A
// foul inside the offender's own penalty area gives a penalty kick, except
// goalkeeper holding which gives an indirect free kick on the penalty area
// line.
func (e *Engine) awardFoul(kind FoulKind, offender *Player, location field.Vec3) error {
	m := e.match
	team, err := m.Team(offender.Team)
	if err != nil {
		return err
	}
	awarded := team.Color.Opponent()
	g := m.Geometry

	switch {
	case g.InPenaltyArea(location, team.GoalSide) && kind == FoulGoalkeeperHolding:
		e.startInterruption(IndirectFreeKick, awarded, g.PenaltyLineSpot(location, team.GoalSide))
	case g.InPenaltyArea(location, team.GoalSide):
		e.startInterruption(PenaltyKick, awarded, g.PenaltyMark(team.GoalSide))
	default:
		spot := location
		spot.X = math.Max(-g.SizeX, math.Min(g.SizeX, spot.X))
		spot.Y = math.Max(-g.SizeY, math.Min(g.SizeY, spot.Y))
		e.startInterruption(DirectFreeKick, awarded, spot)
	}
	return nil
}
