package referee

import (
	"math"
	"time"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee/field"
)

// setPhase enters a primary phase and arms its simulated timer. A zero
// duration leaves the timer disarmed.
func (e *Engine) setPhase(phase Phase, ticks int64) {
	m := e.match
	m.Phase = phase
	if ticks > 0 {
		m.PhaseTimer.Start(m.Clock.Tick(), ticks)
	} else {
		m.PhaseTimer.Stop()
	}
	e.emit(EventTypePhase, NoTeam, 0, nil, "%s", phase)
}

// advancePhase runs the primary state machine for one tick.
func (e *Engine) advancePhase(contacts *contactReport, ball ballReport) error {
	m := e.match
	now := m.Clock.Wall()
	tick := m.Clock.Tick()

	switch m.Phase {
	case PhaseInitial:
		e.initial(now)
	case PhaseReady:
		if m.PhaseTimer.Expired(tick) {
			e.enterSet()
		}
	case PhaseSet:
		if !m.PhaseTimer.Expired(tick) {
			return nil
		}
		if m.Shootout != nil {
			e.kickShootoutTrial()
		} else {
			e.enterPlaying()
		}
	case PhasePlaying:
		if m.Shootout != nil {
			e.playShootoutTrial(contacts, ball)
			return nil
		}
		return e.play(contacts, ball)
	case PhaseFinished:
		e.finished(now)
	default:
		return invariantf(tick, "unknown phase %d", m.Phase)
	}
	return nil
}

// initial waits for the robots to connect. The wait is skipped when the
// simulation is allowed to run without a real time constraint.
func (e *Engine) initial(now time.Time) {
	m := e.match
	if !m.WaitTimer.Armed() {
		m.Players(func(p *Player) {
			e.placePlayer(p, p.Pose(PoseHalfTime, m.Teams[p.Team].GoalSide), "starting position")
		})
		e.placeBall(m.Geometry.KickOffSpot())
		wait := m.Rules.RealTimeBeforeFirstReady
		if m.Unconstrained {
			wait = 0
		}
		m.WaitTimer.Start(now, wait)
	}
	if !m.WaitTimer.Expired(now) {
		return
	}
	m.WaitTimer.Stop()
	if m.Type == config.MatchPenalty {
		m.Phase = PhaseFinished
		e.startShootout()
		return
	}
	e.enterReady(m.Kickoff)
}

// enterReady gives robots time to walk to their kickoff positions.
func (e *Engine) enterReady(kickoff Color) {
	m := e.match
	m.Kickoff = kickoff
	m.Interruption = Interruption{}
	m.Possession.reset()
	m.Pushing.Clear()
	for _, t := range m.Teams {
		t.FieldHolding.Clear()
		t.KeeperHolding.Clear()
	}
	e.placeBall(m.Geometry.KickOffSpot())
	e.setPhase(PhaseReady, e.t.ready)
	e.emit(EventTypeInfo, kickoff, 0, nil, "kickoff for %s", kickoff)
}

// enterSet checks kickoff positions. Robots outside their own half, off
// the field or, for the defending team, inside the center circle are moved
// to their reentry pose and warned.
func (e *Engine) enterSet() {
	m := e.match
	m.Players(func(p *Player) {
		if !p.Active() {
			return
		}
		team := m.Teams[p.Team]
		illegal := !p.Flags.InsideOwnSide || !p.Flags.InsideField ||
			(p.Team != m.Kickoff && !p.Flags.OutsideCircle)
		if !illegal {
			return
		}
		e.emit(EventTypeIllegalPosition, p.Team, p.Number, nil, "%s is not in a legal kickoff position", p)
		e.placePlayer(p, p.Pose(PoseReentry, team.GoalSide), "illegal kickoff position")
		e.warn(p, "illegal kickoff position")
	})
	e.placeBall(m.Geometry.KickOffSpot())
	e.setPhase(PhaseSet, e.t.set)
}

// enterPlaying kicks off.
func (e *Engine) enterPlaying() {
	m := e.match
	spot := m.Geometry.KickOffSpot()
	e.startRestart(kickContext{KickOff: true, Team: m.Kickoff}, spot)
	e.releaseRestart()
	m.Ball.LastMove = m.Clock.Tick()
	e.setPhase(PhasePlaying, 0)
}

// play applies the rules of regular play: penalties, goals, out of bounds,
// fouls, interruptions and dropped balls, then the end of regulation time.
func (e *Engine) play(contacts *contactReport, ball ballReport) error {
	m := e.match
	tick := m.Clock.Tick()
	m.PlayedTicks++

	e.reenterPenalized()
	for _, r := range contacts.removals {
		e.removePlayer(r.player, r.reason, false)
	}

	switch {
	case ball.goal:
		if err := e.scoreGoal(ball); err != nil {
			return err
		}
		if m.PlayedTicks < e.t.match {
			return nil
		}
	case ball.disallowed:
		e.emit(EventTypeGoalDisallowed, m.Possession.Kick.Team, 0, GoalPayload{
			Scorer:    ball.scorer,
			RedScore:  m.Teams[Red].Score,
			BlueScore: m.Teams[Blue].Score,
		}, "goal not allowed from a %s", e.kickName())
		if err := e.handleOut(ball.out, ball.exit); err != nil {
			return err
		}
	case ball.out != field.BoundaryNone:
		if err := e.handleOut(ball.out, ball.exit); err != nil {
			return err
		}
	case ball.invalidThrow != nil:
		w := ball.invalidThrow
		e.emit(EventTypeInfo, w.thrower.Team, w.thrower.Number, nil, "invalid throw in by %s", w.thrower)
		e.startInterruption(ThrowIn, w.thrower.Team.Opponent(), w.spot)
	}

	if !ball.goal {
		if err := e.applyFouls(contacts); err != nil {
			return err
		}
		if m.Interruption.Active() && !e.out.restarted {
			e.advanceInterruption(contacts.touches)
		}
		if !m.Interruption.Active() && m.Possession.InPlay {
			e.checkDroppedBall(tick)
		}
	}

	if m.PlayedTicks >= e.t.match {
		e.endRegulation()
	}
	return nil
}

func (e *Engine) kickName() string {
	k := e.match.Possession.Kick
	if k.KickOff {
		return "kickoff"
	}
	return k.Kind.Label()
}

// scoreGoal credits the attacking team and restarts with a kickoff for
// the conceding team.
func (e *Engine) scoreGoal(ball ballReport) error {
	m := e.match
	team, err := m.Team(ball.scorer)
	if err != nil {
		return err
	}
	team.Score++

	payload := GoalPayload{Scorer: team.Color, RedScore: m.Teams[Red].Score, BlueScore: m.Teams[Blue].Score}
	player := 0
	if last := m.Possession.LastToucher; last != nil {
		payload.Toucher = last.String()
		payload.OwnGoal = last.Team != team.Color
		player = last.Number
	}
	e.emit(EventTypeGoal, team.Color, player, payload, "GOAL for %s, score %d-%d", team.Name, payload.RedScore, payload.BlueScore)

	if m.PlayedTicks < e.t.match {
		e.enterReady(team.Color.Opponent())
	}
	return nil
}

// applyFouls books holding and pushing offenders and awards a restart for
// the first foul found, unless a restart was already given this tick or
// one is still being placed.
func (e *Engine) applyFouls(contacts *contactReport) error {
	m := e.match
	canRestart := func() bool {
		return !e.out.restarted && (!m.Interruption.Active() || m.Interruption.Stage == StageExecuted)
	}

	for _, h := range contacts.holding {
		kind := FoulFieldHolding
		if h.goalkeeper {
			kind = FoulGoalkeeperHolding
		}
		duration := m.Clock.Seconds(int64(h.held))
		e.emit(EventTypeHolding, h.player.Team, h.player.Number, FoulPayload{Offender: h.player.String(), Duration: duration},
			"%s: %s", kind, h.player)
		e.warn(h.player, kind.String())
		if canRestart() {
			if err := e.awardFoul(kind, h.player, m.Ball.Position); err != nil {
				return err
			}
		}
	}

	for _, p := range contacts.pushes {
		duration := m.Clock.Seconds(e.t.pushingTime)
		e.emit(EventTypePushing, p.Offender.Team, p.Offender.Number, FoulPayload{
			Offender: p.Offender.String(),
			Victim:   p.Victim.String(),
			Duration: duration,
		}, "%s pushes %s", p.Offender, p.Victim)
		e.book(p.Offender, "pushing")
		if canRestart() {
			if err := e.awardFoul(FoulPushing, p.Offender, p.Victim.Position); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkDroppedBall restarts play when the ball stayed still too long or a
// goalkeeper next to it does not move.
func (e *Engine) checkDroppedBall(tick Tick) {
	m := e.match
	if int64(tick-m.Ball.LastMove) >= e.t.droppedBall {
		e.emit(EventTypeInfo, NoTeam, 0, nil, "ball did not move for %.0f seconds", m.Rules.DroppedBallTimeout.Seconds())
		e.startInterruption(DroppedBall, NoTeam, m.Geometry.KickOffSpot())
		return
	}

	for _, t := range m.Teams {
		gk := t.Goalkeeper()
		if gk == nil || !gk.Active() || !gk.History.Full() {
			continue
		}
		if gk.Position.PlanarDistance(m.Ball.Position) >= m.Rules.InactiveGoalkeeperDistance {
			continue
		}
		moved := gk.History.Newest().Position.PlanarDistance(gk.History.Oldest().Position)
		if moved >= m.Rules.InactiveGoalkeeperProgress {
			continue
		}
		gk.History.Clear()
		e.emit(EventTypeInactiveGoalkeeper, gk.Team, gk.Number, nil, "%s is inactive next to the ball", gk)
		e.startInterruption(DroppedBall, NoTeam, m.Geometry.KickOffSpot())
		return
	}
}

// endRegulation enters FINISHED when regulation time is over. A drawn
// knockout match goes to a penalty shootout after the break.
func (e *Engine) endRegulation() {
	m := e.match
	m.Interruption = Interruption{}
	e.setPhase(PhaseFinished, 0)
	if m.Type == config.MatchKnockout && m.Teams[Red].Score == m.Teams[Blue].Score {
		wait := m.Rules.HalfTimeBreak
		if m.Unconstrained {
			wait = 0
		}
		m.pendingShootout = true
		m.WaitTimer.Start(m.Clock.Wall(), wait)
		e.emit(EventTypeInfo, NoTeam, 0, nil, "draw, penalty shootout follows")
		return
	}
	e.finishMatch()
}

// finishMatch announces the final score and arms the end of game timer.
func (e *Engine) finishMatch() {
	m := e.match
	m.Phase = PhaseFinished
	m.closing = true
	m.PhaseTimer.Start(m.Clock.Tick(), e.t.endOfGame)

	score := m.Score()
	var payload GoalPayload
	payload.RedScore, payload.BlueScore = score[Red], score[Blue]
	if m.Shootout != nil {
		goals := e.penaltyGoals()
		e.emit(EventTypeFinalScore, NoTeam, 0, payload, "FINAL SCORE: %d-%d (penalties %d-%d)", score[Red], score[Blue], goals[Red], goals[Blue])
		return
	}
	e.emit(EventTypeFinalScore, NoTeam, 0, payload, "FINAL SCORE: %d-%d", score[Red], score[Blue])
}

// finished drives FINISHED: the break before a shootout, the next
// shootout trial, or the end of the game.
func (e *Engine) finished(now time.Time) {
	m := e.match
	switch {
	case m.closing:
		if m.PhaseTimer.Expired(m.Clock.Tick()) {
			m.Over = true
			m.PhaseTimer.Stop()
			e.emit(EventTypeInfo, NoTeam, 0, nil, "game over")
		}
	case m.pendingShootout:
		if m.WaitTimer.Expired(now) {
			m.WaitTimer.Stop()
			e.startShootout()
		}
	case m.Shootout != nil && !m.Shootout.Done:
		e.prepareTrial()
	}
}

// reenterPenalized returns robots whose removal penalty is over.
func (e *Engine) reenterPenalized() {
	m := e.match
	tick := m.Clock.Tick()
	m.Players(func(p *Player) {
		if !p.Removed || p.SentOff() || tick < p.PenalizedUntil {
			return
		}
		p.Removed = false
		p.removalReason = ""
		p.PenalizedUntil = Never
		p.FallenSince, p.LeftTurfSince = Never, Never
		p.Fallen = false
		e.placePlayer(p, p.Pose(PoseReentry, m.Teams[p.Team].GoalSide), "penalty over")
		e.emit(EventTypeReentry, p.Team, p.Number, nil, "%s reenters the field", p)
	})
}

// removePlayer takes a robot off the field, for the penalty timeout or
// for the rest of the match.
func (e *Engine) removePlayer(p *Player, reason string, permanent bool) {
	m := e.match
	if p.Removed {
		return
	}
	p.Removed = true
	p.removalReason = reason
	p.BallHandlingStart, p.BallHandlingLast = Never, Never
	p.FallenSince, p.LeftTurfSince = Never, Never
	if permanent {
		p.PenalizedUntil = Tick(math.MaxInt64)
	} else {
		p.PenalizedUntil = m.Clock.Tick() + Tick(e.t.penalty)
	}
	e.placePlayer(p, e.benchPose(p), reason)
	if permanent {
		e.emit(EventTypeRemoval, p.Team, p.Number, nil, "%s sent off (%s)", p, reason)
		return
	}
	e.emit(EventTypeRemoval, p.Team, p.Number, nil, "%s removed for %.0f seconds (%s)", p, m.Rules.PenaltyTimeout.Seconds(), reason)
}

// benchPose is the waiting spot next to the touch line, on the half of
// the goal the team defends.
func (e *Engine) benchPose(p *Player) field.Pose {
	m := e.match
	g := m.Geometry
	side := m.Teams[p.Team].GoalSide
	x := side.Sign() * math.Min(g.SizeX-g.RobotRadius, float64(p.Number)*2*g.RobotRadius)
	pos := field.Vec3{X: x, Y: g.SizeY + g.BorderStrip/2, Z: p.Position.Z}
	return field.Facing(pos, field.Vec3{X: x})
}

// warn records a warning without escalating past the warned status.
func (e *Engine) warn(p *Player, reason string) {
	p.Warnings++
	if p.Status == StatusNone {
		p.Status = StatusWarned
	}
	e.card(EventTypeWarning, p, reason)
}

// book escalates the disciplinary status: warning, yellow card, then red.
// A second yellow card is a red card and sends the player off.
func (e *Engine) book(p *Player, reason string) {
	switch p.Status {
	case StatusNone:
		p.Warnings++
		p.Status = StatusWarned
	case StatusWarned:
		p.YellowCards++
		p.Status = StatusYellow
	case StatusYellow:
		p.YellowCards++
		p.RedCards++
		p.Status = StatusRed
	case StatusRed:
		return
	}
	e.card(EventTypeCard, p, reason)
	if p.Status == StatusRed {
		e.removePlayer(p, "red card", true)
	}
}

func (e *Engine) card(kind EventType, p *Player, reason string) {
	e.out.cards = append(e.out.cards, CardEvent{Team: p.Team, Number: p.Number, Status: p.Status, Reason: reason})
	e.emit(kind, p.Team, p.Number, CardPayload{
		Status:      p.Status,
		Warnings:    p.Warnings,
		YellowCards: p.YellowCards,
		RedCards:    p.RedCards,
		Reason:      reason,
	}, "%s: %s for %s", p.Status, p, reason)
}
