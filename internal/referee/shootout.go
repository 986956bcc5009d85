package referee

import (
	"humanoid-referee/internal/referee/field"
)

const (
	RegularShootoutTrials = 10 // five kicks per team
	MaximumShootoutTrials = 20
	regularKicksPerTeam   = RegularShootoutTrials / 2
)

// TrialOutcome is how a shootout trial ended.
type TrialOutcome string

const (
	TrialGoal    TrialOutcome = "goal"
	TrialMiss    TrialOutcome = "miss"
	TrialSkipped TrialOutcome = "skipped" // no eligible kicker
)

// TrialMetrics are the timings of one trial in simulated seconds. Nil
// means the event never happened.
type TrialMetrics struct {
	TimeToTouch    *float64 `json:"timeToTouch,omitempty"`
	TimeToGoalArea *float64 `json:"timeToGoalArea,omitempty"`
	TimeToScore    *float64 `json:"timeToScore,omitempty"`
}

// TrialRecord is one finished trial.
type TrialRecord struct {
	Trial    int          `json:"trial"`
	Attacker Color        `json:"attacker"`
	Kicker   int          `json:"kicker"`
	Outcome  TrialOutcome `json:"outcome"`
	Reason   string       `json:"reason,omitempty"`
	Metrics  TrialMetrics `json:"metrics"`
}

// ShootoutState is the penalty shootout progress. Trial counts completed
// trials and indexes the one being played.
type ShootoutState struct {
	Trial       int
	FirstKicker Color
	Attacker    Color
	Kicker      *Player
	Goalkeeper  *Player
	Records     []TrialRecord
	Done        bool
	Winner      Color

	start        Tick
	touchTick    Tick
	goalAreaTick Tick
}

// AttackerFor returns the team kicking in trial n.
func (s *ShootoutState) AttackerFor(n int) Color {
	if n%2 == 0 {
		return s.FirstKicker
	}
	return s.FirstKicker.Opponent()
}

// Regular reports whether the current trial is one of the first ten.
func (s *ShootoutState) Regular() bool {
	return s.Trial < RegularShootoutTrials
}

// ShootoutDecided applies the stop rule after completed trials. During the
// regular trials the shootout stops as soon as one team leads by more than
// the other can still score. Afterwards it stops at the end of a pair of
// trials with different goals, and always after the last trial.
func ShootoutDecided(completed int, shots, goals [2]int) bool {
	if completed >= MaximumShootoutTrials {
		return true
	}
	if completed <= RegularShootoutTrials {
		for a := 0; a < 2; a++ {
			b := 1 - a
			remaining := regularKicksPerTeam - shots[b]
			if remaining < 0 {
				remaining = 0
			}
			if goals[a] > goals[b]+remaining {
				return true
			}
		}
		return false
	}
	return completed%2 == 0 && goals[0] != goals[1]
}

// shootoutKicker returns the first player by number still allowed to kick.
func shootoutKicker(t *Team) *Player {
	for _, p := range t.Players {
		if !p.SentOff() {
			return p
		}
	}
	return nil
}

// startShootout sets up the coordinator and prepares the first trial.
func (e *Engine) startShootout() {
	m := e.match
	m.pendingShootout = false
	m.Shootout = &ShootoutState{FirstKicker: m.FirstKickoff, Winner: NoTeam}
	e.emit(EventTypeInfo, NoTeam, 0, nil, "penalty shootout, %s kicks first", m.FirstKickoff)
	e.prepareTrial()
}

// prepareTrial picks the kicker of the next trial, flips the field so the
// kicker attacks the +x goal and enters SET. Trials without an eligible
// kicker are recorded as skipped.
func (e *Engine) prepareTrial() {
	m := e.match
	s := m.Shootout
	g := m.Geometry

	for {
		if ShootoutDecided(s.Trial, e.penaltyShots(), e.penaltyGoals()) {
			e.endShootout()
			return
		}
		s.Attacker = s.AttackerFor(s.Trial)
		attacker := m.Teams[s.Attacker]
		s.Kicker = shootoutKicker(attacker)
		if s.Kicker != nil {
			break
		}
		attacker.PenaltyShots++
		e.recordTrial(TrialSkipped, "no eligible kicker", TrialMetrics{})
	}

	attacker := m.Teams[s.Attacker]
	defender := m.Teams[s.Attacker.Opponent()]
	if defender.GoalSide != field.Positive {
		m.SwapSides()
	}

	s.Goalkeeper = nil
	if s.Regular() {
		if gk := defender.Goalkeeper(); gk != nil && !gk.SentOff() {
			s.Goalkeeper = gk
		}
	}

	m.Players(func(p *Player) {
		p.Benched = p != s.Kicker && p != s.Goalkeeper
		p.Fallen, p.FallenSince, p.LeftTurfSince = false, Never, Never
		switch {
		case p == s.Kicker:
			e.placePlayer(p, p.Pose(PoseShootout, attacker.GoalSide), "shootout kicker")
		case p == s.Goalkeeper:
			e.placePlayer(p, p.Pose(PoseGoalkeeper, defender.GoalSide), "shootout goalkeeper")
		default:
			e.placePlayer(p, e.benchPose(p), "waiting for the shootout trial")
		}
	})

	mark := g.PenaltyMark(field.Positive)
	e.placeBall(mark)
	m.Interruption = Interruption{}
	m.Possession.reset()
	m.Pushing.Clear()
	for _, t := range m.Teams {
		t.FieldHolding.Clear()
		t.KeeperHolding.Clear()
	}

	e.setPhase(PhaseSet, e.t.shootoutSet)
	e.emit(EventTypeInfo, s.Attacker, s.Kicker.Number, nil, "shootout trial %d: %s kicks", s.Trial+1, s.Kicker)
}

// kickShootoutTrial starts the trial when SET expires.
func (e *Engine) kickShootoutTrial() {
	m := e.match
	s := m.Shootout
	tick := m.Clock.Tick()

	mark := m.Geometry.PenaltyMark(field.Positive)
	e.startRestart(kickContext{Kind: PenaltyKick, Team: s.Attacker}, mark)
	e.releaseRestart()
	s.start = tick
	s.touchTick = Never
	s.goalAreaTick = Never
	e.setPhase(PhasePlaying, e.t.shootoutTrial)
}

// playShootoutTrial watches the running trial. Fouls are only logged.
func (e *Engine) playShootoutTrial(contacts *contactReport, ball ballReport) {
	m := e.match
	s := m.Shootout
	g := m.Geometry
	tick := m.Clock.Tick()

	for _, t := range contacts.touches {
		if t.player == s.Kicker && !s.touchTick.Valid() {
			s.touchTick = tick
		}
	}
	if !s.goalAreaTick.Valid() && g.InGoalArea(m.Ball.Position, field.Positive) {
		s.goalAreaTick = tick
	}
	for _, h := range contacts.holding {
		e.emit(EventTypeHolding, h.player.Team, h.player.Number, nil, "%s holds the ball", h.player)
	}
	for _, p := range contacts.pushes {
		e.emit(EventTypePushing, p.Offender.Team, p.Offender.Number, nil, "%s pushes %s", p.Offender, p.Victim)
	}

	switch {
	case ball.goal && ball.goalSide == field.Positive:
		e.finishTrial(TrialGoal, "goal")
	case ball.goal || ball.out != field.BoundaryNone:
		e.finishTrial(TrialMiss, "ball left the field")
	case s.Regular() && g.InGoalArea(s.Kicker.Position, field.Positive):
		e.finishTrial(TrialMiss, "kicker entered the goal area")
	case m.PhaseTimer.Expired(tick):
		e.finishTrial(TrialMiss, "timeout")
	}
}

// finishTrial records the outcome and moves to FINISHED; the next tick
// either prepares another trial or ends the shootout.
func (e *Engine) finishTrial(outcome TrialOutcome, reason string) {
	m := e.match
	s := m.Shootout
	tick := m.Clock.Tick()
	attacker := m.Teams[s.Attacker]

	attacker.PenaltyShots++
	metrics := TrialMetrics{
		TimeToTouch:    e.sinceTrialStart(s.touchTick),
		TimeToGoalArea: e.sinceTrialStart(s.goalAreaTick),
	}
	if outcome == TrialGoal {
		attacker.PenaltyGoals++
		metrics.TimeToScore = e.sinceTrialStart(tick)
	}
	e.recordTrial(outcome, reason, metrics)
	m.Phase = PhaseFinished
	m.PhaseTimer.Stop()
	e.emit(EventTypePhase, NoTeam, 0, nil, "%s", PhaseFinished)
}

func (e *Engine) sinceTrialStart(t Tick) *float64 {
	if !t.Valid() {
		return nil
	}
	s := e.match.Clock.Seconds(int64(t - e.match.Shootout.start))
	return &s
}

func (e *Engine) recordTrial(outcome TrialOutcome, reason string, metrics TrialMetrics) {
	s := e.match.Shootout
	rec := TrialRecord{Trial: s.Trial, Attacker: s.Attacker, Outcome: outcome, Reason: reason, Metrics: metrics}
	kicker := ""
	if s.Kicker != nil && outcome != TrialSkipped {
		rec.Kicker = s.Kicker.Number
		kicker = s.Kicker.String()
	}
	s.Records = append(s.Records, rec)
	s.Trial++

	goals := e.penaltyGoals()
	e.emit(EventTypeShootoutTrial, s.Attacker, rec.Kicker, TrialPayload{
		Trial:   rec.Trial,
		Kicker:  kicker,
		Outcome: outcome,
		Metrics: metrics,
	}, "shootout trial %d %s (%s), penalties %d-%d", rec.Trial+1, outcome, reason, goals[Red], goals[Blue])
}

// endShootout names the winner and closes the match.
func (e *Engine) endShootout() {
	m := e.match
	s := m.Shootout
	s.Done = true
	s.Kicker = nil
	goals := e.penaltyGoals()
	switch {
	case goals[Red] > goals[Blue]:
		s.Winner = Red
	case goals[Blue] > goals[Red]:
		s.Winner = Blue
	default:
		s.Winner = NoTeam
	}
	m.Players(func(p *Player) { p.Benched = false })
	e.emit(EventTypeShootoutEnd, s.Winner, 0, nil, "shootout over after %d trials, penalties %d-%d", s.Trial, goals[Red], goals[Blue])
	e.finishMatch()
}

func (e *Engine) penaltyShots() [2]int {
	return [2]int{e.match.Teams[Red].PenaltyShots, e.match.Teams[Blue].PenaltyShots}
}

func (e *Engine) penaltyGoals() [2]int {
	return [2]int{e.match.Teams[Red].PenaltyGoals, e.match.Teams[Blue].PenaltyGoals}
}
