package referee

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee/field"
)

// StatusInterval is the wall clock period of the status line.
const StatusInterval = 20 * time.Second

// timings are the rule durations converted to ticks once at setup.
type timings struct {
	second        int64
	ready         int64
	set           int64
	shootoutSet   int64
	match         int64
	endOfGame     int64
	phase0        int64
	phase1        int64
	inPlay        int64
	droppedBall   int64
	touchRepeat   int64
	pushingTime   int64
	pushingPeriod int64
	fallen        int64
	outsideTurf   int64
	penalty       int64
	shootoutTrial int64
}

func newTimings(c *MatchClock, r config.Rules) timings {
	return timings{
		second:        c.Ticks(time.Second),
		ready:         c.Ticks(r.ReadyDuration),
		set:           c.Ticks(r.SetDuration),
		shootoutSet:   c.Ticks(r.ShootoutSetDuration),
		match:         c.Ticks(r.MatchDuration),
		endOfGame:     c.Ticks(r.EndOfGameTimeout),
		phase0:        c.Ticks(r.InterruptionPhase0),
		phase1:        c.Ticks(r.InterruptionPhase1),
		inPlay:        c.Ticks(r.InPlayTimeout),
		droppedBall:   c.Ticks(r.DroppedBallTimeout),
		touchRepeat:   c.Ticks(r.TouchRepeatWindow),
		pushingTime:   c.Ticks(r.FoulPushingTime),
		pushingPeriod: c.Ticks(r.FoulPushingPeriod),
		fallen:        c.Ticks(r.FallenTimeout),
		outsideTurf:   c.Ticks(r.OutsideTurfTimeout),
		penalty:       c.Ticks(r.PenaltyTimeout),
		shootoutTrial: c.Ticks(r.ShootoutTrialDuration),
	}
}

// tickOutput accumulates what one tick decided.
type tickOutput struct {
	events     []Event
	placements []Placement
	ball       *field.Vec3
	cards      []CardEvent
	restarted  bool // an interruption was awarded this tick
}

func (o *tickOutput) reset() {
	*o = tickOutput{}
}

// Engine is the referee. Step is called once per simulation tick from a
// single goroutine; Decisions are published to other goroutines through
// a DecisionFeed.
type Engine struct {
	match    *MatchContext
	t        timings
	contacts *contactMonitor
	out      tickOutput

	log     zerolog.Logger
	journal *Journal
	feed    *DecisionFeed

	last       *Decision
	lastStatus time.Time
}

// EngineConfig wires an engine.
type EngineConfig struct {
	Match   *config.Match
	Rules   config.Rules
	Clock   Clock // defaults to the system clock
	Logger  zerolog.Logger
	Journal *Journal      // optional
	Feed    *DecisionFeed // optional
}

// NewEngine validates the configuration and builds the match state.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Match == nil {
		return nil, &config.ConfigError{Field: "match", Err: fmt.Errorf("no match configuration")}
	}
	mc, err := NewMatchContext(cfg.Match, cfg.Rules, cfg.Clock)
	if err != nil {
		return nil, err
	}

	robots := len(mc.Teams[Red].Players) + len(mc.Teams[Blue].Players)
	e := &Engine{
		match:    mc,
		t:        newTimings(&mc.Clock, mc.Rules),
		contacts: newContactMonitor(mc.Geometry, robots),
		log:      cfg.Logger.With().Str("component", "referee").Logger(),
		journal:  cfg.Journal,
		feed:     cfg.Feed,
	}
	e.log.Info().
		Str("type", string(mc.Type)).
		Str("class", mc.Geometry.Class).
		Str("red", mc.Teams[Red].Name).
		Str("blue", mc.Teams[Blue].Name).
		Bool("unconstrained", mc.Unconstrained).
		Msg("referee ready")
	return e, nil
}

// Match exposes the match state to tests and tooling. It must not be
// modified or read concurrently with Step.
func (e *Engine) Match() *MatchContext {
	return e.match
}

// Last returns the most recent decision.
func (e *Engine) Last() *Decision {
	return e.last
}

// Step advances the referee by one tick. Components run in a fixed order:
// contact monitor, possession and scoring, then the state machine which
// drives interruptions and the shootout. An error means the match state is
// corrupt and refereeing must stop.
func (e *Engine) Step(snap PhysicalSnapshot) (Decision, error) {
	m := e.match
	if m.Over && e.last != nil {
		return *e.last, nil
	}

	m.Clock.advance()
	e.out.reset()
	tick := m.Clock.Tick()

	m.Ball.Position = snap.Ball.Position
	m.Ball.Velocity = snap.Ball.Velocity
	if snap.Ball.Velocity.Norm() > m.Rules.StaticSpeedEps {
		m.Ball.LastMove = tick
	}

	contacts := e.observeContacts(&snap)

	var ball ballReport
	if m.Phase == PhasePlaying {
		ball = e.updatePossession(contacts.touches)
	}

	if err := e.advancePhase(contacts, ball); err != nil {
		e.log.Error().Err(err).Int64("tick", int64(tick)).Msg("referee invariant violated")
		return Decision{}, err
	}
	if err := e.checkInvariants(); err != nil {
		e.log.Error().Err(err).Int64("tick", int64(tick)).Msg("referee invariant violated")
		return Decision{}, err
	}

	d := e.buildDecision()
	e.last = &d
	if e.feed != nil {
		published := d
		e.feed.Publish(&published)
	}
	e.printStatus()
	return d, nil
}

// checkInvariants catches states the rules can never produce.
func (e *Engine) checkInvariants() error {
	m := e.match
	tick := m.Clock.Tick()
	if m.Interruption.Active() && m.Phase != PhasePlaying {
		return invariantf(tick, "%s active during %s", m.Interruption.Kind, m.Phase)
	}
	if m.Interruption.Stage < StagePlacing || m.Interruption.Stage > StageExecuted {
		return invariantf(tick, "interruption stage %d", m.Interruption.Stage)
	}
	if m.Kickoff != Red && m.Kickoff != Blue {
		return invariantf(tick, "kickoff team %v", m.Kickoff)
	}
	return nil
}

// emit builds an event, logs it and hands it to the journal.
func (e *Engine) emit(typ EventType, team Color, player int, payload any, format string, args ...any) {
	m := e.match
	msg := fmt.Sprintf(format, args...)
	ev := NewEvent(typ, m.Clock.Tick(), m.Clock.SimSeconds(), m.Clock.Wall(), team, player, msg, payload)
	e.out.events = append(e.out.events, ev)

	entry := e.log.Info()
	if typ == EventTypeTouch || typ == EventTypeBallInPlay {
		entry = e.log.Debug()
	}
	entry = entry.Str("event", typ.String()).Int64("tick", int64(ev.Tick)).Float64("simTime", ev.SimTime)
	if team.Valid() {
		entry = entry.Str("team", team.String())
	}
	if player != 0 {
		entry = entry.Int("player", player)
	}
	entry.Msg(msg)

	if e.journal != nil {
		e.journal.Emit(ev)
	}
}

// placeBall asks the physics collaborator to move the ball to pos.
func (e *Engine) placeBall(pos field.Vec3) {
	m := e.match
	m.Ball.Position = pos
	m.Ball.Velocity = field.Vec3{}
	m.Ball.KickPosition = pos
	m.Ball.LastMove = m.Clock.Tick()
	e.out.ball = &pos
}

// placePlayer asks the physics collaborator to move a robot. A later
// placement of the same robot in the same tick replaces the earlier one.
func (e *Engine) placePlayer(p *Player, pose field.Pose, reason string) {
	p.Position = pose.Translation
	for i := range e.out.placements {
		pl := &e.out.placements[i]
		if pl.Team == p.Team && pl.Number == p.Number {
			pl.Pose, pl.Reason = pose, reason
			return
		}
	}
	e.out.placements = append(e.out.placements, Placement{Team: p.Team, Number: p.Number, Pose: pose, Reason: reason})
}

func (e *Engine) buildDecision() Decision {
	m := e.match
	tick := m.Clock.Tick()

	d := Decision{
		Tick:       tick,
		SimTime:    m.Clock.SimSeconds(),
		WallTime:   m.Clock.Wall(),
		Phase:      m.Phase,
		BallInPlay: m.Possession.InPlay,
		Score:      m.Score(),
		Kickoff:    m.Kickoff,
		Ball:       m.Ball.Position,
		Over:       m.Over,

		BallPlacement:    e.out.ball,
		PlayerPlacements: e.out.placements,
		Cards:            e.out.cards,
		Events:           e.out.events,
	}

	switch {
	case m.Phase == PhasePlaying && m.Shootout == nil:
		d.Remaining = m.Clock.Seconds(max(e.t.match-m.PlayedTicks, 0))
	case m.PhaseTimer.Armed():
		d.Remaining = m.Clock.Seconds(m.PhaseTimer.Remaining(tick))
	}

	it := m.Interruption
	d.Interruption = InterruptionView{Kind: it.Kind, Stage: it.Stage, Team: it.Team}
	switch {
	case it.Kind == DroppedBall:
		d.Interruption.TeamID = DroppedBallTeamID
	case it.Active():
		d.Interruption.TeamID = m.Teams[it.Team].ID
	default:
		d.Interruption.Team = NoTeam
	}

	for i, t := range m.Teams {
		tv := TeamView{
			Color:        t.Color,
			ID:           t.ID,
			Name:         t.Name,
			Score:        t.Score,
			GoalSide:     t.GoalSide,
			PenaltyShots: t.PenaltyShots,
			PenaltyGoals: t.PenaltyGoals,
			Players:      make([]PlayerView, 0, len(t.Players)),
		}
		for _, p := range t.Players {
			tv.Players = append(tv.Players, PlayerView{
				Number:     p.Number,
				Goalkeeper: p.Goalkeeper,
				Present:    p.Present,
				Position:   p.Position,
				Flags:      p.Flags,
				Fallen:     p.Fallen,
				Removed:    p.Removed,
				Status:     p.Status,
				Warnings:   p.Warnings,
				Yellow:     p.YellowCards,
				Red:        p.RedCards,
			})
		}
		d.Teams[i] = tv
	}

	if s := m.Shootout; s != nil {
		sv := &ShootoutView{
			Trial:    s.Trial,
			Attacker: s.Attacker,
			Trials:   append([]TrialRecord(nil), s.Records...),
			Done:     s.Done,
			Winner:   s.Winner,
		}
		if s.Kicker != nil {
			sv.Kicker = s.Kicker.Number
		}
		d.Shootout = sv
	}
	return d
}

// printStatus logs the phase and score every StatusInterval of wall time.
func (e *Engine) printStatus() {
	m := e.match
	now := m.Clock.Wall()
	if !e.lastStatus.IsZero() && now.Sub(e.lastStatus) < StatusInterval {
		return
	}
	e.lastStatus = now
	score := m.Score()
	e.log.Info().
		Str("phase", m.Phase.String()).
		Str("interruption", m.Interruption.Kind.String()).
		Int("red", score[Red]).
		Int("blue", score[Blue]).
		Float64("simTime", m.Clock.SimSeconds()).
		Float64("played", m.Clock.Seconds(m.PlayedTicks)).
		Msg("status")
}
