package referee

import (
	"fmt"
	"time"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee/field"
)

// PoseKind selects one of the configured starting poses.
type PoseKind uint8

const (
	PoseHalfTime PoseKind = iota
	PoseReentry
	PoseShootout
	PoseGoalkeeper
)

// PositionFlags are recomputed from ground contacts every tick a player
// stands on at least three points. They are frozen otherwise.
type PositionFlags struct {
	OutsideCircle      bool `json:"outsideCircle"`
	OutsideField       bool `json:"outsideField"`
	InsideField        bool `json:"insideField"`
	OnOuterLine        bool `json:"onOuterLine"`
	InsideOwnSide      bool `json:"insideOwnSide"`
	OutsideGoalArea    bool `json:"outsideGoalArea"`    // own goal area
	OutsidePenaltyArea bool `json:"outsidePenaltyArea"` // own penalty area
}

func initialFlags() PositionFlags {
	return PositionFlags{
		OutsideCircle:      true,
		OutsideField:       true,
		InsideField:        false,
		OnOuterLine:        false,
		InsideOwnSide:      false,
		OutsideGoalArea:    true,
		OutsidePenaltyArea: true,
	}
}

// HistorySample is one 1 Hz position record.
type HistorySample struct {
	Tick     Tick
	Position field.Vec3
}

// Player is one robot of a roster.
type Player struct {
	Team       Color
	Number     int
	Goalkeeper bool

	Present  bool // reported in the latest snapshot
	Position field.Vec3
	Velocity field.Vec3 // mean over the last second
	velocity *Ring[field.Vec3]
	History  *Ring[HistorySample]
	Flags    PositionFlags

	Fallen            bool
	FallenSince       Tick
	LeftTurfSince     Tick
	BallHandlingStart Tick
	BallHandlingLast  Tick

	Status      PenaltyStatus
	Warnings    int
	YellowCards int
	RedCards    int

	// Removal penalty: the robot waits off the field until PenalizedUntil.
	Removed        bool
	PenalizedUntil Tick
	removalReason  string

	Benched bool // waiting off the field during another kicker's shootout trial

	poses [4]field.Pose // written for a team defending the -x goal
}

func (p *Player) String() string {
	return fmt.Sprintf("%s player %d", p.Team, p.Number)
}

// Active reports whether the player takes part in play.
func (p *Player) Active() bool {
	return p.Present && !p.Removed && !p.Benched
}

// SentOff reports a red card.
func (p *Player) SentOff() bool {
	return p.Status == StatusRed
}

// Pose returns a configured pose mirrored for the goal the team defends.
func (p *Player) Pose(kind PoseKind, goal field.Side) field.Pose {
	pose := p.poses[kind]
	if goal == field.Positive {
		return pose.Flip()
	}
	return pose
}

func (p *Player) isHandling(tick Tick) bool {
	return p.BallHandlingLast == tick
}

// Team is one side of the match.
type Team struct {
	Color    Color
	ID       int
	Name     string
	Players  []*Player // ordered by number
	Score    int
	GoalSide field.Side // goal this team defends

	FieldHolding  *HoldingWindow
	KeeperHolding *HoldingWindow

	PenaltyShots int
	PenaltyGoals int
}

// Player returns the player with the given number.
func (t *Team) Player(number int) (*Player, bool) {
	if number < 1 || number > len(t.Players) {
		return nil, false
	}
	return t.Players[number-1], true
}

// Goalkeeper returns the team goalkeeper, if any.
func (t *Team) Goalkeeper() *Player {
	for _, p := range t.Players {
		if p.Goalkeeper {
			return p
		}
	}
	return nil
}

// Ball is the referee view of the ball.
type Ball struct {
	Position     field.Vec3
	Velocity     field.Vec3
	LastMove     Tick
	KickPosition field.Vec3 // resting spot of the current restart
}

// MatchContext owns every piece of mutable match state. Components get it
// by pointer each tick; nothing is kept in package variables.
type MatchContext struct {
	Type          config.MatchType
	Geometry      field.Geometry
	Rules         config.Rules
	Unconstrained bool

	Clock MatchClock
	Teams [2]*Team
	Ball  Ball

	Phase        Phase
	Interruption Interruption
	Possession   Possession
	Pushing      *ForcefulContactMatrix
	Shootout     *ShootoutState

	PhaseTimer SimTimer  // READY, SET, shootout trial and end of game waits
	WaitTimer  RealTimer // waits measured on the wall clock

	Kickoff      Color // team kicking off next
	FirstKickoff Color // kickoff team at match start
	PlayedTicks  int64 // simulated time spent in PLAYING
	Over         bool

	pendingShootout bool // FINISHED, waiting for the break before the shootout
	closing         bool // final score announced, waiting for the end of game
}

// NewMatchContext builds the match state from a validated match file.
func NewMatchContext(m *config.Match, rules config.Rules, clock Clock) (*MatchContext, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if err := m.Geometry.Validate(); err != nil {
		return nil, &config.ConfigError{Field: "geometry", Err: err}
	}

	mc := &MatchContext{
		Type:          m.Type,
		Geometry:      m.Geometry,
		Rules:         rules,
		Unconstrained: m.Unconstrained(),
		Clock:         newMatchClock(rules.TickDuration, clock),
		Phase:         PhaseInitial,
		Pushing:       NewForcefulContactMatrix(),
	}

	left, err := ParseColor(m.SideLeft)
	if err != nil || !left.Valid() {
		return nil, &config.ConfigError{Field: "side_left", Err: fmt.Errorf("unresolved side %q", m.SideLeft)}
	}
	kickoff, err := ParseColor(m.Kickoff)
	if err != nil || !kickoff.Valid() {
		return nil, &config.ConfigError{Field: "kickoff", Err: fmt.Errorf("unresolved kickoff %q", m.Kickoff)}
	}
	mc.Kickoff, mc.FirstKickoff = kickoff, kickoff

	for _, entry := range []struct {
		color Color
		team  config.Team
	}{{Red, m.Red}, {Blue, m.Blue}} {
		goal := field.Positive
		if entry.color == left {
			goal = field.Negative
		}
		mc.Teams[entry.color] = mc.newTeam(entry.color, entry.team, goal)
	}

	mc.Ball = Ball{
		Position:     mc.Geometry.KickOffSpot(),
		LastMove:     0,
		KickPosition: mc.Geometry.KickOffSpot(),
	}
	mc.Possession.reset()
	return mc, nil
}

func (mc *MatchContext) newTeam(color Color, cfg config.Team, goal field.Side) *Team {
	clk := &mc.Clock
	second := int(clk.Ticks(time.Second))
	historySize := int(mc.Rules.InactiveGoalkeeperTimeout.Seconds())

	t := &Team{
		Color:         color,
		ID:            cfg.ID,
		Name:          cfg.Name,
		GoalSide:      goal,
		FieldHolding:  NewHoldingWindow(int(clk.Ticks(mc.Rules.PlayersHoldingTimeout))),
		KeeperHolding: NewHoldingWindow(int(clk.Ticks(mc.Rules.GoalkeeperHoldingTimeout))),
	}
	for _, ps := range cfg.Players {
		p := &Player{
			Team:              color,
			Number:            ps.Number,
			Goalkeeper:        ps.Goalkeeper,
			velocity:          NewRing[field.Vec3](second),
			History:           NewRing[HistorySample](historySize),
			Flags:             initialFlags(),
			FallenSince:       Never,
			LeftTurfSince:     Never,
			BallHandlingStart: Never,
			BallHandlingLast:  Never,
			PenalizedUntil:    Never,
		}
		p.poses[PoseHalfTime] = ps.HalfTimeStartingPose
		p.poses[PoseReentry] = ps.ReentryStartingPose
		p.poses[PoseShootout] = ps.ShootoutStartingPose
		p.poses[PoseGoalkeeper] = ps.GoalKeeperStartingPose
		t.Players = append(t.Players, p)
	}
	return t
}

// Team returns the team of a color.
func (mc *MatchContext) Team(c Color) (*Team, error) {
	if !c.Valid() || mc.Teams[c] == nil {
		return nil, invariantf(mc.Clock.Tick(), "no team for color %v", c)
	}
	return mc.Teams[c], nil
}

// TeamByID returns the team registered with a team number.
func (mc *MatchContext) TeamByID(id int) (*Team, error) {
	for _, t := range mc.Teams {
		if t != nil && t.ID == id {
			return t, nil
		}
	}
	return nil, invariantf(mc.Clock.Tick(), "wrong team number %d", id)
}

// DefendingTeam returns the team whose goal is at side.
func (mc *MatchContext) DefendingTeam(side field.Side) *Team {
	if mc.Teams[Red].GoalSide == side {
		return mc.Teams[Red]
	}
	return mc.Teams[Blue]
}

// Players iterates over every player, red first, in number order.
func (mc *MatchContext) Players(fn func(*Player)) {
	for _, t := range mc.Teams {
		for _, p := range t.Players {
			fn(p)
		}
	}
}

// Score returns red and blue goals.
func (mc *MatchContext) Score() [2]int {
	return [2]int{mc.Teams[Red].Score, mc.Teams[Blue].Score}
}

// SwapSides exchanges the goals defended by both teams.
func (mc *MatchContext) SwapSides() {
	for _, t := range mc.Teams {
		t.GoalSide = t.GoalSide.Opposite()
	}
}
