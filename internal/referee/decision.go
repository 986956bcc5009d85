package referee

import (
	"sync/atomic"
	"time"

	"humanoid-referee/internal/referee/field"
)

// Placement asks the physics collaborator to move a robot.
type Placement struct {
	Team   Color      `json:"team"`
	Number int        `json:"number"`
	Pose   field.Pose `json:"pose"`
	Reason string     `json:"reason"`
}

// CardEvent reports a warning or card given this tick.
type CardEvent struct {
	Team   Color         `json:"team"`
	Number int           `json:"number"`
	Status PenaltyStatus `json:"status"`
	Reason string        `json:"reason"`
}

// InterruptionView is the externally visible secondary state.
type InterruptionView struct {
	Kind   InterruptionKind `json:"kind"`
	Stage  int              `json:"stage"`
	Team   Color            `json:"team"`
	TeamID int              `json:"teamId"` // DroppedBallTeamID for a dropped ball
}

// TeamView summarizes one team.
type TeamView struct {
	Color        Color        `json:"color"`
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Score        int          `json:"score"`
	GoalSide     field.Side   `json:"goalSide"`
	PenaltyShots int          `json:"penaltyShots"`
	PenaltyGoals int          `json:"penaltyGoals"`
	Players      []PlayerView `json:"players"`
}

// PlayerView summarizes one player.
type PlayerView struct {
	Number     int           `json:"number"`
	Goalkeeper bool          `json:"goalkeeper"`
	Present    bool          `json:"present"`
	Position   field.Vec3    `json:"position"`
	Flags      PositionFlags `json:"flags"`
	Fallen     bool          `json:"fallen"`
	Removed    bool          `json:"removed"`
	Status     PenaltyStatus `json:"status"`
	Warnings   int           `json:"warnings"`
	Yellow     int           `json:"yellowCards"`
	Red        int           `json:"redCards"`
}

// ShootoutView reports penalty shootout progress.
type ShootoutView struct {
	Trial    int           `json:"trial"` // trials completed
	Attacker Color         `json:"attacker"`
	Kicker   int           `json:"kicker"`
	Trials   []TrialRecord `json:"trials"`
	Done     bool          `json:"done"`
	Winner   Color         `json:"winner"`
}

// Decision is everything the referee decided during one tick. Decisions
// are immutable once returned.
type Decision struct {
	Tick         Tick             `json:"tick"`
	SimTime      float64          `json:"simTime"`
	WallTime     time.Time        `json:"wallTime"`
	Phase        Phase            `json:"phase"`
	Interruption InterruptionView `json:"interruption"`
	BallInPlay   bool             `json:"ballInPlay"`
	Score        [2]int           `json:"score"` // red, blue
	Kickoff      Color            `json:"kickoff"`
	Remaining    float64          `json:"remaining"` // seconds of play left in the current phase timer

	Ball             field.Vec3  `json:"ball"`
	BallPlacement    *field.Vec3 `json:"ballPlacement,omitempty"`
	PlayerPlacements []Placement `json:"playerPlacements,omitempty"`
	Cards            []CardEvent `json:"cards,omitempty"`
	Events           []Event     `json:"events,omitempty"`

	Teams    [2]TeamView   `json:"teams"`
	Shootout *ShootoutView `json:"shootout,omitempty"`
	Over     bool          `json:"over"`
}

// DecisionFeed publishes the latest decision to concurrent readers (HTTP
// handlers, websocket hub, renderer) without locking the tick.
type DecisionFeed struct {
	latest   atomic.Pointer[Decision]
	sequence atomic.Uint64
	notify   chan struct{}
}

// NewDecisionFeed creates an empty feed.
func NewDecisionFeed() *DecisionFeed {
	return &DecisionFeed{notify: make(chan struct{}, 1)}
}

// Publish stores d as the latest decision. The caller must not modify d
// afterwards.
func (f *DecisionFeed) Publish(d *Decision) {
	f.latest.Store(d)
	f.sequence.Add(1)
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Latest returns the most recent decision, nil before the first tick.
func (f *DecisionFeed) Latest() *Decision {
	return f.latest.Load()
}

// Sequence counts published decisions.
func (f *DecisionFeed) Sequence() uint64 {
	return f.sequence.Load()
}

// Updated is signalled (coalesced) after each publish.
func (f *DecisionFeed) Updated() <-chan struct{} {
	return f.notify
}
