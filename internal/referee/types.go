package referee

import (
	"fmt"
	"strings"
)

// Tick counts simulation steps since the referee started. Never marks an
// unset timestamp.
type Tick int64

const Never Tick = -1

// Valid reports whether the tick is set.
func (t Tick) Valid() bool { return t >= 0 }

// =============================================================================
// TEAMS
// =============================================================================

// Color identifies a team. Red and Blue double as indices into team arrays.
type Color uint8

const (
	Red Color = iota
	Blue
	NoTeam Color = 0xff
)

// DroppedBallTeamID is the team id reported for a dropped ball.
const DroppedBallTeamID = 128

// Opponent returns the other team.
func (c Color) Opponent() Color {
	switch c {
	case Red:
		return Blue
	case Blue:
		return Red
	default:
		return NoTeam
	}
}

// Valid reports whether c names one of the two teams.
func (c Color) Valid() bool { return c == Red || c == Blue }

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Blue:
		return "blue"
	default:
		return "none"
	}
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses "red", "blue" or "none".
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(s) {
	case "red":
		return Red, nil
	case "blue":
		return Blue, nil
	case "none", "":
		return NoTeam, nil
	default:
		return NoTeam, fmt.Errorf("unknown team color %q", s)
	}
}

// =============================================================================
// MATCH PHASES
// =============================================================================

// Phase is the primary match state.
type Phase uint8

const (
	PhaseInitial Phase = iota
	PhaseReady
	PhaseSet
	PhasePlaying
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "INITIAL"
	case PhaseReady:
		return "READY"
	case PhaseSet:
		return "SET"
	case PhasePlaying:
		return "PLAYING"
	case PhaseFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// =============================================================================
// INTERRUPTIONS
// =============================================================================

// InterruptionKind is the secondary state running inside PLAYING.
type InterruptionKind uint8

const (
	Normal InterruptionKind = iota
	DirectFreeKick
	IndirectFreeKick
	PenaltyKick
	CornerKick
	GoalKick
	ThrowIn
	DroppedBall
)

func (k InterruptionKind) String() string {
	switch k {
	case Normal:
		return "NORMAL"
	case DirectFreeKick:
		return "DIRECT_FREEKICK"
	case IndirectFreeKick:
		return "INDIRECT_FREEKICK"
	case PenaltyKick:
		return "PENALTYKICK"
	case CornerKick:
		return "CORNERKICK"
	case GoalKick:
		return "GOALKICK"
	case ThrowIn:
		return "THROWIN"
	case DroppedBall:
		return "DROPPEDBALL"
	default:
		return "UNKNOWN"
	}
}

// Label returns the announcement text.
func (k InterruptionKind) Label() string {
	switch k {
	case DirectFreeKick:
		return "direct free kick"
	case IndirectFreeKick:
		return "indirect free kick"
	case PenaltyKick:
		return "penalty kick"
	case CornerKick:
		return "corner kick"
	case GoalKick:
		return "goal kick"
	case ThrowIn:
		return "throw in"
	case DroppedBall:
		return "dropped ball"
	default:
		return "normal play"
	}
}

func (k InterruptionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Interruption phases.
const (
	StagePlacing   = 0 // awarded, robots and ball being placed
	StageCountdown = 1
	StageExecuted  = 2 // ball free, waiting for it to be in play
)

// =============================================================================
// PLAYERS
// =============================================================================

// PenaltyStatus is the disciplinary state of a player.
type PenaltyStatus uint8

const (
	StatusNone PenaltyStatus = iota
	StatusWarned
	StatusYellow
	StatusRed
)

func (s PenaltyStatus) String() string {
	switch s {
	case StatusWarned:
		return "warned"
	case StatusYellow:
		return "yellow"
	case StatusRed:
		return "red"
	default:
		return "none"
	}
}

func (s PenaltyStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BodyPart labels a contact point. The mapping from robot geometry to
// labels is resolved by whoever builds the snapshot.
type BodyPart uint8

const (
	PartUnknown BodyPart = iota
	PartFoot
	PartLeg
	PartTorso
	PartHead
	PartArm
	PartHand
)

var bodyPartNames = [...]string{"unknown", "foot", "leg", "torso", "head", "arm", "hand"}

func (b BodyPart) String() string {
	if int(b) < len(bodyPartNames) {
		return bodyPartNames[b]
	}
	return "unknown"
}

// Handles reports whether contact by this part counts as ball handling.
func (b BodyPart) Handles() bool {
	return b == PartArm || b == PartHand
}

func (b BodyPart) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *BodyPart) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range bodyPartNames {
		if n == name {
			*b = BodyPart(i)
			return nil
		}
	}
	*b = PartUnknown
	return nil
}
