package referee

import (
	"encoding/json"
	"time"
)

// EventType enum for rule event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeInfo
	EventTypePhase
	EventTypeInterruption
	EventTypeInterruptionStage
	EventTypeRetake
	EventTypeAbort
	EventTypeBallInPlay
	EventTypeTouch
	EventTypeGoal
	EventTypeGoalDisallowed
	EventTypeOutOfBounds
	EventTypeHolding
	EventTypePushing
	EventTypeFallen
	EventTypeRecovered
	EventTypeLeftTurf
	EventTypeRemoval
	EventTypeReentry
	EventTypeWarning
	EventTypeCard
	EventTypeIllegalPosition
	EventTypeInactiveGoalkeeper
	EventTypeShootoutTrial
	EventTypeShootoutEnd
	EventTypeFinalScore
)

// EventVersion for backwards compatibility of journal readers
const EventVersion uint8 = 1

// Event is one human-readable rule event.
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // wall clock, unix nano
	Sequence  uint64          `json:"sequence"`  // assigned by the journal
	Tick      Tick            `json:"tick"`
	SimTime   float64         `json:"simTime"` // seconds
	Team      Color           `json:"team"`
	Player    int             `json:"player,omitempty"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeInfo:
		return "info"
	case EventTypePhase:
		return "phase"
	case EventTypeInterruption:
		return "interruption"
	case EventTypeInterruptionStage:
		return "interruption_stage"
	case EventTypeRetake:
		return "retake"
	case EventTypeAbort:
		return "abort"
	case EventTypeBallInPlay:
		return "ball_in_play"
	case EventTypeTouch:
		return "touch"
	case EventTypeGoal:
		return "goal"
	case EventTypeGoalDisallowed:
		return "goal_disallowed"
	case EventTypeOutOfBounds:
		return "out_of_bounds"
	case EventTypeHolding:
		return "holding"
	case EventTypePushing:
		return "pushing"
	case EventTypeFallen:
		return "fallen"
	case EventTypeRecovered:
		return "recovered"
	case EventTypeLeftTurf:
		return "left_turf"
	case EventTypeRemoval:
		return "removal"
	case EventTypeReentry:
		return "reentry"
	case EventTypeWarning:
		return "warning"
	case EventTypeCard:
		return "card"
	case EventTypeIllegalPosition:
		return "illegal_position"
	case EventTypeInactiveGoalkeeper:
		return "inactive_goalkeeper"
	case EventTypeShootoutTrial:
		return "shootout_trial"
	case EventTypeShootoutEnd:
		return "shootout_end"
	case EventTypeFinalScore:
		return "final_score"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *EventType) UnmarshalText(text []byte) error {
	for c := EventTypeUnknown; c <= EventTypeFinalScore; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	*t = EventTypeUnknown
	return nil
}

// Typed payloads for different event types

// GoalPayload describes a goal or a disallowed goal.
type GoalPayload struct {
	Scorer    Color  `json:"scorer"`
	Toucher   string `json:"toucher,omitempty"`
	OwnGoal   bool   `json:"ownGoal"`
	RedScore  int    `json:"redScore"`
	BlueScore int    `json:"blueScore"`
}

// InterruptionPayload describes an awarded restart.
type InterruptionPayload struct {
	Kind     InterruptionKind `json:"kind"`
	Team     Color            `json:"team"`
	Stage    int              `json:"stage"`
	Position [3]float64       `json:"position"`
	Retakes  int              `json:"retakes"`
}

// FoulPayload describes a holding or pushing foul.
type FoulPayload struct {
	Offender string  `json:"offender"`
	Victim   string  `json:"victim,omitempty"`
	Duration float64 `json:"duration"` // seconds
}

// CardPayload describes a disciplinary change.
type CardPayload struct {
	Status      PenaltyStatus `json:"status"`
	Warnings    int           `json:"warnings"`
	YellowCards int           `json:"yellowCards"`
	RedCards    int           `json:"redCards"`
	Reason      string        `json:"reason"`
}

// TrialPayload describes a finished shootout trial.
type TrialPayload struct {
	Trial   int          `json:"trial"`
	Kicker  string       `json:"kicker,omitempty"`
	Outcome TrialOutcome `json:"outcome"`
	Metrics TrialMetrics `json:"metrics"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event stamped with the given wall time
func NewEvent(eventType EventType, tick Tick, simTime float64, now time.Time, team Color, player int, message string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: now.UnixNano(),
		Tick:      tick,
		SimTime:   simTime,
		Team:      team,
		Player:    player,
		Message:   message,
		Payload:   EncodePayload(payload),
	}
}
