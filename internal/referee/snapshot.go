package referee

import "humanoid-referee/internal/referee/field"

// ContactPoint is one point where a robot touches something this tick.
type ContactPoint struct {
	Position field.Vec3 `json:"position"`
	Ground   bool       `json:"ground"` // touching the turf
	Part     BodyPart   `json:"part"`
}

// BallState is the physical state of the ball.
type BallState struct {
	Position field.Vec3 `json:"position"`
	Velocity field.Vec3 `json:"velocity"`
}

// RobotState is the physical state of one robot.
type RobotState struct {
	Team     Color          `json:"team"`
	Number   int            `json:"number"`
	Position field.Vec3     `json:"position"` // center of mass
	Velocity field.Vec3     `json:"velocity"`
	Contacts []ContactPoint `json:"contacts"`
	Dormant  bool           `json:"dormant"` // physics reports no contacts at all
}

// PhysicalSnapshot is everything the referee sees of one simulation step.
// It is read only; the engine never keeps references into it.
type PhysicalSnapshot struct {
	Ball   BallState    `json:"ball"`
	Robots []RobotState `json:"robots"`
}

// robot returns the state reported for a player, if any.
func (s *PhysicalSnapshot) robot(team Color, number int) (*RobotState, bool) {
	for i := range s.Robots {
		if s.Robots[i].Team == team && s.Robots[i].Number == number {
			return &s.Robots[i], true
		}
	}
	return nil, false
}
