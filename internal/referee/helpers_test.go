package referee

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/referee/field"
)

// testRules shortens the phase timers so a test match runs in a few
// hundred ticks of 100ms.
func testRules() config.Rules {
	r := config.DefaultRules()
	r.TickDuration = 100 * time.Millisecond
	r.ReadyDuration = time.Second
	r.SetDuration = time.Second
	r.ShootoutSetDuration = time.Second
	r.EndOfGameTimeout = time.Second
	r.InterruptionPhase0 = time.Second
	r.InterruptionPhase1 = time.Second
	r.InPlayTimeout = time.Second
	return r
}

func testTeam(color string, id int) config.Team {
	team := config.Team{Color: color, ID: id, Name: color + " team"}
	for n := 1; n <= 4; n++ {
		pose := field.Position(field.Vec3{X: -1, Y: float64(n) - 2.5, Z: 0.3})
		team.Players = append(team.Players, config.Player{
			Number:                 n,
			Goalkeeper:             n == 1,
			HalfTimeStartingPose:   pose,
			ReentryStartingPose:    pose,
			ShootoutStartingPose:   pose,
			GoalKeeperStartingPose: pose,
		})
	}
	return team
}

func testMatch(typ config.MatchType) *config.Match {
	return &config.Match{
		Type:     typ,
		Geometry: field.Kid(),
		Red:      testTeam("red", 10),
		Blue:     testTeam("blue", 20),
		SideLeft: "red",
		Kickoff:  "red",
	}
}

func newTestEngine(t *testing.T, typ config.MatchType, mutate func(*config.Rules)) *Engine {
	t.Helper()
	rules := testRules()
	if mutate != nil {
		mutate(&rules)
	}
	e, err := NewEngine(EngineConfig{
		Match:  testMatch(typ),
		Rules:  rules,
		Clock:  NewManualClock(time.Unix(1700000000, 0)),
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return e
}

// standing returns a robot on both feet centered at (x, y).
func standing(team Color, number int, x, y float64) RobotState {
	rs := RobotState{Team: team, Number: number, Position: field.Vec3{X: x, Y: y, Z: 0.3}}
	for _, d := range [][2]float64{{-0.05, -0.05}, {0.05, -0.05}, {-0.05, 0.05}, {0.05, 0.05}} {
		rs.Contacts = append(rs.Contacts, ContactPoint{
			Position: field.Vec3{X: x + d[0], Y: y + d[1]},
			Ground:   true,
			Part:     PartFoot,
		})
	}
	return rs
}

// touching adds a non ground contact at pos.
func touching(rs RobotState, pos field.Vec3, part BodyPart) RobotState {
	rs.Contacts = append(append([]ContactPoint(nil), rs.Contacts...), ContactPoint{Position: pos, Part: part})
	return rs
}

// scene is a mutable snapshot builder.
type scene struct {
	ball   field.Vec3
	robots map[[2]int]RobotState
}

// newScene lines both teams up in their own half, red defending -x.
func newScene() *scene {
	s := &scene{ball: ballAt(0, 0), robots: make(map[[2]int]RobotState)}
	for n := 1; n <= 4; n++ {
		s.set(standing(Red, n, -1, float64(n)-2.5))
		s.set(standing(Blue, n, 1, float64(n)-2.5))
	}
	return s
}

func (s *scene) set(rs RobotState) {
	s.robots[[2]int{int(rs.Team), rs.Number}] = rs
}

func (s *scene) snapshot() PhysicalSnapshot {
	snap := PhysicalSnapshot{Ball: BallState{Position: s.ball}}
	for team := 0; team < 2; team++ {
		for n := 1; n <= 4; n++ {
			if rs, ok := s.robots[[2]int{team, n}]; ok {
				snap.Robots = append(snap.Robots, rs)
			}
		}
	}
	return snap
}

func ballAt(x, y float64) field.Vec3 {
	return field.Kid().RestOnTurf(field.Vec3{X: x, Y: y})
}

func step(t *testing.T, e *Engine, s *scene) Decision {
	t.Helper()
	d, err := e.Step(s.snapshot())
	if err != nil {
		t.Fatalf("Step failed at tick %d: %v", e.Match().Clock.Tick(), err)
	}
	if d.BallPlacement != nil {
		s.ball = *d.BallPlacement
	}
	return d
}

// stepUntil steps until cond holds, failing after limit ticks.
func stepUntil(t *testing.T, e *Engine, s *scene, limit int, cond func(Decision) bool) Decision {
	t.Helper()
	for i := 0; i < limit; i++ {
		d := step(t, e, s)
		if cond(d) {
			return d
		}
	}
	t.Fatalf("Condition not reached within %d ticks (phase %s)", limit, e.Match().Phase)
	return Decision{}
}

// kickOff runs the engine to the first tick of PLAYING.
func kickOff(t *testing.T, e *Engine, s *scene) Decision {
	t.Helper()
	return stepUntil(t, e, s, 100, func(d Decision) bool { return d.Phase == PhasePlaying })
}

func countEvents(d Decision, typ EventType) int {
	n := 0
	for _, ev := range d.Events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func findEvent(d Decision, typ EventType) (Event, bool) {
	for _, ev := range d.Events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

func findPlacement(d Decision, team Color, number int) (Placement, bool) {
	for _, p := range d.PlayerPlacements {
		if p.Team == team && p.Number == number {
			return p, true
		}
	}
	return Placement{}, false
}

func near(a, b field.Vec3) bool {
	return a.Sub(b).Norm() < 1e-9
}
