package referee

import (
	"humanoid-referee/internal/referee/field"
	"humanoid-referee/internal/referee/spatial"
)

// ballTouch is one player in contact with the ball this tick.
type ballTouch struct {
	player   *Player
	part     BodyPart
	handling bool
}

// holdingViolation is a full holding window.
type holdingViolation struct {
	player     *Player
	goalkeeper bool
	held       int // ticks held inside the window
}

// removalCandidate is a player who stayed fallen or off the turf too long.
type removalCandidate struct {
	player *Player
	reason string
}

// contactReport is what the contact monitor found this tick.
type contactReport struct {
	touches  []ballTouch
	holding  []holdingViolation
	pushes   []ForcefulContact
	removals []removalCandidate
}

func (r *contactReport) reset() {
	r.touches = r.touches[:0]
	r.holding = r.holding[:0]
	r.pushes = r.pushes[:0]
	r.removals = r.removals[:0]
}

// contactMonitor derives fallen state, position flags, ball touches,
// holding and pushing from the raw contact points of a snapshot.
type contactMonitor struct {
	grid   *spatial.Grid
	robots []*Player     // grid id -> player
	states []*RobotState // grid id -> snapshot entry
	seen   map[[2]*Player]bool
	report contactReport

	lastHandler [2]*Player // latest field player handling, per team
	lastKeeper  [2]*Player
}

func newContactMonitor(g field.Geometry, maxRobots int) *contactMonitor {
	cell := 2 * g.RobotRadius
	if cell < 0.5 {
		cell = 0.5
	}
	return &contactMonitor{
		grid:   spatial.NewGrid(g.SizeX+g.BorderStrip, g.SizeY+g.BorderStrip, cell, maxRobots),
		robots: make([]*Player, 0, maxRobots),
		states: make([]*RobotState, 0, maxRobots),
		seen:   make(map[[2]*Player]bool),
	}
}

// observeContacts updates every player from the snapshot. The returned
// report is reused by the next call.
func (e *Engine) observeContacts(snap *PhysicalSnapshot) *contactReport {
	c := e.contacts
	m := e.match
	tick := m.Clock.Tick()
	c.report.reset()
	c.robots = c.robots[:0]
	c.states = c.states[:0]

	m.Players(func(p *Player) {
		rs, ok := snap.robot(p.Team, p.Number)
		if !ok {
			p.Present = false
			return
		}
		p.Present = true
		p.Position = rs.Position
		p.velocity.Push(rs.Velocity)
		p.Velocity = meanVelocity(p.velocity)
		if int64(tick)%e.t.second == 0 {
			p.History.Push(HistorySample{Tick: tick, Position: rs.Position})
		}
		if p.Removed || p.Benched {
			return
		}
		if rs.Dormant {
			return
		}
		e.updateStance(p, rs)
		e.updateBallContact(p, rs)
		c.robots = append(c.robots, p)
		c.states = append(c.states, rs)
	})

	if m.Phase == PhasePlaying {
		e.updateHolding()
		e.updatePushing()
		e.collectRemovals()
	}
	return &c.report
}

func meanVelocity(r *Ring[field.Vec3]) field.Vec3 {
	var sum field.Vec3
	n := r.Len()
	if n == 0 {
		return sum
	}
	for i := 0; i < n; i++ {
		sum = sum.Add(r.At(i))
	}
	return sum.Scale(1 / float64(n))
}

// updateStance applies the fallen rule and recomputes position flags from
// the ground contact points.
func (e *Engine) updateStance(p *Player, rs *RobotState) {
	m := e.match
	g := m.Geometry
	tick := m.Clock.Tick()

	ground := make([]field.Vec3, 0, len(rs.Contacts))
	nonFoot := false
	for _, cp := range rs.Contacts {
		if !cp.Ground {
			continue
		}
		ground = append(ground, cp.Position)
		if cp.Part != PartFoot && cp.Part != PartUnknown {
			nonFoot = true
		}
	}

	if len(ground) < 3 {
		e.fall(p, tick)
		return
	}
	if nonFoot {
		e.fall(p, tick)
	} else if p.Fallen {
		p.Fallen = false
		p.FallenSince = Never
		e.emit(EventTypeRecovered, p.Team, p.Number, nil, "%s has recovered", p)
	}

	team := m.Teams[p.Team]
	flags := PositionFlags{
		OutsideCircle:      true,
		InsideOwnSide:      true,
		OutsideGoalArea:    true,
		OutsidePenaltyArea: true,
	}
	in, out, offTurf := 0, 0, 0
	for _, pt := range ground {
		if g.InsideField(pt) {
			in++
		} else {
			out++
		}
		if !g.InsideTurf(pt) {
			offTurf++
		}
		if g.InCircle(pt) {
			flags.OutsideCircle = false
		}
		if !g.InsideSide(pt, team.GoalSide) {
			flags.InsideOwnSide = false
		}
		if g.InGoalArea(pt, team.GoalSide) {
			flags.OutsideGoalArea = false
		}
		if g.InPenaltyArea(pt, team.GoalSide) {
			flags.OutsidePenaltyArea = false
		}
	}
	flags.InsideField = out == 0
	flags.OutsideField = in == 0
	flags.OnOuterLine = in > 0 && out > 0
	p.Flags = flags

	if offTurf == len(ground) {
		if !p.LeftTurfSince.Valid() {
			p.LeftTurfSince = tick
			e.emit(EventTypeLeftTurf, p.Team, p.Number, nil, "%s left the turf", p)
		}
	} else {
		p.LeftTurfSince = Never
	}
}

func (e *Engine) fall(p *Player, tick Tick) {
	if p.Fallen {
		return
	}
	p.Fallen = true
	p.FallenSince = tick
	e.emit(EventTypeFallen, p.Team, p.Number, nil, "%s has fallen", p)
}

// updateBallContact records a touch when a non ground contact point lies
// within the ball radius plus tolerance, and tracks ball handling.
func (e *Engine) updateBallContact(p *Player, rs *RobotState) {
	m := e.match
	tick := m.Clock.Tick()
	reach := m.Geometry.BallRadius + m.Rules.BallContactTolerance

	touched, handling := false, false
	part := PartUnknown
	for _, cp := range rs.Contacts {
		if cp.Ground || cp.Position.Sub(m.Ball.Position).Norm() > reach {
			continue
		}
		if !touched {
			part = cp.Part
		}
		touched = true
		if cp.Part.Handles() {
			handling = true
			part = cp.Part
		}
	}

	if handling {
		if p.BallHandlingLast != tick-1 {
			p.BallHandlingStart = tick
		}
		p.BallHandlingLast = tick
	} else if p.BallHandlingStart.Valid() {
		p.BallHandlingStart = Never
	}

	if touched {
		e.contacts.report.touches = append(e.contacts.report.touches, ballTouch{player: p, part: part, handling: handling})
	}
}

// updateHolding feeds both holding windows of every team. The team taking
// a throw in is not checked.
func (e *Engine) updateHolding() {
	c := e.contacts
	m := e.match
	tick := m.Clock.Tick()
	excluded := e.throwingTeam()

	for _, team := range m.Teams {
		fieldHeld, keeperHeld := false, false
		if team.Color != excluded {
			for _, p := range team.Players {
				if !p.Active() || !p.isHandling(tick) {
					continue
				}
				if p.Goalkeeper && m.Geometry.InPenaltyArea(p.Position, team.GoalSide) {
					keeperHeld = true
					c.lastKeeper[team.Color] = p
				} else {
					fieldHeld = true
					c.lastHandler[team.Color] = p
				}
			}
		}
		team.FieldHolding.Push(fieldHeld)
		team.KeeperHolding.Push(keeperHeld)

		if team.FieldHolding.Violated(m.Rules.HoldingWindowRatio) && c.lastHandler[team.Color] != nil {
			c.report.holding = append(c.report.holding, holdingViolation{
				player: c.lastHandler[team.Color],
				held:   team.FieldHolding.Held(),
			})
			team.FieldHolding.Clear()
		}
		if team.KeeperHolding.Violated(m.Rules.HoldingWindowRatio) && c.lastKeeper[team.Color] != nil {
			c.report.holding = append(c.report.holding, holdingViolation{
				player:     c.lastKeeper[team.Color],
				goalkeeper: true,
				held:       team.KeeperHolding.Held(),
			})
			team.KeeperHolding.Clear()
		}
	}
}

// updatePushing finds robot pairs in contact with the spatial grid and
// feeds the forceful contact matrix. Ball contact points are ignored.
// Contacts are not recorded while an interruption is still being placed.
func (e *Engine) updatePushing() {
	c := e.contacts
	m := e.match
	tick := m.Clock.Tick()
	g := m.Geometry

	m.Pushing.Expire(tick, e.t.pushingPeriod)
	if m.Interruption.Kind != Normal && m.Interruption.Stage == StagePlacing {
		return
	}

	c.grid.Clear()
	for i, p := range c.robots {
		c.grid.Insert(uint32(i), p.Position.X, p.Position.Y)
	}
	clear(c.seen)
	reach := g.BallRadius + m.Rules.BallContactTolerance

	for i, a := range c.robots {
		for _, cp := range c.states[i].Contacts {
			if cp.Ground || cp.Position.Sub(m.Ball.Position).Norm() <= reach {
				continue
			}
			for _, id := range c.grid.QueryRadius(cp.Position.X, cp.Position.Y, g.RobotRadius) {
				b := c.robots[id]
				if b.Team == a.Team {
					continue
				}
				if cp.Position.PlanarDistance(b.Position) > g.RobotRadius {
					continue
				}
				key := [2]*Player{a, b}
				if a.Team > b.Team {
					key = [2]*Player{b, a}
				}
				if c.seen[key] {
					continue
				}
				c.seen[key] = true
				m.Pushing.Add(forcefulContact(a, b, tick))
			}
		}
	}

	for _, foul := range m.Pushing.Fouls(e.t.pushingTime) {
		c.report.pushes = append(c.report.pushes, foul)
	}
}

// forcefulContact attributes a contact to the robot closing in faster.
func forcefulContact(a, b *Player, tick Tick) ForcefulContact {
	ab := b.Position.Sub(a.Position)
	ab.Z = 0
	dist := ab.Norm()
	var dir field.Vec3
	if dist > 0 {
		dir = ab.Scale(1 / dist)
	}
	closingA := a.Velocity.Dot(dir)
	closingB := -b.Velocity.Dot(dir)

	offender, victim, speed := a, b, closingA
	if closingB > closingA {
		offender, victim, speed = b, a, closingB
	}
	return ForcefulContact{Offender: offender, Victim: victim, Tick: tick, Distance: dist, ClosingSpeed: speed}
}

// collectRemovals lists players fallen or off the turf for too long.
func (e *Engine) collectRemovals() {
	c := e.contacts
	m := e.match
	tick := m.Clock.Tick()

	m.Players(func(p *Player) {
		if !p.Active() {
			return
		}
		switch {
		case p.Fallen && p.FallenSince.Valid() && int64(tick-p.FallenSince) >= e.t.fallen:
			c.report.removals = append(c.report.removals, removalCandidate{player: p, reason: "fallen"})
		case p.LeftTurfSince.Valid() && int64(tick-p.LeftTurfSince) >= e.t.outsideTurf:
			c.report.removals = append(c.report.removals, removalCandidate{player: p, reason: "left the turf"})
		}
	})
}
