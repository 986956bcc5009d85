package referee

import "sort"

// ForcefulContact is one tick of contact where offender drove into victim.
type ForcefulContact struct {
	Offender     *Player
	Victim       *Player
	Tick         Tick
	Distance     float64
	ClosingSpeed float64
}

type contactPair struct {
	offender, victim *Player
}

// ForcefulContactMatrix keeps, per (offender, victim) pair, the contact
// ticks inside the rolling pushing period.
type ForcefulContactMatrix struct {
	pairs map[contactPair][]ForcefulContact
}

func NewForcefulContactMatrix() *ForcefulContactMatrix {
	return &ForcefulContactMatrix{pairs: make(map[contactPair][]ForcefulContact)}
}

// Add records one contact tick.
func (m *ForcefulContactMatrix) Add(c ForcefulContact) {
	key := contactPair{c.Offender, c.Victim}
	m.pairs[key] = append(m.pairs[key], c)
}

// Expire drops contacts older than period ticks.
func (m *ForcefulContactMatrix) Expire(now Tick, period int64) {
	cutoff := now - Tick(period)
	for key, contacts := range m.pairs {
		i := 0
		for i < len(contacts) && contacts[i].Tick <= cutoff {
			i++
		}
		if i == len(contacts) {
			delete(m.pairs, key)
			continue
		}
		m.pairs[key] = contacts[i:]
	}
}

// Fouls returns the pairs whose contact time inside the window reached
// minTicks, ordered by offender then victim, and clears their history so
// one sustained push yields one foul.
func (m *ForcefulContactMatrix) Fouls(minTicks int64) []ForcefulContact {
	var fouls []ForcefulContact
	for key, contacts := range m.pairs {
		if int64(len(contacts)) >= minTicks {
			fouls = append(fouls, contacts[len(contacts)-1])
			delete(m.pairs, key)
		}
	}
	sort.Slice(fouls, func(i, j int) bool {
		a, b := fouls[i], fouls[j]
		if a.Offender.Team != b.Offender.Team {
			return a.Offender.Team < b.Offender.Team
		}
		if a.Offender.Number != b.Offender.Number {
			return a.Offender.Number < b.Offender.Number
		}
		return a.Victim.Number < b.Victim.Number
	})
	return fouls
}

// Duration returns the recorded contact ticks between two players.
func (m *ForcefulContactMatrix) Duration(offender, victim *Player) int {
	return len(m.pairs[contactPair{offender, victim}])
}

// Clear forgets every contact.
func (m *ForcefulContactMatrix) Clear() {
	clear(m.pairs)
}
