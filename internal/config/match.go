package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"


	"humanoid-referee/internal/referee/field"
)

// MatchType selects how a match ends.
type MatchType string

const (
	MatchNormal   MatchType = "NORMAL"
	MatchKnockout MatchType = "KNOCKOUT" // a draw goes to a penalty shootout
	MatchPenalty  MatchType = "PENALTY"  // shootout only
)

// MaxTeamNameLength is the longest team name kept; longer names are trimmed.
const MaxTeamNameLength = 12

// DefaultMinimumRealTimeFactor applies when the match file omits it.
const DefaultMinimumRealTimeFactor = 3

// Match is a validated match description ready for the engine.
type Match struct {
	Type                  MatchType
	Geometry              field.Geometry
	MinimumRealTimeFactor float64
	Red                   Team
	Blue                  Team
	SideLeft              string // "red" or "blue": that team defends the -x goal
	Kickoff               string // "red" or "blue"
	PressAKeyToTerminate  bool
	Host                  string

	// Warnings lists values that were accepted with a fallback.
	Warnings []string
}

// Unconstrained reports whether real-time waits are skipped.
func (m Match) Unconstrained() bool {
	return m.MinimumRealTimeFactor == 0
}

// Team is one roster.
type Team struct {
	Color   string
	ID      int
	Name    string
	Players []Player
	Ports   []int
	Hosts   []string

	Warnings []string
}

// Player is one roster entry. Poses are written for a team defending the
// -x goal.
type Player struct {
	Number                 int
	Proto                  string
	Goalkeeper             bool
	HalfTimeStartingPose   field.Pose
	ReentryStartingPose    field.Pose
	ShootoutStartingPose   field.Pose
	GoalKeeperStartingPose field.Pose
}

// =============================================================================
// FILE FORMATS
// =============================================================================

type matchFile struct {
	Type                  string         `json:"type"`
	Class                 string         `json:"class"`
	MinimumRealTimeFactor *float64       `json:"minimum_real_time_factor"`
	SideLeft              *string        `json:"side_left"`
	Kickoff               *string        `json:"kickoff"`
	PressAKeyToTerminate  bool           `json:"press_a_key_to_terminate"`
	Host                  string         `json:"host"`
	Red                   *teamReference `json:"red"`
	Blue                  *teamReference `json:"blue"`
}

type teamReference struct {
	ID     json.Number `json:"id"`
	Config string      `json:"config"`
	Ports  []int       `json:"ports"`
	Hosts  []string    `json:"hosts"`
}

type teamFile struct {
	Name    *string                    `json:"name"`
	Players map[string]json.RawMessage `json:"players"`
}

type playerFile struct {
	Proto                  *string     `json:"proto"`
	Goalkeeper             *bool       `json:"goalkeeper"`
	HalfTimeStartingPose   *field.Pose `json:"halfTimeStartingPose"`
	ReentryStartingPose    *field.Pose `json:"reentryStartingPose"`
	ShootoutStartingPose   *field.Pose `json:"shootoutStartingPose"`
	GoalKeeperStartingPose *field.Pose `json:"goalKeeperStartingPose"`
}

// =============================================================================
// LOADING
// =============================================================================

// LoadMatch reads a match file and the two team files it references.
// Relative team paths resolve against the match file directory. rng picks
// sides and kickoff when the file asks for "random" or omits them.
func LoadMatch(path string, rng *rand.Rand) (*Match, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}

	var mf matchFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, &ConfigError{Source: path, Err: fmt.Errorf("decode: %w", err)}
	}

	m := &Match{
		MinimumRealTimeFactor: DefaultMinimumRealTimeFactor,
		PressAKeyToTerminate:  mf.PressAKeyToTerminate,
		Host:                  mf.Host,
	}

	switch MatchType(strings.ToUpper(mf.Type)) {
	case MatchNormal, MatchKnockout, MatchPenalty:
		m.Type = MatchType(strings.ToUpper(mf.Type))
	default:
		return nil, &ConfigError{Source: path, Field: "type", Err: fmt.Errorf("unsupported game type %q", mf.Type)}
	}

	m.Geometry, err = field.ForClass(mf.Class)
	if err != nil {
		return nil, &ConfigError{Source: path, Field: "class", Err: err}
	}
	if err := m.Geometry.Validate(); err != nil {
		return nil, &ConfigError{Source: path, Field: "class", Err: err}
	}

	if mf.MinimumRealTimeFactor != nil {
		if *mf.MinimumRealTimeFactor < 0 {
			return nil, &ConfigError{Source: path, Field: "minimum_real_time_factor", Err: errors.New("cannot be negative")}
		}
		m.MinimumRealTimeFactor = *mf.MinimumRealTimeFactor
	}

	dir := filepath.Dir(path)
	for _, side := range []struct {
		color string
		ref   *teamReference
		dst   *Team
	}{
		{"red", mf.Red, &m.Red},
		{"blue", mf.Blue, &m.Blue},
	} {
		if side.ref == nil {
			return nil, &ConfigError{Source: path, Field: side.color, Err: errors.New("missing team")}
		}
		team, err := loadTeamReference(dir, side.color, side.ref)
		if err != nil {
			return nil, err
		}
		*side.dst = team
		m.Warnings = append(m.Warnings, team.Warnings...)
	}
	if m.Red.ID == m.Blue.ID {
		return nil, &ConfigError{Source: path, Field: "id", Err: fmt.Errorf("both teams use id %d", m.Red.ID)}
	}

	m.SideLeft = tossACoin(mf.SideLeft, "side_left", rng, &m.Warnings)
	m.Kickoff = tossACoin(mf.Kickoff, "kickoff", rng, &m.Warnings)
	return m, nil
}

func loadTeamReference(dir, color string, ref *teamReference) (Team, error) {
	id, err := strconv.Atoi(ref.ID.String())
	if err != nil {
		return Team{}, &ConfigError{Field: color + ".id", Err: fmt.Errorf("team id must be an integer: %w", err)}
	}
	if ref.Config == "" {
		return Team{}, &ConfigError{Field: color + ".config", Err: errors.New("missing team file")}
	}

	path := ref.Config
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	team, err := LoadTeam(path)
	if err != nil {
		return Team{}, err
	}
	team.Color = color
	team.ID = id
	team.Ports = ref.Ports
	team.Hosts = ref.Hosts
	return team, nil
}

// LoadTeam reads and validates one team file. Players must be numbered
// "1".."N" without gaps and every player needs all four starting poses.
func LoadTeam(path string) (Team, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Team{}, &ConfigError{Source: path, Err: err}
	}

	var tf teamFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return Team{}, &ConfigError{Source: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if tf.Name == nil {
		return Team{}, &ConfigError{Source: path, Field: "name", Err: errors.New("missing field")}
	}
	if tf.Players == nil {
		return Team{}, &ConfigError{Source: path, Field: "players", Err: errors.New("missing field")}
	}

	team := Team{Name: trimName(*tf.Name)}
	if len(tf.Players) == 0 {
		team.Warnings = append(team.Warnings, fmt.Sprintf("team %s: no players found", team.Name))
	}

	numbers := make([]int, 0, len(tf.Players))
	keys := make(map[int]string, len(tf.Players))
	for key := range tf.Players {
		n, err := strconv.Atoi(key)
		if err != nil {
			return Team{}, &ConfigError{Source: path, Field: "players", Err: fmt.Errorf("player key %q is not a number", key)}
		}
		if _, dup := keys[n]; dup {
			return Team{}, &ConfigError{Source: path, Field: "players", Err: fmt.Errorf("duplicate player number %d", n)}
		}
		keys[n] = key
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for i, n := range numbers {
		if n != i+1 {
			return Team{}, &ConfigError{Source: path, Field: "players",
				Err: fmt.Errorf("wrong team player number: expecting %q, found %q", strconv.Itoa(i+1), keys[n])}
		}
		p, err := decodePlayer(n, tf.Players[keys[n]])
		if err != nil {
			return Team{}, &ConfigError{Source: path, Field: "players." + keys[n], Err: err}
		}
		team.Players = append(team.Players, p)
	}

	// Player 1 keeps goal unless the file names a goalkeeper.
	hasKeeper := false
	for _, p := range team.Players {
		hasKeeper = hasKeeper || p.Goalkeeper
	}
	if !hasKeeper && len(team.Players) > 0 {
		team.Players[0].Goalkeeper = true
	}
	return team, nil
}

func decodePlayer(number int, raw json.RawMessage) (Player, error) {
	var pf playerFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return Player{}, fmt.Errorf("decode: %w", err)
	}

	missing := func(name string) error {
		return fmt.Errorf("missing field %s", name)
	}
	switch {
	case pf.Proto == nil:
		return Player{}, missing("proto")
	case pf.HalfTimeStartingPose == nil:
		return Player{}, missing("halfTimeStartingPose")
	case pf.ReentryStartingPose == nil:
		return Player{}, missing("reentryStartingPose")
	case pf.ShootoutStartingPose == nil:
		return Player{}, missing("shootoutStartingPose")
	case pf.GoalKeeperStartingPose == nil:
		return Player{}, missing("goalKeeperStartingPose")
	}

	p := Player{
		Number:                 number,
		Proto:                  *pf.Proto,
		HalfTimeStartingPose:   *pf.HalfTimeStartingPose,
		ReentryStartingPose:    *pf.ReentryStartingPose,
		ShootoutStartingPose:   *pf.ShootoutStartingPose,
		GoalKeeperStartingPose: *pf.GoalKeeperStartingPose,
	}
	if pf.Goalkeeper != nil {
		p.Goalkeeper = *pf.Goalkeeper
	}
	return p, nil
}

func trimName(name string) string {
	runes := []rune(name)
	if len(runes) > MaxTeamNameLength {
		return string(runes[:MaxTeamNameLength])
	}
	return name
}

// tossACoin resolves "red", "blue" or "random". Unknown values fall back
// to random and add a warning.
func tossACoin(value *string, attribute string, rng *rand.Rand, warnings *[]string) string {
	v := "random"
	if value != nil {
		v = strings.ToLower(*value)
	}
	switch v {
	case "red", "blue":
		return v
	case "random":
	default:
		*warnings = append(*warnings, fmt.Sprintf("unsupported %s value %q, using random", attribute, v))
	}
	if rng.Intn(2) == 0 {
		return "red"
	}
	return "blue"
}
