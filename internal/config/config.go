// Package config provides centralized configuration management for the
// referee: process settings from the environment, rule timings, and the
// match and team files describing one game.
//
// Every value has a default here; environment variables (optionally loaded
// from a .env file) override them.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// =============================================================================
// RULE TIMINGS
// =============================================================================

// Rules holds every timing and threshold the referee applies. Durations
// are simulated time unless the name says otherwise; the engine converts
// them to tick counts once at setup.
type Rules struct {
	TickDuration time.Duration `env:"TICK_DURATION" json:"tickDuration"`

	// Real (wall clock) waits
	RealTimeBeforeFirstReady time.Duration `env:"REAL_TIME_BEFORE_FIRST_READY" json:"realTimeBeforeFirstReady"`
	HalfTimeBreak            time.Duration `env:"HALF_TIME_BREAK" json:"halfTimeBreak"`

	// Primary phases
	ReadyDuration       time.Duration `env:"READY_DURATION" json:"readyDuration"`
	SetDuration         time.Duration `env:"SET_DURATION" json:"setDuration"`
	ShootoutSetDuration time.Duration `env:"SHOOTOUT_SET_DURATION" json:"shootoutSetDuration"`
	MatchDuration       time.Duration `env:"MATCH_DURATION" json:"matchDuration"`
	EndOfGameTimeout    time.Duration `env:"END_OF_GAME_TIMEOUT" json:"endOfGameTimeout"`

	// Interruptions and ball in play
	InterruptionPhase0 time.Duration `env:"INTERRUPTION_PHASE_0" json:"interruptionPhase0"`
	InterruptionPhase1 time.Duration `env:"INTERRUPTION_PHASE_1" json:"interruptionPhase1"`
	InPlayTimeout      time.Duration `env:"IN_PLAY_TIMEOUT" json:"inPlayTimeout"`
	InPlayDistance     float64       `env:"IN_PLAY_DISTANCE" json:"inPlayDistance"`
	DroppedBallTimeout time.Duration `env:"DROPPED_BALL_TIMEOUT" json:"droppedBallTimeout"`
	StaticSpeedEps     float64       `env:"STATIC_SPEED_EPS" json:"staticSpeedEps"`
	ThrowInLiftHeight  float64       `env:"THROW_IN_LIFT_HEIGHT" json:"throwInLiftHeight"`
	TouchRepeatWindow  time.Duration `env:"TOUCH_REPEAT_WINDOW" json:"touchRepeatWindow"`

	// Contacts and fouls
	BallContactTolerance     float64       `env:"BALL_CONTACT_TOLERANCE" json:"ballContactTolerance"`
	PlayersHoldingTimeout    time.Duration `env:"PLAYERS_BALL_HOLDING_TIMEOUT" json:"playersHoldingTimeout"`
	GoalkeeperHoldingTimeout time.Duration `env:"GOALKEEPER_BALL_HOLDING_TIMEOUT" json:"goalkeeperHoldingTimeout"`
	HoldingWindowRatio       float64       `env:"HOLDING_WINDOW_RATIO" json:"holdingWindowRatio"`
	FoulPushingTime          time.Duration `env:"FOUL_PUSHING_TIME" json:"foulPushingTime"`
	FoulPushingPeriod        time.Duration `env:"FOUL_PUSHING_PERIOD" json:"foulPushingPeriod"`

	// Removal penalties
	FallenTimeout      time.Duration `env:"FALLEN_TIMEOUT" json:"fallenTimeout"`
	OutsideTurfTimeout time.Duration `env:"OUTSIDE_TURF_TIMEOUT" json:"outsideTurfTimeout"`
	PenaltyTimeout     time.Duration `env:"PENALTY_TIMEOUT" json:"penaltyTimeout"`

	// Inactive goalkeeper
	InactiveGoalkeeperTimeout  time.Duration `env:"INACTIVE_GOALKEEPER_TIMEOUT" json:"inactiveGoalkeeperTimeout"`
	InactiveGoalkeeperDistance float64       `env:"INACTIVE_GOALKEEPER_DISTANCE" json:"inactiveGoalkeeperDistance"`
	InactiveGoalkeeperProgress float64       `env:"INACTIVE_GOALKEEPER_PROGRESS" json:"inactiveGoalkeeperProgress"`

	// Penalty shootout
	ShootoutTrialDuration time.Duration `env:"SHOOTOUT_TRIAL_DURATION" json:"shootoutTrialDuration"`
}

// DefaultRules returns the rule timings of a regular match.
func DefaultRules() Rules {
	return Rules{
		TickDuration: 8 * time.Millisecond,

		RealTimeBeforeFirstReady: 120 * time.Second,
		HalfTimeBreak:            15 * time.Second,

		ReadyDuration:       45 * time.Second,
		SetDuration:         5 * time.Second,
		ShootoutSetDuration: 2 * time.Second,
		MatchDuration:       10 * time.Minute,
		EndOfGameTimeout:    5 * time.Second,

		InterruptionPhase0: 35 * time.Second,
		InterruptionPhase1: 15 * time.Second,
		InPlayTimeout:      10 * time.Second,
		InPlayDistance:     0.05,
		DroppedBallTimeout: 30 * time.Second,
		StaticSpeedEps:     1e-2,
		ThrowInLiftHeight:  0.3,
		TouchRepeatWindow:  time.Second,

		BallContactTolerance:     0.01,
		PlayersHoldingTimeout:    time.Second,
		GoalkeeperHoldingTimeout: 6 * time.Second,
		HoldingWindowRatio:       0.8,
		FoulPushingTime:          time.Second,
		FoulPushingPeriod:        2 * time.Second,

		FallenTimeout:      20 * time.Second,
		OutsideTurfTimeout: 20 * time.Second,
		PenaltyTimeout:     30 * time.Second,

		InactiveGoalkeeperTimeout:  20 * time.Second,
		InactiveGoalkeeperDistance: 1,
		InactiveGoalkeeperProgress: 0.05,

		ShootoutTrialDuration: 60 * time.Second,
	}
}

// Validate rejects timings the engine cannot turn into tick counts.
func (r Rules) Validate() error {
	if r.TickDuration <= 0 {
		return &ConfigError{Field: "TICK_DURATION", Err: fmt.Errorf("must be positive, got %v", r.TickDuration)}
	}
	if r.PlayersHoldingTimeout < r.TickDuration || r.GoalkeeperHoldingTimeout < r.TickDuration {
		return &ConfigError{Field: "BALL_HOLDING_TIMEOUT", Err: fmt.Errorf("holding windows must span at least one tick")}
	}
	if r.HoldingWindowRatio <= 0 || r.HoldingWindowRatio > 1 {
		return &ConfigError{Field: "HOLDING_WINDOW_RATIO", Err: fmt.Errorf("must be in (0, 1], got %g", r.HoldingWindowRatio)}
	}
	if r.FoulPushingTime > r.FoulPushingPeriod {
		return &ConfigError{Field: "FOUL_PUSHING_TIME", Err: fmt.Errorf("%v exceeds the %v window", r.FoulPushingTime, r.FoulPushingPeriod)}
	}
	if r.InactiveGoalkeeperTimeout < time.Second {
		return &ConfigError{Field: "INACTIVE_GOALKEEPER_TIMEOUT", Err: fmt.Errorf("must be at least one second")}
	}
	return nil
}

// RulesFromEnv returns rule timings with environment variable overrides.
func RulesFromEnv() (Rules, error) {
	cfg := DefaultRules()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse rules env: %w", err)
	}
	return cfg, cfg.Validate()
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds the state API settings.
type ServerConfig struct {
	Port           int      `env:"PORT"`
	AllowedOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
	RequestsPerSec float64  `env:"API_RATE_LIMIT"`
	Burst          int      `env:"API_RATE_BURST"`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           8080,
		AllowedOrigins: []string{"*"},
		RequestsPerSec: 20,
		Burst:          40,
	}
}

// DebugConfig holds the metrics and pprof server settings.
type DebugConfig struct {
	Enabled bool   `env:"DEBUG_SERVER_ENABLED"`
	Addr    string `env:"DEBUG_ADDR"`
}

// DefaultDebug returns the default debug server configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

// =============================================================================
// LOGGING & STORAGE
// =============================================================================

// LogConfig selects zerolog output.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"` // json or console
}

// StorageConfig holds file locations written by the referee.
type StorageConfig struct {
	ArchivePath string `env:"ARCHIVE_PATH"` // sqlite match archive, empty disables
	JournalPath string `env:"JOURNAL_PATH"` // JSONL rule event journal, empty disables
}

// IntakeConfig selects where physical snapshots come from.
type IntakeConfig struct {
	SocketPath string `env:"REFEREE_SOCKET"`
	Recording  string `env:"REPLAY_PATH"` // JSONL recording, used instead of the socket when set
}

// =============================================================================
// APP CONFIG (aggregates all)
// =============================================================================

// AppConfig aggregates all process configuration.
type AppConfig struct {
	MatchFile string `env:"REFEREE_GAME"`
	Seed      int64  `env:"REFEREE_SEED"` // coin toss seed, 0 uses the clock

	Rules   Rules
	Server  ServerConfig
	Debug   DebugConfig
	Log     LogConfig
	Storage StorageConfig
	Intake  IntakeConfig

	// DotEnv reports whether a .env file was read.
	DotEnv bool
}

// Default returns the configuration used when no environment is set.
func Default() AppConfig {
	return AppConfig{
		MatchFile: "game.json",
		Rules:     DefaultRules(),
		Server:    DefaultServer(),
		Debug:     DefaultDebug(),
		Log:       LogConfig{Level: "info", Format: "json"},
		Storage:   StorageConfig{ArchivePath: "referee.db", JournalPath: "referee.jsonl"},
		Intake:    IntakeConfig{SocketPath: "/tmp/humanoid-referee.sock"},
	}
}

// Load reads .env (if present) then applies environment overrides.
func Load() (*AppConfig, error) {
	loaded := godotenv.Load() == nil

	cfg := Default()
	cfg.DotEnv = loaded
	if err := env.Parse(&cfg); err != nil {
		return nil, &ConfigError{Source: "environment", Err: err}
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
