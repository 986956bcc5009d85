// Package archive stores finished and running matches in SQLite: one row
// per match, every rule event and every shootout trial.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	maxOpenConns    = 1 // sqlite serializes writers anyway
	connMaxLifetime = time.Hour
)

// ErrNotFound is returned for an unknown match id.
var ErrNotFound = errors.New("match not found")

// Archive is the match database.
type Archive struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open connects to the database at path and applies migrations. Use
// ":memory:" for a throwaway archive.
func Open(path string, logger zerolog.Logger) (*Archive, error) {
	logger = logger.With().Str("component", "archive").Logger()
	logger.Info().Str("path", path).Msg("opening match archive")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := optimizeSQLite(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db, log: logger}, nil
}

func runMigrations(db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	logger.Debug().Msg("archive migrations applied")
	return nil
}

func optimizeSQLite(db *sql.DB, logger zerolog.Logger) error {
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"synchronous", "NORMAL"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "ON"},
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", pragma.name, pragma.value)); err != nil {
			return fmt.Errorf("failed to set PRAGMA %s: %w", pragma.name, err)
		}
		logger.Debug().Str("pragma", pragma.name).Str("value", pragma.value).Msg("SQLite pragma set")
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// MatchInfo describes a match when it starts.
type MatchInfo struct {
	Type       string
	FieldClass string
	RedID      int
	RedName    string
	BlueID     int
	BlueName   string
	StartedAt  time.Time
}

// MatchSummary is one archived match.
type MatchSummary struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	FieldClass    string     `json:"fieldClass"`
	RedName       string     `json:"redName"`
	BlueName      string     `json:"blueName"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	RedScore      int        `json:"redScore"`
	BlueScore     int        `json:"blueScore"`
	RedPenalties  int        `json:"redPenalties"`
	BluePenalties int        `json:"bluePenalties"`
	Winner        string     `json:"winner,omitempty"`
}

// StoredEvent is one archived rule event.
type StoredEvent struct {
	Sequence int64   `json:"sequence"`
	Tick     int64   `json:"tick"`
	SimTime  float64 `json:"simTime"`
	Type     string  `json:"type"`
	Team     string  `json:"team"`
	Player   int     `json:"player,omitempty"`
	Message  string  `json:"message"`
}

// StartMatch inserts a match row and returns its id.
func (a *Archive) StartMatch(ctx context.Context, info MatchInfo) (string, error) {
	id := uuid.NewString()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO matches (id, type, field_class, red_id, red_name, blue_id, blue_name, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, info.Type, info.FieldClass, info.RedID, info.RedName, info.BlueID, info.BlueName, info.StartedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert match: %w", err)
	}
	a.log.Info().Str("match", id).Str("red", info.RedName).Str("blue", info.BlueName).Msg("match archived")
	return id, nil
}

// RecordEvents stores events in one transaction. first is the sequence of
// the first event.
func (a *Archive) RecordEvents(ctx context.Context, matchID string, first int64, events []referee.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO rule_events (match_id, sequence, tick, sim_time, type, team, player, message, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, ev := range events {
		var payload sql.NullString
		if len(ev.Payload) > 0 {
			payload = sql.NullString{String: string(ev.Payload), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, matchID, first+int64(i), int64(ev.Tick), ev.SimTime,
			ev.Type.String(), ev.Team.String(), ev.Player, ev.Message, payload); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// RecordTrial stores one shootout trial.
func (a *Archive) RecordTrial(ctx context.Context, matchID string, attacker referee.Color, trial referee.TrialPayload) error {
	var kicker sql.NullString
	if trial.Kicker != "" {
		kicker = sql.NullString{String: trial.Kicker, Valid: true}
	}
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO shootout_trials (match_id, trial, attacker, kicker, outcome, time_to_touch, time_to_goal_area, time_to_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		matchID, trial.Trial, attacker.String(), kicker, string(trial.Outcome),
		nullFloat(trial.Metrics.TimeToTouch), nullFloat(trial.Metrics.TimeToGoalArea), nullFloat(trial.Metrics.TimeToScore))
	if err != nil {
		return fmt.Errorf("insert trial: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// FinishMatch stores the final result.
func (a *Archive) FinishMatch(ctx context.Context, matchID string, d *referee.Decision) error {
	var winner sql.NullString
	if d.Shootout != nil && d.Shootout.Winner.Valid() {
		winner = sql.NullString{String: d.Shootout.Winner.String(), Valid: true}
	} else if d.Score[referee.Red] != d.Score[referee.Blue] {
		w := referee.Red
		if d.Score[referee.Blue] > d.Score[referee.Red] {
			w = referee.Blue
		}
		winner = sql.NullString{String: w.String(), Valid: true}
	}

	res, err := a.db.ExecContext(ctx, `
		UPDATE matches SET finished_at = ?, red_score = ?, blue_score = ?,
			red_penalties = ?, blue_penalties = ?, winner = ?
		WHERE id = ?`,
		d.WallTime.UTC(), d.Score[referee.Red], d.Score[referee.Blue],
		d.Teams[referee.Red].PenaltyGoals, d.Teams[referee.Blue].PenaltyGoals, winner, matchID)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Matches lists the most recent matches first.
func (a *Archive) Matches(ctx context.Context, limit int) ([]MatchSummary, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, type, field_class, red_name, blue_name, started_at, finished_at,
			red_score, blue_score, red_penalties, blue_penalties, winner
		FROM matches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	out := []MatchSummary{}
	for rows.Next() {
		var m MatchSummary
		var finished sql.NullTime
		var winner sql.NullString
		if err := rows.Scan(&m.ID, &m.Type, &m.FieldClass, &m.RedName, &m.BlueName, &m.StartedAt, &finished,
			&m.RedScore, &m.BlueScore, &m.RedPenalties, &m.BluePenalties, &winner); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if finished.Valid {
			m.FinishedAt = &finished.Time
		}
		m.Winner = winner.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// Events returns the events of a match in order, optionally filtered by
// type.
func (a *Archive) Events(ctx context.Context, matchID, eventType string) ([]StoredEvent, error) {
	query := `SELECT sequence, tick, sim_time, type, team, player, message FROM rule_events WHERE match_id = ?`
	args := []any{matchID}
	if eventType != "" {
		query += ` AND type = ?`
		args = append(args, eventType)
	}
	rows, err := a.db.QueryContext(ctx, query+` ORDER BY sequence`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []StoredEvent{}
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.Sequence, &ev.Tick, &ev.SimTime, &ev.Type, &ev.Team, &ev.Player, &ev.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TrialCount returns how many shootout trials were archived for a match.
func (a *Archive) TrialCount(ctx context.Context, matchID string) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shootout_trials WHERE match_id = ?`, matchID).Scan(&n)
	return n, err
}
