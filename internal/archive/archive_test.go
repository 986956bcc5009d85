package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "referee.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open archive: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func startTestMatch(t *testing.T, a *Archive) string {
	t.Helper()
	id, err := a.StartMatch(context.Background(), MatchInfo{
		Type:       "KNOCKOUT",
		FieldClass: "KID",
		RedID:      10,
		RedName:    "red team",
		BlueID:     20,
		BlueName:   "blue team",
		StartedAt:  time.Unix(1700000000, 0),
	})
	if err != nil {
		t.Fatalf("Failed to start match: %v", err)
	}
	return id
}

// TestArchiveMatchLifecycle tests the match row from start to result
func TestArchiveMatchLifecycle(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	id := startTestMatch(t, a)

	d := &referee.Decision{WallTime: time.Unix(1700000600, 0), Score: [2]int{2, 1}}
	if err := a.FinishMatch(ctx, id, d); err != nil {
		t.Fatalf("Failed to finish match: %v", err)
	}

	matches, err := a.Matches(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(matches))
	}
	m := matches[0]
	if m.ID != id || m.RedScore != 2 || m.BlueScore != 1 {
		t.Errorf("Unexpected match %+v", m)
	}
	if m.Winner != "red" {
		t.Errorf("Expected red winner, got %q", m.Winner)
	}
	if m.FinishedAt == nil {
		t.Error("Expected a finish time")
	}

	if err := a.FinishMatch(ctx, "missing", d); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestRecorderArchivesEvents tests that queued decisions reach the
// database, trials included
func TestRecorderArchivesEvents(t *testing.T) {
	a := openTestArchive(t)
	id := startTestMatch(t, a)
	rec := NewRecorder(a, id)

	now := time.Unix(1700000000, 0)
	score := 1.5
	trial := referee.TrialPayload{
		Trial:   0,
		Kicker:  "red player 1",
		Outcome: referee.TrialGoal,
		Metrics: referee.TrialMetrics{TimeToScore: &score},
	}
	decisions := []*referee.Decision{
		{Tick: 1, Events: []referee.Event{
			referee.NewEvent(referee.EventTypePhase, 1, 0.1, now, referee.NoTeam, 0, "READY", nil),
		}},
		{Tick: 2},
		{Tick: 30, Events: []referee.Event{
			referee.NewEvent(referee.EventTypeShootoutTrial, 30, 3, now, referee.Red, 1, "trial 1 goal", trial),
			referee.NewEvent(referee.EventTypeFinalScore, 30, 3, now, referee.NoTeam, 0, "FINAL SCORE: 0-0", nil),
		}},
	}
	decisions[2].Shootout = &referee.ShootoutView{Done: true, Winner: referee.Red}
	decisions[2].Teams[referee.Red].PenaltyGoals = 1

	for _, d := range decisions {
		if !rec.Submit(d) {
			t.Fatalf("Submit rejected tick %d", d.Tick)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	events, err := a.Events(context.Background(), id, "")
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i, ev := range events {
		if ev.Sequence != int64(i+1) {
			t.Errorf("Event %d: expected sequence %d, got %d", i, i+1, ev.Sequence)
		}
	}
	if events[1].Type != "shootout_trial" || events[1].Team != "red" {
		t.Errorf("Unexpected trial event %+v", events[1])
	}

	goals, err := a.Events(context.Background(), id, "final_score")
	if err != nil || len(goals) != 1 {
		t.Errorf("Expected one final score event, got %d (%v)", len(goals), err)
	}

	n, err := a.TrialCount(context.Background(), id)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 archived trial, got %d (%v)", n, err)
	}

	matches, _ := a.Matches(context.Background(), 1)
	if len(matches) != 1 || matches[0].Winner != "red" || matches[0].RedPenalties != 1 {
		t.Errorf("Expected red winning on penalties, got %+v", matches)
	}
}
