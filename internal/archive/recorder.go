package archive

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"humanoid-referee/internal/referee"
)

const (
	// RecorderQueueSize is the number of decisions buffered ahead of the
	// database. Decisions without events are not queued.
	RecorderQueueSize = 4096
	// writeTimeout bounds a single database write
	writeTimeout = 5 * time.Second
)

// Recorder archives decisions off the referee tick. Submit never blocks;
// Run drains the queue into the database.
type Recorder struct {
	archive *Archive
	matchID string
	queue   chan *referee.Decision
	log     zerolog.Logger

	sequence int64
	finished bool

	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder creates a recorder for one archived match.
func NewRecorder(a *Archive, matchID string) *Recorder {
	return &Recorder{
		archive: a,
		matchID: matchID,
		queue:   make(chan *referee.Decision, RecorderQueueSize),
		log:     a.log.With().Str("match", matchID).Logger(),
	}
}

// MatchID returns the archived match id.
func (r *Recorder) MatchID() string {
	return r.matchID
}

// Submit queues a decision. Returns false when the queue is full.
func (r *Recorder) Submit(d *referee.Decision) bool {
	if len(d.Events) == 0 {
		return true
	}
	select {
	case r.queue <- d:
		return true
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.log.Warn().Uint64("dropped", r.dropped.Load()).Msg("archive queue full, dropping decisions")
		}
		return false
	}
}

// Run writes queued decisions until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case d := <-r.queue:
			r.write(d)
		case <-ctx.Done():
			for {
				select {
				case d := <-r.queue:
					r.write(d)
				default:
					r.log.Info().Uint64("decisions", r.written.Load()).Uint64("dropped", r.dropped.Load()).Msg("archive recorder stopped")
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(d *referee.Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.archive.RecordEvents(ctx, r.matchID, r.sequence+1, d.Events); err != nil {
		r.log.Error().Err(err).Int64("tick", int64(d.Tick)).Msg("failed to archive events")
		return
	}
	r.sequence += int64(len(d.Events))
	r.written.Add(1)

	for _, ev := range d.Events {
		switch ev.Type {
		case referee.EventTypeShootoutTrial:
			var trial referee.TrialPayload
			if err := json.Unmarshal(ev.Payload, &trial); err != nil {
				r.log.Error().Err(err).Msg("bad trial payload")
				continue
			}
			if err := r.archive.RecordTrial(ctx, r.matchID, ev.Team, trial); err != nil {
				r.log.Error().Err(err).Int("trial", trial.Trial).Msg("failed to archive trial")
			}
		case referee.EventTypeFinalScore:
			if r.finished {
				continue
			}
			if err := r.archive.FinishMatch(ctx, r.matchID, d); err != nil {
				r.log.Error().Err(err).Msg("failed to archive final score")
				continue
			}
			r.finished = true
		}
	}
}

// Stats returns counters for the debug endpoints.
func (r *Recorder) Stats() map[string]interface{} {
	return map[string]interface{}{
		"match":   r.matchID,
		"written": r.written.Load(),
		"dropped": r.dropped.Load(),
		"pending": len(r.queue),
	}
}
