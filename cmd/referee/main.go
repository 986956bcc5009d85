// =============================================================================
// HUMANOID REFEREE
// =============================================================================
// Referees one simulated humanoid soccer match:
// - Receives physical snapshots from the simulator over the intake socket,
//   or plays a JSONL recording when REPLAY_PATH is set
// - Answers each snapshot with placements and rule events
// - Serves the live state API, websocket feed and field image
// - Archives rule events and the result to sqlite
//
// USAGE:
//   1. Start the referee: go run ./cmd/referee
//   2. Start the simulator, or replay a recording: go run ./cmd/feed
// =============================================================================
package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"humanoid-referee/internal/api"
	"humanoid-referee/internal/archive"
	"humanoid-referee/internal/config"
	fxmodules "humanoid-referee/internal/fx"
	"humanoid-referee/internal/ipc"
	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/replay"
)

// ShutdownTimeout bounds the OnStop hook.
const ShutdownTimeout = 10 * time.Second

func main() {
	fx.New(
		fxmodules.Module,
		fx.StopTimeout(ShutdownTimeout),
		fx.Invoke(runReferee),
	).Run()
}

type refereeParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.AppConfig
	Logger     zerolog.Logger
	Engine     *referee.Engine
	Journal    *referee.Journal
	Server     *api.Server
	Intake     *ipc.Intake
	Recorder   *archive.Recorder
}

func runReferee(p refereeParams) {
	log := p.Logger
	cfg := p.Config

	var (
		cancel context.CancelFunc
		group  *errgroup.Group
	)

	stats := map[string]api.StatsFunc{
		"journal": p.Journal.GetStats,
		"intake":  p.Intake.GetStats,
		"api":     p.Server.Stats,
	}
	if p.Recorder != nil {
		stats["archive"] = p.Recorder.Stats
	}
	debug := api.NewDebugServer(cfg.Debug, stats, log)

	step := func(snap referee.PhysicalSnapshot) (*referee.Decision, error) {
		start := time.Now()
		d, err := p.Engine.Step(snap)
		if err != nil {
			return nil, err
		}
		api.RecordTick(&d, time.Since(start))
		api.UpdateJournalStats(p.Journal.GetTotalCount(), p.Journal.GetDroppedCount())
		if p.Recorder != nil && !p.Recorder.Submit(&d) {
			log.Warn().Int64("tick", int64(d.Tick)).Msg("archive queue full, events dropped")
		}
		return &d, nil
	}

	// any worker failing ends the process
	fatal := func(name string, err error) error {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("worker", name).Msg("worker failed")
			p.Shutdowner.Shutdown(fx.ExitCode(1))
		}
		return err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Intake.Recording == "" {
				if err := p.Intake.Listen(); err != nil {
					return err
				}
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			group, ctx = errgroup.WithContext(ctx)

			group.Go(func() error { return fatal("api", p.Server.Run(ctx)) })

			if p.Recorder != nil {
				group.Go(func() error { return fatal("archive", p.Recorder.Run(ctx)) })
			}

			if debug != nil {
				group.Go(func() error {
					log.Info().Str("addr", debug.Addr).Msg("debug server listening")
					if err := debug.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fatal("debug", err)
					}
					return nil
				})
				group.Go(func() error {
					<-ctx.Done()
					return debug.Close()
				})
			}

			group.Go(func() error {
				if err := runIntake(ctx, cfg, p.Intake, step, log); err != nil {
					return fatal("intake", err)
				}
				if cfg.Intake.Recording != "" {
					p.Shutdowner.Shutdown()
				}
				return nil
			})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			done := make(chan error, 1)
			go func() { done <- group.Wait() }()

			select {
			case err := <-done:
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("shutdown with error")
				}
			case <-ctx.Done():
				log.Warn().Msg("shutdown timed out")
			}
			log.Info().Msg("referee stopped")
			return nil
		},
	})
}

// runIntake feeds snapshots to the referee from the socket or a recording.
func runIntake(ctx context.Context, cfg *config.AppConfig, intake *ipc.Intake, step ipc.StepFunc, log zerolog.Logger) error {
	if cfg.Intake.Recording == "" {
		return intake.Serve(ctx, step)
	}

	r, err := replay.Open(cfg.Intake.Recording)
	if err != nil {
		return err
	}
	defer r.Close()

	log.Info().Str("file", cfg.Intake.Recording).Msg("replaying recording")
	played, err := replay.Play(ctx, r, cfg.Rules.TickDuration, func(snap referee.PhysicalSnapshot) (bool, error) {
		d, err := step(snap)
		if err != nil {
			return true, err
		}
		return d.Over, nil
	})
	log.Info().Int("snapshots", played).Msg("replay finished")
	return err
}
