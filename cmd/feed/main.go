// =============================================================================
// HUMANOID REFEREE - FEED
// =============================================================================
// Stands in for the simulator: plays a JSONL recording of physical
// snapshots into the referee socket and prints what the referee decides.
//
// USAGE:
//   1. Start the referee first: go run ./cmd/referee
//   2. Then feed it: REPLAY_PATH=match.jsonl go run ./cmd/feed
// =============================================================================
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"humanoid-referee/internal/config"
	"humanoid-referee/internal/ipc"
	"humanoid-referee/internal/logger"
	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/replay"
)

const progressInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg)

	if cfg.Intake.Recording == "" {
		log.Fatal().Msg("REPLAY_PATH not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("feed failed")
	}
}

func run(ctx context.Context, cfg *config.AppConfig, log zerolog.Logger) error {
	r, err := replay.Open(cfg.Intake.Recording)
	if err != nil {
		return err
	}
	defer r.Close()

	client, err := ipc.Dial(ctx, cfg.Intake.SocketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Ping(); err != nil {
		return err
	}
	log.Info().Str("addr", ipc.GetPlatformAddress(cfg.Intake.SocketPath)).Msg("connected to referee")

	var (
		lastTick atomic.Int64
		over     atomic.Bool
	)

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		played, err := replay.Play(gctx, r, cfg.Rules.TickDuration, func(snap referee.PhysicalSnapshot) (bool, error) {
			d, err := client.Step(&snap)
			if err != nil {
				return true, err
			}
			lastTick.Store(d.Tick)
			for _, msg := range d.Messages {
				log.Info().Int64("tick", d.Tick).Str("phase", d.Phase).Msg(msg)
			}
			if n := len(d.PlayerPlacements); n > 0 {
				log.Debug().Int64("tick", d.Tick).Int("robots", n).Msg("placements requested")
			}
			over.Store(d.Over)
			return d.Over, nil
		})
		log.Info().Int("snapshots", played).Bool("matchOver", over.Load()).Msg("recording finished")
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				log.Info().Uint64("sent", client.Sent()).Int64("tick", lastTick.Load()).Msg("feeding")
			}
		}
	})

	err = g.Wait()
	var refErr *ipc.RefereeError
	if errors.As(err, &refErr) {
		log.Error().Uint64("snapshot", refErr.Sequence).Str("reason", refErr.Message).Msg("referee stopped the match")
	}
	return err
}
