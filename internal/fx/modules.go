package fx

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"humanoid-referee/internal/api"
	"humanoid-referee/internal/archive"
	"humanoid-referee/internal/config"
	"humanoid-referee/internal/ipc"
	"humanoid-referee/internal/logger"
	"humanoid-referee/internal/referee"
	"humanoid-referee/internal/render"
)

// FieldImageWidth is the width of /api/field.png in pixels.
const FieldImageWidth = 1100

// ProvideMatch loads the match file, tossing coins for unset sides.
func ProvideMatch(cfg *config.AppConfig, log zerolog.Logger) (*config.Match, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m, err := config.LoadMatch(cfg.MatchFile, rand.New(rand.NewSource(seed)))
	if err != nil {
		log.Error().Err(err).Str("file", cfg.MatchFile).Msg("invalid match configuration")
		return nil, err
	}
	for _, w := range m.Warnings {
		log.Warn().Str("file", cfg.MatchFile).Msg(w)
	}
	return m, nil
}

// ProvideJournal starts the rule event journal with the application.
func ProvideJournal(lc fx.Lifecycle, cfg *config.AppConfig) *referee.Journal {
	j := referee.NewJournal()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return j.Start(cfg.Storage.JournalPath) },
		OnStop: func(context.Context) error {
			j.Stop()
			return nil
		},
	})
	return j
}

// ProvideEngine builds the referee.
func ProvideEngine(m *config.Match, cfg *config.AppConfig, log zerolog.Logger, journal *referee.Journal, feed *referee.DecisionFeed) (*referee.Engine, error) {
	return referee.NewEngine(referee.EngineConfig{
		Match:   m,
		Rules:   cfg.Rules,
		Logger:  log,
		Journal: journal,
		Feed:    feed,
	})
}

// ProvideArchive opens the match archive. A nil archive means archiving
// is disabled.
func ProvideArchive(lc fx.Lifecycle, cfg *config.AppConfig, log zerolog.Logger) (*archive.Archive, error) {
	if cfg.Storage.ArchivePath == "" {
		log.Info().Msg("match archive disabled")
		return nil, nil
	}
	a, err := archive.Open(cfg.Storage.ArchivePath, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return a.Close() },
	})
	return a, nil
}

// ProvideRecorder registers the match in the archive. Nil when archiving
// is disabled.
func ProvideRecorder(a *archive.Archive, m *config.Match) (*archive.Recorder, error) {
	if a == nil {
		return nil, nil
	}
	id, err := a.StartMatch(context.Background(), archive.MatchInfo{
		Type:       string(m.Type),
		FieldClass: m.Geometry.Class,
		RedID:      m.Red.ID,
		RedName:    m.Red.Name,
		BlueID:     m.Blue.ID,
		BlueName:   m.Blue.Name,
		StartedAt:  time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return archive.NewRecorder(a, id), nil
}

// ProvideRenderer sizes the field image for the match geometry.
func ProvideRenderer(m *config.Match) *render.FieldRenderer {
	return render.NewFieldRenderer(m.Geometry, FieldImageWidth)
}

// ProvideServer builds the HTTP API.
func ProvideServer(cfg *config.AppConfig, feed *referee.DecisionFeed, journal *referee.Journal, a *archive.Archive, renderer *render.FieldRenderer, log zerolog.Logger) *api.Server {
	deps := api.Dependencies{
		Decisions: feed,
		Events:    journal,
		Renderer:  renderer,
	}
	if a != nil {
		deps.Archive = a
	}
	return api.NewServer(cfg.Server, deps, log)
}

// ProvideIntake builds the snapshot socket.
func ProvideIntake(cfg *config.AppConfig, log zerolog.Logger) *ipc.Intake {
	return ipc.NewIntake(cfg.Intake.SocketPath, log)
}

var Module = fx.Options(
	fx.Provide(config.Load),
	logger.Module,
	fx.Provide(ProvideMatch),
	// referee
	fx.Provide(referee.NewDecisionFeed),
	fx.Provide(ProvideJournal),
	fx.Provide(ProvideEngine),
	// storage
	fx.Provide(ProvideArchive),
	fx.Provide(ProvideRecorder),
	// outer surfaces
	fx.Provide(ProvideRenderer),
	fx.Provide(ProvideServer),
	fx.Provide(ProvideIntake),
)
