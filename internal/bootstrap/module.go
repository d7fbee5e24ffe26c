package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"autoflow/internal/bootstrap/config"
	"autoflow/internal/bootstrap/database"
	"autoflow/internal/bootstrap/logging"
	boardgithub "autoflow/internal/infrastructure/board/github"
	sqliterepo "autoflow/internal/infrastructure/persistence/sqlite/repository"
	"autoflow/internal/ports"
	"autoflow/internal/usecase/daemon"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(
		fx.Annotate(
			sqliterepo.NewRunRepository,
			fx.As(new(ports.RunRepository)),
		),
	),
	fx.Provide(provideBoard),
	fx.Provide(provideExecutor),
	fx.Provide(provideService),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

func provideBoard(ctx context.Context, cfg config.Config) (ports.Board, error) {
	if cfg.Board.Hostname == "" || cfg.Board.Hostname == "github.com" {
		return boardgithub.NewClient(ctx, cfg.Board.Token, cfg.Board.Owner, cfg.Board.ProjectNumber)
	}
	return boardgithub.NewEnterpriseClient(ctx, cfg.Board.Hostname, cfg.Board.Token, cfg.Board.Owner, cfg.Board.ProjectNumber)
}

func provideExecutor(cfg config.Config) ports.Executor {
	return daemon.NewAgentExecutor(cfg.Daemon.StageProfile)
}

func provideService(cfg config.Config, board ports.Board, runs ports.RunRepository, executor ports.Executor) *daemon.Service {
	return daemon.NewService(daemon.OptionsFromConfig(cfg), board, runs, executor)
}
