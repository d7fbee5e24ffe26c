package config

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Board    BoardConfig    `mapstructure:"board"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// BoardConfig identifies the watched project board and how to reach it.
// Hostname other than github.com selects the enterprise API variant.
type BoardConfig struct {
	Hostname      string `mapstructure:"hostname"`
	Token         string `mapstructure:"token"`
	Owner         string `mapstructure:"owner"`
	ProjectNumber int    `mapstructure:"project_number"`
}

type DaemonConfig struct {
	SelfUsername    string        `mapstructure:"self_username"`
	TeamUsernames   []string      `mapstructure:"team_usernames"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	TriggerStatuses []string      `mapstructure:"trigger_statuses"`
	// DegradedAfter is the number of consecutive failed poll cycles before
	// the health hook reports a degraded daemon.
	DegradedAfter int    `mapstructure:"degraded_after"`
	StageProfile  string `mapstructure:"stage_profile"`
	LogsDir       string `mapstructure:"logs_dir"`
	WorktreesDir  string `mapstructure:"worktrees_dir"`
	ReposDir      string `mapstructure:"repos_dir"`
}

func Load(ctx context.Context, configFile string) (Config, error) {
	if ctx == nil {
		return Config{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return Config{}, errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.config"))

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			// Keep default and env-backed config when no file is provided.
			logging.Warn(logCtx, "config file not found, fallback to defaults and env")
		} else {
			return Config{}, errs.Wrap(err, "read config")
		}
	} else {
		logging.Info(logCtx, "using config file", slog.String("path", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errs.Wrap(err, "unmarshal config")
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	logging.Info(
		logCtx,
		"config loaded",
		slog.String("app", cfg.App.Name),
		slog.String("env", cfg.App.Env),
		slog.String("board_owner", cfg.Board.Owner),
		slog.Int("project_number", cfg.Board.ProjectNumber),
		slog.String("self", cfg.Daemon.SelfUsername),
		slog.Int("max_concurrent", cfg.Daemon.MaxConcurrent),
	)

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if strings.TrimSpace(cfg.Daemon.SelfUsername) == "" {
		return errors.New("daemon.self_username is required")
	}
	if cfg.Daemon.MaxConcurrent <= 0 {
		return errors.New("daemon.max_concurrent must be positive")
	}
	if cfg.Daemon.PollInterval <= 0 {
		return errors.New("daemon.poll_interval must be positive")
	}
	if strings.TrimSpace(cfg.Board.Owner) == "" || cfg.Board.ProjectNumber <= 0 {
		return errors.New("board.owner and board.project_number are required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "autoflow")
	v.SetDefault("app.env", "local")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", ".autoflow/state/runs.sqlite")
	v.SetDefault("board.hostname", "github.com")
	v.SetDefault("daemon.poll_interval", "30s")
	v.SetDefault("daemon.max_concurrent", 3)
	v.SetDefault("daemon.trigger_statuses", []string{"Todo"})
	v.SetDefault("daemon.degraded_after", 3)
	v.SetDefault("daemon.stage_profile", "autoflow.toml")
	v.SetDefault("daemon.logs_dir", ".autoflow/logs")
	v.SetDefault("daemon.worktrees_dir", ".autoflow/worktrees")
	v.SetDefault("daemon.repos_dir", ".autoflow/repos")
}
