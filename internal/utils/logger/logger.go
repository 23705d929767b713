package logger

import (
	"os"
	"strings"

	"golang.org/x/exp/slog"

	"posclient/internal/app/client/config"
)

// New builds the application logger for env: pretty text for local runs, JSON otherwise.
// A non-empty level (debug, info, warn, error) replaces the env default; an
// unparsable one is ignored.
func New(env, level string) *slog.Logger {
	lvl := envLevel(env)
	if level != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(strings.TrimSpace(level))); err == nil {
			lvl = parsed
		}
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if env == config.EnvLocal {
		return slog.New(NewPrettyHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func envLevel(env string) slog.Level {
	switch env {
	case config.EnvLocal, config.EnvDev:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
