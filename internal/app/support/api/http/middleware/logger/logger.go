package logger

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Logger records support API requests. Polled paths are logged at debug so a
// monitoring probe does not flood the device log.
type Logger struct {
	log    *slog.Logger
	polled map[string]bool
}

func New(log *slog.Logger, polledPaths ...string) *Logger {
	polled := make(map[string]bool, len(polledPaths))
	for _, p := range polledPaths {
		polled[p] = true
	}
	return &Logger{
		log:    log.With(slog.String("component", "support_api")),
		polled: polled,
	}
}

func (l *Logger) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		next(ctx)

		path := ctx.URL().Path
		status := ctx.Status()
		l.log.Log(context.Background(), l.level(path, status), "support request",
			slog.String("operation", ctx.Operation().OperationID),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", ctx.RemoteAddr()),
		)
	}
}

func (l *Logger) level(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case l.polled[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
