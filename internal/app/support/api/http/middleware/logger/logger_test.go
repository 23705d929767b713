package logger

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/slog"
)

func TestLogger_Level(t *testing.T) {
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)), "/api/v1/health")

	tests := []struct {
		name   string
		path   string
		status int
		want   slog.Level
	}{
		{name: "regular request", path: "/api/v1/outbox", status: http.StatusOK, want: slog.LevelInfo},
		{name: "polled path", path: "/api/v1/health", status: http.StatusOK, want: slog.LevelDebug},
		{name: "bad request", path: "/api/v1/outbox", status: http.StatusBadRequest, want: slog.LevelWarn},
		{name: "failing probe", path: "/api/v1/health", status: http.StatusServiceUnavailable, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.level(tt.path, tt.status))
		})
	}
}
