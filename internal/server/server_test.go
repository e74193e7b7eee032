package server

import (
	"log/slog"
	"net/http"
	"testing"
)

func TestRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/api/sessions", http.StatusCreated, slog.LevelInfo},
		{"/api/sessions/x/lookup", http.StatusUnprocessableEntity, slog.LevelWarn},
		{"/api/sessions", http.StatusInternalServerError, slog.LevelError},
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/healthz", http.StatusServiceUnavailable, slog.LevelError},
		{"/metrics", http.StatusOK, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := requestLogLevel(tt.path, tt.status); got != tt.want {
			t.Errorf("requestLogLevel(%q, %d) = %v, want %v", tt.path, tt.status, got, tt.want)
		}
	}
}
