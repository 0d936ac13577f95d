// Package server exposes the notification service over HTTP, a websocket
// push endpoint and a gRPC health service.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/alfredjeanlab/notify/internal/dispatch"
	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/notify"
	"github.com/alfredjeanlab/notify/internal/presence"
	"github.com/alfredjeanlab/notify/internal/store"
)

// StatsSource reports dispatcher counters for the health endpoint.
type StatsSource interface {
	Stats() dispatch.Stats
}

// Options configures authentication for the HTTP surface.
type Options struct {
	// JWTSecret verifies receiver bearer tokens.
	JWTSecret string
	// ServiceToken guards producer ingress. Empty disables the route.
	ServiceToken string
	// AllowedOrigins lists websocket origins; "*" allows any. Empty keeps
	// the same-origin check.
	AllowedOrigins []string
}

// NotifyServer serves one process's receivers.
type NotifyServer struct {
	svc      *notify.Service
	registry *presence.Registry
	stats    StatsSource
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewNotifyServer creates a server. stats may be nil.
func NewNotifyServer(svc *notify.Service, registry *presence.Registry, stats StatsSource, opts Options, logger *slog.Logger) *NotifyServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyServer{
		svc:      svc,
		registry: registry,
		stats:    stats,
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// inputError is returned for malformed request input.
type inputError string

func (e inputError) Error() string { return string(e) }

// writeServiceError maps service errors onto HTTP statuses.
func (s *NotifyServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ie inputError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, ie.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case store.IsStorageError(err):
		s.logger.Warn("storage unavailable", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
