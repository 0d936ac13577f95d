package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/notify/internal/auth"
	"github.com/alfredjeanlab/notify/internal/model"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

type contextKey string

const userIDKey contextKey = "user_id"

// NewHTTPHandler returns an http.Handler with all REST and websocket routes.
func (s *NotifyServer) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /ws/message", s.handleWebSocket)

	mux.Handle("GET /v1/messages", s.requireUser(s.handleListMessages))
	mux.Handle("PATCH /v1/messages/{id}/read", s.requireUser(s.handleMarkAsRead))
	mux.Handle("PATCH /v1/messages/read-all", s.requireUser(s.handleMarkAllAsRead))
	mux.Handle("PATCH /v1/messages/read-batch", s.requireUser(s.handleMarkAsReadBatch))
	mux.Handle("DELETE /v1/messages/{id}", s.requireUser(s.handleDeleteMessage))
	mux.Handle("GET /v1/messages/unread/count", s.requireUser(s.handleUnreadCount))
	mux.Handle("GET /v1/messages/unread/by-type", s.requireUser(s.handleUnreadByType))
	mux.Handle("GET /v1/presence/online", s.requireUser(s.handleOnlineCount))

	if s.opts.ServiceToken != "" {
		mux.Handle("POST /v1/internal/events", AuthMiddleware(s.opts.ServiceToken, http.HandlerFunc(s.handlePublishEvent)))
		mux.Handle("GET /v1/internal/presence", AuthMiddleware(s.opts.ServiceToken, http.HandlerFunc(s.handlePresence)))
	}

	return s.logRequests(mux)
}

// requireUser verifies the bearer token and stores the receiver id in the
// request context.
func (s *NotifyServer) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		userID, err := auth.Verify(s.opts.JWTSecret, auth.StripBearer(header))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}

func (s *NotifyServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"online": s.registry.OnlineCount(),
	}
	if s.stats != nil {
		resp["dispatch"] = s.stats.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListMessages handles GET /v1/messages.
func (s *NotifyServer) handleListMessages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	page, err := s.svc.List(r.Context(), userID(r), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleMarkAsRead handles PATCH /v1/messages/{id}/read.
func (s *NotifyServer) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.MarkAsRead(r.Context(), id, userID(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarkAllAsRead handles PATCH /v1/messages/read-all.
func (s *NotifyServer) handleMarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.MarkAllAsRead(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// handleMarkAsReadBatch handles PATCH /v1/messages/read-batch.
func (s *NotifyServer) handleMarkAsReadBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageIDs []int64 `json:"messageIds"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	n, err := s.svc.MarkAsReadBatch(r.Context(), req.MessageIDs, userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// handleDeleteMessage handles DELETE /v1/messages/{id}.
func (s *NotifyServer) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.svc.Delete(r.Context(), id, userID(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleUnreadCount handles GET /v1/messages/unread/count.
func (s *NotifyServer) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.UnreadCount(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// handleUnreadByType handles GET /v1/messages/unread/by-type.
func (s *NotifyServer) handleUnreadByType(w http.ResponseWriter, r *http.Request) {
	counts, err := s.svc.UnreadCountByType(r.Context(), userID(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts.Named())
}

// handlePresence handles GET /v1/internal/presence. It lists every online
// user with its connection, so it is only served to the service token.
func (s *NotifyServer) handlePresence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// handleOnlineCount handles GET /v1/presence/online.
func (s *NotifyServer) handleOnlineCount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"online": s.registry.OnlineCount()})
}

// handlePublishEvent handles POST /v1/internal/events. The event is queued
// for dispatch; 202 does not mean it was persisted.
func (s *NotifyServer) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.svc.Publish(ev)
	w.WriteHeader(http.StatusAccepted)
}

func parseFilter(r *http.Request) (model.MessageFilter, error) {
	q := r.URL.Query()
	var f model.MessageFilter

	if v := q.Get("type"); v != "" {
		k, err := model.ParseKind(v)
		if err != nil {
			return f, inputError(err.Error())
		}
		f.Type = &k
	}
	if v := q.Get("is_read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, inputError("is_read must be true or false")
		}
		f.IsRead = &b
	}
	for _, tb := range []struct {
		key string
		dst **time.Time
	}{{"start_time", &f.StartTime}, {"end_time", &f.EndTime}} {
		if v := q.Get(tb.key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return f, inputError(tb.key + " must be an RFC 3339 timestamp")
			}
			*tb.dst = &t
		}
	}
	var err error
	if f.Page, err = queryInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.PageSize, err = queryInt(q.Get("page_size"), "page_size"); err != nil {
		return f, err
	}
	f.Sort = q.Get("sort")
	return f, nil
}

func queryInt(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, inputError(name + " must be a positive integer")
	}
	return n, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, inputError("invalid message id")
	}
	return id, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return inputError("invalid JSON body")
	}
	return nil
}

// writeJSON marshals data as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
