package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

// healthTimeout bounds the store ping made by GET /health.
const healthTimeout = 2 * time.Second

// NewHTTPHandler returns an http.Handler with all routes registered and the
// recovery, request logging and auth middleware applied.
func (s *Server) NewHTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/v1/rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}", s.handleGetRoom)
	mux.HandleFunc("POST /api/v1/rooms/{roomID}/events", s.handleEmit)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}/events", s.handlePoll)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}/events/stream", s.handleStream)
	mux.HandleFunc("GET /api/v1/rooms/{roomID}/presence", s.handlePresence)

	var h http.Handler = mux
	h = AuthMiddleware(s.resolver, h)
	h = LoggingMiddleware(s.logger, h)
	h = RecoveryMiddleware(s.logger, h)
	return h
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEmit handles POST /api/v1/rooms/{roomID}/events.
func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	// Leave room for the envelope around a maximal payload.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.payloadMax)+16*1024)

	var in model.EventInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.writeErr(w, model.NewPayloadTooLargeError("request body too large"))
			return
		}
		s.writeErr(w, model.NewValidationError("invalid JSON body"))
		return
	}

	res, err := s.emit(r.Context(), r.PathValue("roomID"), &in, r.URL.Query().Get("format"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handlePoll handles GET /api/v1/rooms/{roomID}/events.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, err := parseSince(q.Get("since"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	limit := DefaultPollLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeErr(w, model.NewValidationError("limit must be an integer"))
			return
		}
		limit = n
	}

	res, err := s.poll(r.Context(), r.PathValue("roomID"), since, limit, q.Get("format"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePresence handles GET /api/v1/rooms/{roomID}/presence.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions(r.Context(), r.PathValue("roomID"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleCreateRoom handles POST /api/v1/rooms.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var in createRoomInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeErr(w, model.NewValidationError("invalid JSON body"))
		return
	}
	room, err := s.createRoom(r.Context(), in)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// handleListRooms handles GET /api/v1/rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRooms(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if rooms == nil {
		rooms = []*model.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// handleGetRoom handles GET /api/v1/rooms/{roomID}.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.getRoom(r.Context(), r.PathValue("roomID"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// parseSince parses the required since cursor.
func parseSince(v string) (int64, error) {
	if v == "" {
		return 0, model.NewValidationError("since is required")
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, model.NewValidationError("since must be a non-negative integer")
	}
	return n, nil
}

// writeErr maps err to a status and error body. Unexpected errors are
// logged and reported without detail.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var (
		ae *model.AppError
		ve *model.ValidationError
	)
	switch {
	case errors.As(err, &ae):
		writeError(w, ae.Status, ae.Code, ae.Message)
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, model.CodeValidation, ve.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, model.CodeNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, model.CodeConflict, "already exists")
	default:
		s.logger.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, model.CodeInternal, model.InternalErrorMessage)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
