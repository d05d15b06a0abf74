package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alfredjeanlab/agentsmith/internal/metrics"
	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/stream"
	"github.com/alfredjeanlab/agentsmith/internal/transform"
)

// sseSink writes stream frames as server-sent events.
type sseSink struct {
	w          http.ResponseWriter
	rc         *http.ResponseController
	format     string
	transforms *transform.Registry
}

func (s *sseSink) WriteEvent(evt *model.Event) error {
	data, err := json.Marshal(s.transforms.Apply(evt, s.format))
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.ID, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: event\nid: %s\ndata: %s\n\n", evt.ID, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) WritePing() error {
	if _, err := fmt.Fprint(s.w, "event: ping\ndata: \n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// handleStream handles GET /api/v1/rooms/{roomID}/events/stream (SSE endpoint).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	if err := model.ValidateRoomID(roomID); err != nil {
		s.writeErr(w, err)
		return
	}
	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("streaming not supported", "room_id", roomID, "err", err)
		return
	}

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	sink := &sseSink{w: w, rc: rc, format: r.URL.Query().Get("format"), transforms: s.transforms}
	err = s.streamer.Run(r.Context(), roomID, since, sink)
	switch {
	case err == nil:
		metrics.StreamsClosed.WithLabelValues("client_closed").Inc()
	case errors.Is(err, stream.ErrSlowConsumer):
		metrics.StreamsClosed.WithLabelValues("slow_consumer").Inc()
		s.logger.Warn("closing stream for slow consumer", "room_id", roomID, "err", err)
	default:
		metrics.StreamsClosed.WithLabelValues("error").Inc()
		s.logger.Info("stream ended", "room_id", roomID, "err", err)
	}
}
