package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/listenupapp/library-server/internal/graph"
)

// SSE event names.
const (
	eventNext     = "next"
	eventComplete = "complete"
	eventPing     = "ping"
)

// maxStreamBody bounds POST bodies on the streaming endpoint.
const maxStreamBody = 1 << 20

// writeDeadline is pushed forward after every successful write.
const writeDeadline = 60 * time.Second

func (s *Server) registerStreamRoutes() {
	s.router.Get("/graphql/stream", s.handleStream)
	s.router.Post("/graphql/stream", s.handleStream)
}

// handleStream serves one subscription over Server-Sent Events. Each result
// is a "next" event; "complete" marks the end of the stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := s.slogger(r)

	req, err := streamRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Check if request context is already canceled (early client disconnect).
	if ctx.Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		log.Error("failed to flush headers", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	op, errs := s.exec.Prepare(req)
	if errs != nil {
		s.finish(w, rc, log, &graph.Response{Errors: errs})
		return
	}
	results, errResp := s.exec.Subscribe(ctx, op)
	if errResp != nil {
		s.finish(w, rc, log, errResp)
		return
	}

	log = log.With(slog.String("operation", op.Name()))
	log.Info("subscription stream opened")
	defer log.Info("subscription stream closed")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case resp, ok := <-results:
			if !ok {
				// Fanout shut down or the subscription ended.
				_ = s.sendEvent(w, rc, log, eventComplete, nil) //nolint:errcheck // stream is over either way
				return
			}
			if err := s.sendEvent(w, rc, log, eventNext, resp); err != nil {
				log.Info("client disconnected during send")
				return
			}

		case <-heartbeat.C:
			if err := s.sendEvent(w, rc, log, eventPing, nil); err != nil {
				log.Info("client disconnected during heartbeat")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// finish sends a request-level error as a single result and completes.
func (s *Server) finish(w http.ResponseWriter, rc *http.ResponseController, log *slog.Logger, resp *graph.Response) {
	if len(resp.Errors) > 0 {
		log.Warn("subscription rejected", slog.String("error", resp.Errors[0].Message))
	}
	if err := s.sendEvent(w, rc, log, eventNext, resp); err != nil {
		return
	}
	_ = s.sendEvent(w, rc, log, eventComplete, nil) //nolint:errcheck // stream is over either way
}

// sendEvent writes one SSE frame. A nil payload sends an empty data line.
func (s *Server) sendEvent(w http.ResponseWriter, rc *http.ResponseController, log *slog.Logger, event string, payload any) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// SetWriteDeadline may not be supported by all ResponseWriters.
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		log.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
