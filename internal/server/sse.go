package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"pdfqa/internal/errs"
)

const (
	eventToken = "token"
	eventDone  = "done"
	eventError = "error"
)

// StreamEvent is the JSON payload of each SSE data line.
type StreamEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) send(ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	// Rejections must happen before the event stream commits to 200.
	if err := s.asker.Validate(req.toAsk()); err != nil {
		s.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	sse := newSSEWriter(w)
	_, err := s.asker.AskWithOptionsStream(ctx, req.toAsk(), func(chunk string) error {
		return sse.send(StreamEvent{Type: eventToken, Content: chunk})
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.logger.Debug("stream client went away", zap.Error(err))
			return
		}
		s.logger.Warn("stream failed",
			zap.String("code", string(errs.CodeOf(err))),
			zap.Error(err))
		_ = sse.send(StreamEvent{Type: eventError, Content: err.Error()})
		return
	}
	_ = sse.send(StreamEvent{Type: eventDone})
}
