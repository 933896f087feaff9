package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"pdfqa/internal/conversation"
	"pdfqa/internal/errs"
	"pdfqa/internal/service"
)

// ChatRequest is the body of /chat and /chat/stream.
type ChatRequest struct {
	FilePath string                 `json:"file_path"`
	Query    string                 `json:"query"`
	APIKey   string                 `json:"api_key"`
	TopK     int                    `json:"top_k,omitempty"`
	History  []conversation.Message `json:"history,omitempty"`
}

func (c ChatRequest) toAsk() service.AskRequest {
	return service.AskRequest{
		FilePath: c.FilePath,
		Query:    c.Query,
		APIKey:   c.APIKey,
		TopK:     c.TopK,
		History:  c.History,
	}
}

type SummaryRequest struct {
	FilePath string `json:"file_path"`
	APIKey   string `json:"api_key"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Hello World!",
		"info":    "PDF question answering API",
	})
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "itemID"))
	if err != nil {
		s.writeError(w, r, errs.New(errs.CodeServerInvalidInput, "item_id must be an integer"))
		return
	}
	var q *string
	if r.URL.Query().Has("q") {
		v := r.URL.Query().Get("q")
		q = &v
	}
	writeJSON(w, http.StatusOK, map[string]any{"item_id": id, "q": q})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	answer, err := s.asker.AskWithOptions(ctx, req.toAsk())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	summary, err := s.asker.Summarize(ctx, req.FilePath, req.APIKey)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

// ReleaseRequest is the body of DELETE /index.
type ReleaseRequest struct {
	FilePath string `json:"file_path"`
}

// handleRelease drops the cached index of a file so the next question rebuilds it.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req ReleaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.FilePath) == "" {
		s.writeError(w, r, errs.New(errs.CodeServerInvalidInput, "file_path is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": s.asker.Release(r.Context(), req.FilePath)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errs.Wrap(err, errs.CodeServerInvalidInput, "invalid request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code and a JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("code", string(errs.CodeOf(err))),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Warn("request rejected", fields...)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
