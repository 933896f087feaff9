// Package server exposes document question answering over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pdfqa/internal/errs"
	"pdfqa/internal/logging"
	"pdfqa/internal/metrics"
	"pdfqa/internal/service"
)

//go:embed web
var webFS embed.FS

// Asker is the question answering surface the HTTP handlers need.
type Asker interface {
	AskWithOptions(ctx context.Context, req service.AskRequest) (string, error)
	AskWithOptionsStream(ctx context.Context, req service.AskRequest, onChunk func(string) error) (string, error)
	Summarize(ctx context.Context, filePath, apiKey string) (string, error)
	Validate(req service.AskRequest) error
	Release(ctx context.Context, filePath string) bool
}

type Config struct {
	Addr           string
	UploadDir      string
	MaxUploadBytes int64
	CORSOrigins    []string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

type Server struct {
	router  chi.Router
	cfg     Config
	asker   Asker
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, asker Asker, logger *zap.Logger, m *metrics.Metrics) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errs.New(errs.CodeConfigInvalid, "listen address is required")
	}
	if asker == nil {
		return nil, errs.New(errs.CodeConfigInvalid, "question service is required")
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if m == nil {
		m = metrics.Default()
	}

	s := &Server{cfg: cfg, asker: asker, logger: logging.OrNop(logger).Named("http"), metrics: m}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.CORSOrigins))

	web, _ := fs.Sub(webFS, "web")
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, web, "index.html")
	})
	r.Get("/api", s.handleHello)
	r.Get("/items/{itemID}", s.handleItem)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/chat", s.handleChat)
	r.Post("/chat/stream", s.handleChatStream)
	r.Post("/summary", s.handleSummary)
	r.Post("/upload", s.handleUpload)
	r.Delete("/index", s.handleRelease)
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errs.Wrapf(err, errs.CodeServerInternal, "listening on %s", s.cfg.Addr)
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(err, errs.CodeServerInternal, "shutting down")
	}
	return <-errCh
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}
